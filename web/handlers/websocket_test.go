package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/scrypster/hindsight/pkg/types"
	"github.com/scrypster/hindsight/web/handlers"
	"github.com/stretchr/testify/assert"
)

func TestTelemetryHub_ValidatesOrigin(t *testing.T) {
	hub := handlers.NewTelemetryHub([]string{"localhost:7171"})
	defer hub.Stop()

	req := httptest.NewRequest("GET", "/ws/telemetry", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	w := httptest.NewRecorder()
	hub.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Forbidden")
}

func TestTelemetryHub_BroadcastsTelemetry(t *testing.T) {
	hub := handlers.NewTelemetryHub([]string{"localhost:7171"})
	go hub.Run()
	defer hub.Stop()

	received := make(chan []byte, 1)
	client := &handlers.MockClient{SendChan: received}

	hub.Register(client)

	// Give the hub time to register the client.
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(types.TelemetryRecord{
		EventID:  "evt-1",
		CameraID: "cam-front",
		Included: true,
	})

	select {
	case msg := <-received:
		assert.Contains(t, string(msg), "evt-1")
		assert.Contains(t, string(msg), "cam-front")
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for broadcast message")
	}
}

func TestTelemetryHub_UnregisterAfterStopDoesNotBlock(t *testing.T) {
	hub := handlers.NewTelemetryHub([]string{"localhost:7171"})
	go hub.Run()

	client := &handlers.MockClient{SendChan: make(chan []byte, 1)}
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	hub.Stop()

	// Pump goroutines unregister on their way out after shutdown; the call
	// must return instead of blocking on the stopped hub loop.
	done := make(chan struct{})
	go func() {
		hub.Unregister(client)
		hub.Register(client)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Unregister blocked after hub stop")
	}
}

func TestTelemetryHub_EvictsSlowClient(t *testing.T) {
	hub := handlers.NewTelemetryHub([]string{"localhost:7171"})
	go hub.Run()
	defer hub.Stop()

	fast := &handlers.MockClient{SendChan: make(chan []byte, 4)}
	// Unbuffered channel that nothing reads: the first broadcast cannot be
	// delivered and the client is dropped.
	slow := &handlers.MockClient{SendChan: make(chan []byte)}

	hub.Register(fast)
	hub.Register(slow)
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(types.TelemetryRecord{EventID: "evt-1"})
	hub.Broadcast(types.TelemetryRecord{EventID: "evt-2"})
	time.Sleep(20 * time.Millisecond)

	// The fast client received both messages.
	assert.Len(t, fast.SendChan, 2)

	// The slow client's channel was closed on eviction.
	select {
	case _, ok := <-slow.SendChan:
		assert.False(t, ok, "slow client channel should be closed")
	default:
		t.Fatal("slow client channel still open")
	}
}
