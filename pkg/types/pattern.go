package types

import "time"

// HoursPerDay and DaysPerWeek size the activity distributions.
const (
	HoursPerDay = 24
	DaysPerWeek = 7
)

// CameraActivityPattern holds the persisted activity profile for one camera.
// Exactly one row exists per camera, upserted by the periodic recalculation
// worker. Timing queries read this row directly and never recompute on the
// request path.
type CameraActivityPattern struct {
	// CameraID is the camera this pattern describes (unique).
	CameraID string `json:"camera_id"`

	// HourlyDistribution[h] is the number of events whose hour-of-day is h.
	HourlyDistribution [HoursPerDay]int `json:"hourly_distribution"`

	// DailyDistribution[d] is the number of events whose weekday is d
	// (0 = Sunday, matching time.Weekday).
	DailyDistribution [DaysPerWeek]int `json:"daily_distribution"`

	// PeakHours are hours with activity above mean + 0.5*stddev.
	PeakHours []int `json:"peak_hours"`

	// QuietHours are hours with activity below 10% of the busiest hour.
	// Always disjoint from PeakHours.
	QuietHours []int `json:"quiet_hours"`

	// AverageEventsPerDay is total events in the window divided by WindowDays.
	AverageEventsPerDay float64 `json:"average_events_per_day"`

	// WindowDays is the rolling window the pattern was computed over.
	WindowDays int `json:"window_days"`

	// InsufficientData marks patterns computed from fewer than the minimum
	// number of events or too short a span. Distributions are zeroed and
	// timing queries answer "unknown".
	InsufficientData bool `json:"insufficient_data"`

	// LastCalculatedAt is when the pattern was last recalculated.
	LastCalculatedAt time.Time `json:"last_calculated_at"`
}

// TotalEvents returns the number of events the pattern was computed from.
func (p *CameraActivityPattern) TotalEvents() int {
	total := 0
	for _, c := range p.HourlyDistribution {
		total += c
	}
	return total
}

// IsPeakHour reports whether hour is in the peak set.
func (p *CameraActivityPattern) IsPeakHour(hour int) bool {
	for _, h := range p.PeakHours {
		if h == hour {
			return true
		}
	}
	return false
}

// IsQuietHour reports whether hour is in the quiet set.
func (p *CameraActivityPattern) IsQuietHour(hour int) bool {
	for _, h := range p.QuietHours {
		if h == hour {
			return true
		}
	}
	return false
}

// TimingVerdict answers "is this timing typical for the camera?".
// IsTypical is nil when the camera has no usable pattern yet.
type TimingVerdict struct {
	IsTypical  *bool   `json:"is_typical"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}
