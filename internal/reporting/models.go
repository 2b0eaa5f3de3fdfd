package reporting

import "time"

const (
	DefaultStatsDays = 30
	MaxStatsDays     = 365
)

// CallStats aggregates one user's calls created within the trailing window.
type CallStats struct {
	UserID string    `json:"user_id"`
	Days   int       `json:"days"`
	Since  time.Time `json:"since"`

	TotalCalls     int `json:"total_calls"`
	CompletedCalls int `json:"completed_calls"`
	MissedCalls    int `json:"missed_calls"`
	DeclinedCalls  int `json:"declined_calls"`
	CancelledCalls int `json:"cancelled_calls"`
	OpenCalls      int `json:"open_calls"`

	OutgoingCalls int `json:"outgoing_calls"`
	IncomingCalls int `json:"incoming_calls"`
	AudioCalls    int `json:"audio_calls"`
	VideoCalls    int `json:"video_calls"`

	// Durations cover completed calls only.
	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`
}
