package nats

import "time"

// StreamEvents holds every event this service emits.
const StreamEvents = "EXAMPREP_EVENTS"

// Subject constants.
const (
	SubjectFreeTrialEvent = "examprep.events.freetrial"
	SubjectRetakeEvent    = "examprep.events.retake"
	SubjectAdminEvent     = "examprep.events.admin"
)

// FreeTrialEvent is published for every metered usage decision.
type FreeTrialEvent struct {
	UserID     string    `json:"user_id"`
	CategoryID int64     `json:"category_id"`
	Count      int       `json:"count"`
	Day        string    `json:"day"`     // YYYY-MM-DD
	Outcome    string    `json:"outcome"` // recorded, or the denial reason
	Used       int       `json:"used"`
	Limit      int       `json:"limit"`
	Timestamp  time.Time `json:"timestamp"`
}

// RetakeEvent is published when a retake is created or denied.
type RetakeEvent struct {
	UserID         string    `json:"user_id"`
	TestInstanceID string    `json:"test_instance_id"`
	RetakeID       string    `json:"retake_id,omitempty"`
	Outcome        string    `json:"outcome"` // created, LimitReached, NotOwner
	MaxRetakes     int       `json:"max_retakes"`
	CurrentRetakes int       `json:"current_retakes"`
	Timestamp      time.Time `json:"timestamp"`
}

// AdminEvent is published for configuration changes made by administrators,
// for the external activity log to pick up.
type AdminEvent struct {
	ActorID   string    `json:"actor_id"`
	Action    string    `json:"action"` // e.g. "freetrial_policy_replaced", "retake_limit_set"
	TargetID  string    `json:"target_id,omitempty"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
