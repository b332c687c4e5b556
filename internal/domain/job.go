package domain

import "time"

// Topic names a logical job queue.
type Topic string

const (
	TopicEvents   Topic = "events"
	TopicProfiles Topic = "profile-mutations"
	TopicSessions Topic = "session-aggregations"
	TopicRollups  Topic = "rollup-aggregations"
)

// Topics lists every topic in pipeline order.
var Topics = []Topic{TopicEvents, TopicProfiles, TopicSessions, TopicRollups}

// ProfileMutation sub-kinds.
const (
	MutationIdentify  = "identify"
	MutationIncrement = "increment"
)

// ProfileJob is the payload on the profile-mutations topic. Decrements are
// carried as increments with a negative Delta.
type ProfileJob struct {
	Kind       string         `json:"kind"`
	ProjectID  string         `json:"project_id"`
	ProfileID  string         `json:"profile_id"`
	DeviceID   string         `json:"device_id,omitempty"`
	FirstName  string         `json:"first_name,omitempty"`
	LastName   string         `json:"last_name,omitempty"`
	Email      string         `json:"email,omitempty"`
	Avatar     string         `json:"avatar,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Property   string         `json:"property,omitempty"`
	Delta      float64        `json:"delta,omitempty"`
}

// SessionJob is the payload on the session-aggregations topic. Attempt
// counts the rechecks of a session that was still active.
type SessionJob struct {
	ProjectID string `json:"project_id"`
	SessionID string `json:"session_id"`
	Attempt   int    `json:"attempt,omitempty"`
}

// RollupJob is the payload on the rollup-aggregations topic.
type RollupJob struct {
	ProjectID string    `json:"project_id"`
	Date      time.Time `json:"date"`
}
