package domain

import "time"

// Session is the summary row written once per aggregated session.
// Representative fields are sampled from an arbitrary member event.
type Session struct {
	ID             string    `ch:"id"`
	ProjectID      string    `ch:"project_id"`
	DeviceID       string    `ch:"device_id"`
	ProfileID      string    `ch:"profile_id"`
	CreatedAt      time.Time `ch:"created_at"`
	EndedAt        time.Time `ch:"ended_at"`
	Duration       uint64    `ch:"duration"`
	ScreenViews    uint32    `ch:"screen_views"`
	EventCount     uint32    `ch:"event_count"`
	IsBounce       bool      `ch:"is_bounce"`
	EntryPath      string    `ch:"entry_path"`
	ExitPath       string    `ch:"exit_path"`
	Device         string    `ch:"device"`
	Browser        *string   `ch:"browser"`
	OS             *string   `ch:"os"`
	Country        *string   `ch:"country"`
	Region         *string   `ch:"region"`
	City           *string   `ch:"city"`
	Referrer       *string   `ch:"referrer"`
	ReferrerName   *string   `ch:"referrer_name"`
	ReferrerType   string    `ch:"referrer_type"`
	UTMSource      *string   `ch:"utm_source"`
	UTMMedium      *string   `ch:"utm_medium"`
	UTMCampaign    *string   `ch:"utm_campaign"`
}

// SessionAggregate is the raw rollup of a session's member events.
type SessionAggregate struct {
	Session
	LastEventAt time.Time
}

// Summarize derives the duration and bounce flag from the aggregate bounds.
func (a *SessionAggregate) Summarize() *Session {
	s := a.Session
	if s.EndedAt.After(s.CreatedAt) {
		s.Duration = uint64(s.EndedAt.Sub(s.CreatedAt).Milliseconds())
	}
	s.IsBounce = s.ScreenViews == 1
	return &s
}
