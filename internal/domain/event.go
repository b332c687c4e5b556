package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind is the ingress payload type.
type EventKind string

const (
	KindTrack     EventKind = "track"
	KindIdentify  EventKind = "identify"
	KindIncrement EventKind = "increment"
	KindDecrement EventKind = "decrement"
)

// Well-known event names.
const (
	EventScreenView   = "screen_view"
	EventSessionStart = "session_start"
	EventSessionEnd   = "session_end"
)

// Device classes.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

// Referrer types.
const (
	ReferrerDirect = "direct"
	ReferrerSearch = "search"
	ReferrerSocial = "social"
	ReferrerAd     = "ad"
	ReferrerOther  = "other"
)

// RawEvent is a client-emitted payload as accepted at ingress. It is never
// persisted verbatim.
type RawEvent struct {
	Kind       EventKind      `json:"type" validate:"required,oneof=track identify increment decrement"`
	Name       string         `json:"name,omitempty" validate:"required_if=Kind track,max=120"`
	ProfileID  string         `json:"profile_id,omitempty" validate:"required_unless=Kind track,max=256"`
	DeviceID   string         `json:"device_id,omitempty" validate:"max=256"`
	SessionID  string         `json:"session_id,omitempty" validate:"max=256"`
	Path       string         `json:"path,omitempty"`
	Referrer   string         `json:"referrer,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`

	// Identify traits.
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Avatar    string `json:"avatar,omitempty"`

	// Increment/decrement target.
	Property string  `json:"property,omitempty" validate:"required_if=Kind increment,required_if=Kind decrement"`
	Value    float64 `json:"value,omitempty"`
}

// Geo is a resolved client location. Empty fields are unknown.
type Geo struct {
	Country string
	Region  string
	City    string
}

// RequestMeta carries request-derived fields that accompany a RawEvent.
type RequestMeta struct {
	ProjectID string
	ClientIP  string
	UserAgent string
	Geo       Geo
}

// Event is the canonical, append-only representation of a tracked event.
// Nullable columns are pointers.
type Event struct {
	ID              uuid.UUID  `ch:"id" json:"id"`
	ProjectID       string     `ch:"project_id" json:"project_id"`
	Name            string     `ch:"name" json:"name"`
	DeviceID        string     `ch:"device_id" json:"device_id"`
	ProfileID       string     `ch:"profile_id" json:"profile_id,omitempty"`
	SessionID       string     `ch:"session_id" json:"session_id"`
	CreatedAt       time.Time  `ch:"created_at" json:"created_at"`
	ClientTimestamp *time.Time `ch:"client_timestamp" json:"client_timestamp,omitempty"`
	Path            string     `ch:"path" json:"path"`
	Origin          *string    `ch:"origin" json:"origin,omitempty"`
	Referrer        *string    `ch:"referrer" json:"referrer,omitempty"`
	ReferrerName    *string    `ch:"referrer_name" json:"referrer_name,omitempty"`
	ReferrerType    string     `ch:"referrer_type" json:"referrer_type"`
	UTMSource       *string    `ch:"utm_source" json:"utm_source,omitempty"`
	UTMMedium       *string    `ch:"utm_medium" json:"utm_medium,omitempty"`
	UTMCampaign     *string    `ch:"utm_campaign" json:"utm_campaign,omitempty"`
	UTMTerm         *string    `ch:"utm_term" json:"utm_term,omitempty"`
	UTMContent      *string    `ch:"utm_content" json:"utm_content,omitempty"`
	Browser         *string    `ch:"browser" json:"browser,omitempty"`
	BrowserVersion  *string    `ch:"browser_version" json:"browser_version,omitempty"`
	OS              *string    `ch:"os" json:"os,omitempty"`
	OSVersion       *string    `ch:"os_version" json:"os_version,omitempty"`
	Device          string     `ch:"device" json:"device"`
	Brand           *string    `ch:"brand" json:"brand,omitempty"`
	Model           *string    `ch:"model" json:"model,omitempty"`
	Country         *string    `ch:"country" json:"country,omitempty"`
	Region          *string    `ch:"region" json:"region,omitempty"`
	City            *string    `ch:"city" json:"city,omitempty"`
	Properties      string     `ch:"properties" json:"properties"`
	Duration        *uint64    `ch:"duration" json:"duration,omitempty"`
	ScreenViews     *uint32    `ch:"screen_views" json:"screen_views,omitempty"`
	Version         uint64     `ch:"version" json:"version"`
}
