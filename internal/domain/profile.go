package domain

import (
	"time"

	"github.com/goccy/go-json"
)

// Profile is one immutable snapshot row for (ProjectID, ID). The current
// state of a profile is the fold of all its snapshots in CreatedAt order.
type Profile struct {
	ID          string    `ch:"id"`
	ProjectID   string    `ch:"project_id"`
	FirstName   string    `ch:"first_name"`
	LastName    string    `ch:"last_name"`
	Email       string    `ch:"email"`
	Avatar      string    `ch:"avatar"`
	Properties  string    `ch:"properties"`
	FirstSeenAt time.Time `ch:"first_seen_at"`
	LastSeenAt  time.Time `ch:"last_seen_at"`
	CreatedAt   time.Time `ch:"created_at"`
}

// PropertyMap decodes the properties blob. Malformed or empty blobs yield an
// empty map.
func (p *Profile) PropertyMap() map[string]any {
	props := map[string]any{}
	if p == nil || p.Properties == "" {
		return props
	}
	if err := json.Unmarshal([]byte(p.Properties), &props); err != nil {
		return map[string]any{}
	}
	return props
}

// FoldProfiles reduces snapshots into the current profile state. Later
// snapshots win per field; empty strings and zero times never overwrite, and
// property maps merge key by key. Snapshots must be ordered by CreatedAt
// ascending. Returns nil for no snapshots.
func FoldProfiles(snapshots []*Profile) *Profile {
	if len(snapshots) == 0 {
		return nil
	}

	out := &Profile{}
	props := map[string]any{}
	for _, s := range snapshots {
		out.ID = s.ID
		out.ProjectID = s.ProjectID
		setIfNotEmpty(&out.FirstName, s.FirstName)
		setIfNotEmpty(&out.LastName, s.LastName)
		setIfNotEmpty(&out.Email, s.Email)
		setIfNotEmpty(&out.Avatar, s.Avatar)
		if out.FirstSeenAt.IsZero() && !s.FirstSeenAt.IsZero() {
			out.FirstSeenAt = s.FirstSeenAt
		}
		if !s.LastSeenAt.IsZero() {
			out.LastSeenAt = s.LastSeenAt
		}
		out.CreatedAt = s.CreatedAt
		for k, v := range s.PropertyMap() {
			props[k] = v
		}
	}

	out.Properties = EncodeProperties(props)
	return out
}

// EncodeProperties serializes a property map, "{}" for nil or on failure.
func EncodeProperties(props map[string]any) string {
	if len(props) == 0 {
		return "{}"
	}
	b, err := json.Marshal(props)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
