// Package normalizer turns raw client payloads into canonical events. It
// performs no I/O and is deterministic for a given Input.
package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
)

// Reserved property keys that carry page context when the client does not
// send it as first-class fields. Keys with this prefix are never stored.
const (
	reservedPrefix      = "__"
	reservedPathKey     = "__path"
	reservedReferrerKey = "__referrer"
)

// sessionWindow buckets events of a device into a derived session when the
// client sends no session id.
const sessionWindow = 30 * time.Minute

// Input is everything the normalizer needs to produce one event.
type Input struct {
	Event      *domain.RawEvent
	Meta       domain.RequestMeta
	ID         uuid.UUID
	ReceivedAt time.Time
}

// Normalize builds the canonical event for a track payload. Malformed
// optional fields fall back to null or defaults; an error is returned only
// when the input cannot be typed as a track event at all.
func Normalize(in Input) (*domain.Event, error) {
	raw := in.Event
	if raw == nil {
		return nil, fmt.Errorf("%w: event", domain.ErrMissingField)
	}
	if raw.Kind != domain.KindTrack {
		return nil, fmt.Errorf("%w: %q is not normalized", domain.ErrUnknownEventKind, raw.Kind)
	}
	if raw.Name == "" {
		return nil, fmt.Errorf("%w: name", domain.ErrMissingField)
	}
	if in.Meta.ProjectID == "" {
		return nil, fmt.Errorf("%w: project_id", domain.ErrMissingField)
	}

	createdAt := in.ReceivedAt.UTC()

	rawPath := raw.Path
	if rawPath == "" {
		rawPath = stringProp(raw.Properties, reservedPathKey)
	}
	rawReferrer := raw.Referrer
	if rawReferrer == "" {
		rawReferrer = stringProp(raw.Properties, reservedReferrerKey)
	}

	path, origin := NormalizePath(rawPath)
	query := queryOf(rawPath)
	ref := ClassifyReferrer(rawReferrer, query)
	utm := ExtractUTM(query)
	agent := ParseUserAgent(in.Meta.UserAgent)

	deviceID := raw.DeviceID
	if deviceID == "" {
		deviceID = DeriveDeviceID(in.Meta.ProjectID, in.Meta.ClientIP, in.Meta.UserAgent)
	}
	sessionID := raw.SessionID
	if sessionID == "" {
		sessionID = DeriveSessionID(deviceID, createdAt)
	}

	event := &domain.Event{
		ID:              in.ID,
		ProjectID:       in.Meta.ProjectID,
		Name:            raw.Name,
		DeviceID:        deviceID,
		ProfileID:       raw.ProfileID,
		SessionID:       sessionID,
		CreatedAt:       createdAt,
		ClientTimestamp: raw.Timestamp,
		Path:            path,
		Origin:          origin,
		Referrer:        ref.Host,
		ReferrerName:    ref.Name,
		ReferrerType:    ref.Type,
		UTMSource:       utm.Source,
		UTMMedium:       utm.Medium,
		UTMCampaign:     utm.Campaign,
		UTMTerm:         utm.Term,
		UTMContent:      utm.Content,
		Browser:         agent.Browser,
		BrowserVersion:  agent.BrowserVersion,
		OS:              agent.OS,
		OSVersion:       agent.OSVersion,
		Device:          agent.Device,
		Brand:           agent.Brand,
		Model:           agent.Model,
		Country:         nullable(in.Meta.Geo.Country),
		Region:          nullable(in.Meta.Geo.Region),
		City:            nullable(in.Meta.Geo.City),
		Properties:      domain.EncodeProperties(customProperties(raw.Properties)),
		Version:         uint64(createdAt.UnixNano()),
	}

	return event, nil
}

// DeriveDeviceID returns a stable anonymous device id for clients that do
// not send one.
func DeriveDeviceID(projectID, clientIP, userAgent string) string {
	return hashParts(projectID, clientIP, userAgent)
}

// DeriveSessionID returns a session id shared by events of one device within
// the same 30 minute window.
func DeriveSessionID(deviceID string, at time.Time) string {
	return hashParts(deviceID, fmt.Sprintf("%d", at.UTC().Truncate(sessionWindow).Unix()))
}

func hashParts(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:16])
}

func customProperties(props map[string]any) map[string]any {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		if strings.HasPrefix(k, reservedPrefix) {
			continue
		}
		out[k] = v
	}
	return out
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
