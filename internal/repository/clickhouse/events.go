package clickhouse

import (
	"context"
	"fmt"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
)

const insertEvents = `INSERT INTO events (
	id, project_id, name, device_id, profile_id, session_id, created_at, client_timestamp,
	path, origin, referrer, referrer_name, referrer_type,
	utm_source, utm_medium, utm_campaign, utm_term, utm_content,
	browser, browser_version, os, os_version, device, brand, model,
	country, region, city, properties, duration, screen_views, version
)`

// InsertEvents writes events as one batch.
func (r *Repository) InsertEvents(ctx context.Context, events []*domain.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	batch, err := r.client.Conn().PrepareBatch(ctx, insertEvents)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, e := range events {
		version := e.Version
		if version == 0 {
			version = uint64(r.now().UnixNano())
		}

		properties := e.Properties
		if properties == "" {
			properties = "{}"
		}

		err := batch.Append(
			e.ID, e.ProjectID, e.Name, e.DeviceID, e.ProfileID, e.SessionID, e.CreatedAt, e.ClientTimestamp,
			e.Path, e.Origin, e.Referrer, e.ReferrerName, e.ReferrerType,
			e.UTMSource, e.UTMMedium, e.UTMCampaign, e.UTMTerm, e.UTMContent,
			e.Browser, e.BrowserVersion, e.OS, e.OSVersion, e.Device, e.Brand, e.Model,
			e.Country, e.Region, e.City, properties, e.Duration, e.ScreenViews, version,
		)
		if err != nil {
			_ = batch.Abort()
			return 0, fmt.Errorf("failed to append event %s to batch: %w", e.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("failed to send batch: %w", err)
	}

	return len(events), nil
}
