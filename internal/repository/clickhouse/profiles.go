package clickhouse

import (
	"context"
	"fmt"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
)

// GetProfile folds every snapshot of the profile in creation order.
func (r *Repository) GetProfile(ctx context.Context, projectID, profileID string) (*domain.Profile, error) {
	var rows []domain.Profile
	err := r.client.Conn().Select(ctx, &rows, `
		SELECT id, project_id, first_name, last_name, email, avatar, properties,
		       first_seen_at, last_seen_at, created_at
		FROM profiles
		WHERE project_id = ? AND id = ?
		ORDER BY created_at ASC`,
		projectID, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to select profile snapshots: %w", err)
	}

	snapshots := make([]*domain.Profile, len(rows))
	for i := range rows {
		snapshots[i] = &rows[i]
	}
	return domain.FoldProfiles(snapshots), nil
}

func (r *Repository) GetProfileNumber(ctx context.Context, projectID, profileID, property string) (float64, error) {
	rows, err := r.client.Conn().Query(ctx, `
		SELECT JSONExtractFloat(properties, ?)
		FROM profiles
		WHERE project_id = ? AND id = ? AND JSONHas(properties, ?)
		ORDER BY created_at DESC
		LIMIT 1`,
		property, projectID, profileID, property)
	if err != nil {
		return 0, fmt.Errorf("failed to query profile property: %w", err)
	}
	defer r.closeRows(rows, "profile property")

	var value float64
	if rows.Next() {
		if err := rows.Scan(&value); err != nil {
			return 0, fmt.Errorf("failed to scan profile property: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating profile property rows: %w", err)
	}
	return value, nil
}

func (r *Repository) InsertProfile(ctx context.Context, profile *domain.Profile) error {
	batch, err := r.client.Conn().PrepareBatch(ctx, "INSERT INTO profiles")
	if err != nil {
		return fmt.Errorf("failed to prepare profile insert: %w", err)
	}
	if err := batch.AppendStruct(profile); err != nil {
		_ = batch.Abort()
		return fmt.Errorf("failed to append profile: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}
