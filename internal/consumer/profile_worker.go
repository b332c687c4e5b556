package consumer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/idempotency"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/queue"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/repository"
)

// ProfileWorker applies profile mutations as read-then-append sequences.
// Two concurrent increments of the same property can both read the same
// current value, in which case one update is lost. Nothing guards against
// that; profile state is whatever the snapshots fold to.
type ProfileWorker struct {
	repo    repository.ProfileStore
	aliases idempotency.AliasStore
	now     func() time.Time
	log     *zap.Logger
}

func NewProfileWorker(repo repository.ProfileStore, aliases idempotency.AliasStore, log *zap.Logger) *ProfileWorker {
	return &ProfileWorker{repo: repo, aliases: aliases, now: time.Now, log: log}
}

func (w *ProfileWorker) Handle(ctx context.Context, job *queue.Job) error {
	var pj domain.ProfileJob
	if err := job.Bind(&pj); err != nil {
		return err
	}
	if pj.ProjectID == "" || pj.ProfileID == "" {
		return fmt.Errorf("%w: profile job without project or profile id", queue.ErrMalformedJob)
	}

	switch pj.Kind {
	case domain.MutationIdentify:
		return w.identify(ctx, &pj)
	case domain.MutationIncrement:
		if pj.Property == "" {
			return fmt.Errorf("%w: increment without property", queue.ErrMalformedJob)
		}
		return w.increment(ctx, &pj)
	}
	return fmt.Errorf("%w: unknown profile mutation %q", queue.ErrMalformedJob, pj.Kind)
}

// identify appends a snapshot with the job's traits merged over the current
// state and records the device alias.
func (w *ProfileWorker) identify(ctx context.Context, pj *domain.ProfileJob) error {
	current, err := w.repo.GetProfile(ctx, pj.ProjectID, pj.ProfileID)
	if err != nil {
		return fmt.Errorf("failed to read profile: %w", err)
	}

	now := w.now().UTC()
	next := &domain.Profile{
		ID:          pj.ProfileID,
		ProjectID:   pj.ProjectID,
		FirstSeenAt: now,
		LastSeenAt:  now,
		CreatedAt:   now,
	}

	props := current.PropertyMap()
	if current != nil {
		next.FirstName, next.LastName = current.FirstName, current.LastName
		next.Email, next.Avatar = current.Email, current.Avatar
		if !current.FirstSeenAt.IsZero() {
			next.FirstSeenAt = current.FirstSeenAt
		}
	}
	for k, v := range pj.Properties {
		props[k] = v
	}
	next.Properties = domain.EncodeProperties(props)
	overwrite(&next.FirstName, pj.FirstName)
	overwrite(&next.LastName, pj.LastName)
	overwrite(&next.Email, pj.Email)
	overwrite(&next.Avatar, pj.Avatar)

	if err := w.repo.InsertProfile(ctx, next); err != nil {
		return fmt.Errorf("failed to append profile snapshot: %w", err)
	}

	if pj.DeviceID != "" {
		if err := w.aliases.SetAlias(ctx, pj.ProjectID, pj.DeviceID, pj.ProfileID); err != nil {
			return fmt.Errorf("failed to record device alias: %w", err)
		}
	}

	w.log.Debug("Profile identified",
		zap.String("project_id", pj.ProjectID),
		zap.String("profile_id", pj.ProfileID),
		zap.Bool("existing", current != nil))
	return nil
}

// increment appends a snapshot holding only the adjusted property.
func (w *ProfileWorker) increment(ctx context.Context, pj *domain.ProfileJob) error {
	value, err := w.repo.GetProfileNumber(ctx, pj.ProjectID, pj.ProfileID, pj.Property)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", pj.Property, err)
	}

	now := w.now().UTC()
	next := &domain.Profile{
		ID:          pj.ProfileID,
		ProjectID:   pj.ProjectID,
		Properties:  domain.EncodeProperties(map[string]any{pj.Property: value + pj.Delta}),
		FirstSeenAt: now,
		LastSeenAt:  now,
		CreatedAt:   now,
	}
	if err := w.repo.InsertProfile(ctx, next); err != nil {
		return fmt.Errorf("failed to append profile snapshot: %w", err)
	}

	w.log.Debug("Profile property adjusted",
		zap.String("project_id", pj.ProjectID),
		zap.String("profile_id", pj.ProfileID),
		zap.String("property", pj.Property),
		zap.Float64("delta", pj.Delta))
	return nil
}

func overwrite(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
