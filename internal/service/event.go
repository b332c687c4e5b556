package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/geo"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/idempotency"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/normalizer"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/queue"
)

// EventService turns raw client payloads into queued jobs. Each call to
// Process enqueues exactly one job.
type EventService struct {
	publisher queue.Publisher
	aliases   idempotency.AliasStore
	locator   geo.Locator
	validate  *validator.Validate
	now       func() time.Time
	newID     func() (uuid.UUID, error)
	log       *zap.Logger
}

// NewEventService creates a new event service
func NewEventService(publisher queue.Publisher, aliases idempotency.AliasStore, locator geo.Locator, log *zap.Logger) *EventService {
	if aliases == nil {
		aliases = idempotency.NopAliases{}
	}
	if locator == nil {
		locator = geo.Nop{}
	}
	return &EventService{
		publisher: publisher,
		aliases:   aliases,
		locator:   locator,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       time.Now,
		newID:     uuid.NewV7,
		log:       log,
	}
}

// Process validates one payload and enqueues the matching job. It returns the
// event id for track events and the job id otherwise.
func (s *EventService) Process(ctx context.Context, raw *domain.RawEvent, meta domain.RequestMeta) (string, error) {
	if raw == nil {
		return "", fmt.Errorf("%w: payload", domain.ErrMissingField)
	}
	if meta.ProjectID == "" {
		return "", fmt.Errorf("%w: project_id", domain.ErrMissingField)
	}
	if err := s.validate.Struct(raw); err != nil {
		return "", fmt.Errorf("invalid %s payload: %w", raw.Kind, err)
	}

	id, err := s.newID()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}

	switch raw.Kind {
	case domain.KindTrack:
		return s.track(ctx, raw, meta, id)
	case domain.KindIdentify:
		job := domain.ProfileJob{
			Kind:       domain.MutationIdentify,
			ProjectID:  meta.ProjectID,
			ProfileID:  raw.ProfileID,
			DeviceID:   raw.DeviceID,
			FirstName:  raw.FirstName,
			LastName:   raw.LastName,
			Email:      raw.Email,
			Avatar:     raw.Avatar,
			Properties: raw.Properties,
		}
		return s.enqueueProfile(ctx, job, id)
	case domain.KindIncrement, domain.KindDecrement:
		job := domain.ProfileJob{
			Kind:      domain.MutationIncrement,
			ProjectID: meta.ProjectID,
			ProfileID: raw.ProfileID,
			Property:  raw.Property,
			Delta:     delta(raw.Kind, raw.Value),
		}
		return s.enqueueProfile(ctx, job, id)
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownEventKind, raw.Kind)
}

// ProcessBulk processes every payload independently and reports per-item
// failures instead of failing the whole batch.
func (s *EventService) ProcessBulk(ctx context.Context, raws []domain.RawEvent, meta domain.RequestMeta) ([]string, []string, error) {
	var ids []string
	var errs []string

	for i := range raws {
		id, err := s.Process(ctx, &raws[i], meta)
		if err != nil {
			errs = append(errs, fmt.Sprintf("event %d: %v", i, err))
			s.log.Warn("Failed to process event in bulk",
				zap.Int("index", i),
				zap.String("type", string(raws[i].Kind)),
				zap.Error(err))
			continue
		}
		ids = append(ids, id)
	}

	return ids, errs, nil
}

func (s *EventService) track(ctx context.Context, raw *domain.RawEvent, meta domain.RequestMeta, id uuid.UUID) (string, error) {
	if meta.Geo == (domain.Geo{}) && meta.ClientIP != "" {
		meta.Geo = s.locator.Locate(meta.ClientIP)
	}

	if raw.ProfileID == "" && raw.DeviceID != "" {
		profileID, err := s.aliases.Alias(ctx, meta.ProjectID, raw.DeviceID)
		if err != nil {
			s.log.Warn("Failed to resolve device alias",
				zap.String("project_id", meta.ProjectID),
				zap.String("device_id", raw.DeviceID),
				zap.Error(err))
		} else if profileID != "" {
			resolved := *raw
			resolved.ProfileID = profileID
			raw = &resolved
		}
	}

	event, err := normalizer.Normalize(normalizer.Input{
		Event:      raw,
		Meta:       meta,
		ID:         id,
		ReceivedAt: s.now(),
	})
	if err != nil {
		return "", err
	}

	// Events are held unacked until their batch is stored, so on a FIFO
	// queue each event gets its own group rather than blocking its project.
	err = s.publisher.Enqueue(ctx, domain.TopicEvents, event, queue.EnqueueOptions{
		IdempotencyKey: event.ID.String(),
		GroupID:        event.ID.String(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish event to queue: %w", err)
	}

	return event.ID.String(), nil
}

func (s *EventService) enqueueProfile(ctx context.Context, job domain.ProfileJob, id uuid.UUID) (string, error) {
	err := s.publisher.Enqueue(ctx, domain.TopicProfiles, job, queue.EnqueueOptions{
		IdempotencyKey: id.String(),
		GroupID:        job.ProjectID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish profile mutation to queue: %w", err)
	}
	return id.String(), nil
}

// delta maps a value to a signed adjustment. A missing value counts as one.
func delta(kind domain.EventKind, value float64) float64 {
	magnitude := math.Abs(value)
	if magnitude == 0 {
		magnitude = 1
	}
	if kind == domain.KindDecrement {
		return -magnitude
	}
	if value < 0 {
		return value
	}
	return magnitude
}
