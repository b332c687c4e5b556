package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/queue"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/repository"
)

// sessionEndNamespace derives stable session_end event ids so a retried job
// writes the same row.
var sessionEndNamespace = uuid.MustParse("6f0f7f5c-3a1e-4b8e-9d6a-2b7c1e5d9a40")

// SessionWorker summarizes a session once it has been quiet for Timeout.
type SessionWorker struct {
	sessions  repository.SessionStore
	events    repository.EventWriter
	publisher queue.Publisher
	timeout   time.Duration
	now       func() time.Time
	log       *zap.Logger
}

func NewSessionWorker(sessions repository.SessionStore, events repository.EventWriter, publisher queue.Publisher, timeout time.Duration, log *zap.Logger) *SessionWorker {
	return &SessionWorker{
		sessions:  sessions,
		events:    events,
		publisher: publisher,
		timeout:   timeout,
		now:       time.Now,
		log:       log,
	}
}

func (w *SessionWorker) Handle(ctx context.Context, job *queue.Job) error {
	var sj domain.SessionJob
	if err := job.Bind(&sj); err != nil {
		return err
	}
	if sj.ProjectID == "" || sj.SessionID == "" {
		return fmt.Errorf("%w: session job without project or session id", queue.ErrMalformedJob)
	}

	agg, err := w.sessions.AggregateSession(ctx, sj.ProjectID, sj.SessionID)
	if err != nil {
		return err
	}
	if agg == nil {
		w.log.Info("Session has no events, skipping",
			zap.String("project_id", sj.ProjectID),
			zap.String("session_id", sj.SessionID))
		return nil
	}

	if idle := w.now().Sub(agg.LastEventAt); idle < w.timeout {
		return w.reschedule(ctx, sj, w.timeout-idle)
	}

	session := agg.Summarize()
	if err := w.sessions.InsertSession(ctx, session); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	if _, err := w.events.InsertEvents(ctx, []*domain.Event{w.sessionEnd(session)}); err != nil {
		return fmt.Errorf("failed to insert session_end event: %w", err)
	}

	day := session.CreatedAt.UTC().Truncate(24 * time.Hour)
	err = w.publisher.Enqueue(ctx, domain.TopicRollups,
		domain.RollupJob{ProjectID: sj.ProjectID, Date: day},
		queue.EnqueueOptions{
			IdempotencyKey: fmt.Sprintf("%s:%s:%s", sj.ProjectID, day.Format(time.DateOnly), sj.SessionID),
			GroupID:        sj.ProjectID,
		})
	if err != nil {
		return fmt.Errorf("failed to schedule rollup: %w", err)
	}

	w.log.Debug("Session aggregated",
		zap.String("project_id", sj.ProjectID),
		zap.String("session_id", sj.SessionID),
		zap.Uint64("duration_ms", session.Duration),
		zap.Uint32("screen_views", session.ScreenViews))
	return nil
}

// reschedule checks the session again once it may have gone quiet, or after
// queue.MaxDelay when the remaining wait is longer. Every recheck carries its
// own key: the incoming job's key is marked as processed when it is acked, so
// reusing it would drop the recheck.
func (w *SessionWorker) reschedule(ctx context.Context, sj domain.SessionJob, wait time.Duration) error {
	next := sj
	next.Attempt++
	wait = min(wait, queue.MaxDelay)

	err := w.publisher.Enqueue(ctx, domain.TopicSessions, next, queue.EnqueueOptions{
		IdempotencyKey: recheckKey(next),
		GroupID:        sj.ProjectID,
		Delay:          wait,
	})
	if err != nil {
		return fmt.Errorf("failed to reschedule session: %w", err)
	}

	w.log.Debug("Session still active, rescheduled",
		zap.String("session_id", sj.SessionID),
		zap.Int("attempt", next.Attempt),
		zap.Duration("delay", wait))
	return nil
}

func recheckKey(sj domain.SessionJob) string {
	return fmt.Sprintf("%s:recheck:%d", sj.SessionID, sj.Attempt)
}

func (w *SessionWorker) sessionEnd(s *domain.Session) *domain.Event {
	duration := s.Duration
	screenViews := s.ScreenViews
	return &domain.Event{
		ID:           uuid.NewSHA1(sessionEndNamespace, []byte(s.ProjectID+":"+s.ID)),
		ProjectID:    s.ProjectID,
		Name:         domain.EventSessionEnd,
		DeviceID:     s.DeviceID,
		ProfileID:    s.ProfileID,
		SessionID:    s.ID,
		CreatedAt:    s.EndedAt,
		Path:         s.ExitPath,
		Referrer:     s.Referrer,
		ReferrerName: s.ReferrerName,
		ReferrerType: s.ReferrerType,
		UTMSource:    s.UTMSource,
		UTMMedium:    s.UTMMedium,
		UTMCampaign:  s.UTMCampaign,
		Browser:      s.Browser,
		OS:           s.OS,
		Device:       s.Device,
		Country:      s.Country,
		Region:       s.Region,
		City:         s.City,
		Properties:   "{}",
		Duration:     &duration,
		ScreenViews:  &screenViews,
		Version:      uint64(w.now().UnixNano()),
	}
}
