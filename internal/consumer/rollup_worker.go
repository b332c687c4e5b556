package consumer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/queue"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/repository"
)

// RollupWorker recomputes the daily rollup row for a project.
type RollupWorker struct {
	repo repository.RollupStore
	log  *zap.Logger
}

func NewRollupWorker(repo repository.RollupStore, log *zap.Logger) *RollupWorker {
	return &RollupWorker{repo: repo, log: log}
}

func (w *RollupWorker) Handle(ctx context.Context, job *queue.Job) error {
	var rj domain.RollupJob
	if err := job.Bind(&rj); err != nil {
		return err
	}
	if rj.ProjectID == "" || rj.Date.IsZero() {
		return fmt.Errorf("%w: rollup job without project or date", queue.ErrMalformedJob)
	}

	if err := w.repo.RefreshDailyRollup(ctx, rj.ProjectID, rj.Date.UTC()); err != nil {
		return err
	}

	w.log.Debug("Rollup refreshed",
		zap.String("project_id", rj.ProjectID),
		zap.Time("date", rj.Date))
	return nil
}
