package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/querybuilder"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/repository"
)

var _ repository.Store = (*Repository)(nil)

// Repository implements repository.Store for ClickHouse
type Repository struct {
	client *Client
	log    *zap.Logger
	now    func() time.Time
}

// NewRepository creates a new ClickHouse repository
func NewRepository(client *Client, log *zap.Logger) *Repository {
	return &Repository{
		client: client,
		log:    log,
		now:    time.Now,
	}
}

// Ping checks if the ClickHouse connection is alive
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Conn().Ping(ctx)
}

// Close closes the ClickHouse connection
func (r *Repository) Close() error {
	return r.client.Close()
}

func (r *Repository) closeRows(rows driver.Rows, what string) {
	if err := rows.Close(); err != nil {
		r.log.Error("Failed to close rows", zap.String("query", what), zap.Error(err))
	}
}

// queryRows runs q and calls scan for every row.
func (r *Repository) queryRows(ctx context.Context, what string, q querybuilder.Expr, scan func(driver.Rows) error) error {
	rows, err := r.client.Conn().Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", what, err)
	}
	defer r.closeRows(rows, what)

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("failed to scan %s row: %w", what, err)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating %s rows: %w", what, err)
	}
	return nil
}
