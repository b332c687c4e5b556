package clickhouse

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/config"
)

const (
	clientName        = "product-analytics-pipeline"
	connectMaxElapsed = 30 * time.Second
)

// Client owns the ClickHouse connection pool.
type Client struct {
	conn driver.Conn
	log  *zap.Logger
}

// NewClient opens the pool and waits for the server to answer a ping,
// retrying with exponential backoff for up to 30s.
func NewClient(ctx context.Context, cfg *config.ClickHouse, log *zap.Logger) (*Client, error) {
	log.Info("Connecting to ClickHouse",
		zap.String("host", cfg.Host),
		zap.String("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.Bool("use_tls", cfg.UseTLS))

	conn, err := clickhouse.Open(options(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = connectMaxElapsed
	ping := func() error {
		if err := conn.Ping(ctx); err != nil {
			log.Warn("ClickHouse not ready", zap.Error(err))
			return err
		}
		return nil
	}
	if err := backoff.Retry(ping, backoff.WithContext(policy, ctx)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Info("ClickHouse connection established")

	return &Client{conn: conn, log: log}, nil
}

func options(cfg *config.ClickHouse) *clickhouse.Options {
	opts := &clickhouse.Options{
		Addr: []string{net.JoinHostPort(cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: clientName, Version: "1"}},
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
			// Funnel joins read a missing step as a zero timestamp.
			"join_use_nulls": 0,
		},
		Compression:      &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		DialTimeout:      5 * time.Second,
		MaxOpenConns:     cfg.MaxOpenConns,
		MaxIdleConns:     cfg.MaxIdleConns,
		ConnMaxLifetime:  time.Duration(cfg.ConnMaxLifetime) * time.Second,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
		BlockBufferSize:  10,
	}
	if cfg.UseTLS {
		opts.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// Conn returns the underlying driver connection.
func (c *Client) Conn() driver.Conn {
	return c.conn
}

func (c *Client) Close() error {
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("failed to close ClickHouse connection: %w", err)
	}
	c.log.Info("ClickHouse connection closed")
	return nil
}
