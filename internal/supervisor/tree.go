package supervisor

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/logger"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay, in seconds.
	FailureDecay float64

	// FailureBackoff is the duration to wait once the threshold is exceeded.
	FailureBackoff time.Duration

	// ShutdownTimeout bounds how long each service gets to stop.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's built-in defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the process supervisor. Queue consumers and HTTP servers live
// under separate child supervisors so a crash looping consumer does not
// take the health endpoint down with it.
type Tree struct {
	root      *suture.Supervisor
	consumers *suture.Supervisor
	http      *suture.Supervisor
	config    TreeConfig
}

// NewTree creates a supervisor tree named name. Zero config values fall
// back to DefaultTreeConfig.
func NewTree(name string, config TreeConfig, log *zap.Logger) *Tree {
	def := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = def.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = def.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}

	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	rootSpec := childSpec
	rootSpec.EventHook = logger.SupervisorHook(log)

	root := suture.New(name, rootSpec)
	consumers := suture.New("consumers", childSpec)
	httpLayer := suture.New("http", childSpec)
	root.Add(consumers)
	root.Add(httpLayer)

	return &Tree{
		root:      root,
		consumers: consumers,
		http:      httpLayer,
		config:    config,
	}
}

// Config returns the effective configuration.
func (t *Tree) Config() TreeConfig {
	return t.config
}

// AddConsumer adds a queue consumer to the consumers layer.
func (t *Tree) AddConsumer(svc suture.Service) suture.ServiceToken {
	return t.consumers.Add(svc)
}

// AddHTTP adds an HTTP server to the http layer.
func (t *Tree) AddHTTP(svc suture.Service) suture.ServiceToken {
	return t.http.Add(svc)
}

// Serve blocks until ctx is cancelled or the root supervisor terminates.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the tree in its own goroutine.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}
