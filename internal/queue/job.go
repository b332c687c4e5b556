package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
)

// ErrMalformedJob marks a message body that can never be processed.
var ErrMalformedJob = errors.New("malformed job")

// Job is the envelope every queued message carries.
type Job struct {
	Topic          domain.Topic    `json:"topic"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
	Payload        json.RawMessage `json:"payload"`
}

// NewJob wraps payload for topic.
func NewJob(topic domain.Topic, payload any, key string, now time.Time) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}
	return &Job{
		Topic:          topic,
		IdempotencyKey: key,
		EnqueuedAt:     now.UTC(),
		Payload:        raw,
	}, nil
}

func (j *Job) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// Decode parses a message body. Errors wrap ErrMalformedJob.
func Decode(body []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	if job.Topic == "" {
		return nil, fmt.Errorf("%w: missing topic", ErrMalformedJob)
	}
	if len(job.Payload) == 0 || string(job.Payload) == "null" {
		return nil, fmt.Errorf("%w: missing payload", ErrMalformedJob)
	}
	return &job, nil
}

// Bind unmarshals the payload into v. Errors wrap ErrMalformedJob.
func (j *Job) Bind(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedJob, j.Topic, err)
	}
	return nil
}
