package sqs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	envConfig "github.com/BarkinBalci/product-analytics-pipeline/internal/config"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/queue"
)

// ErrDelayOnFIFO is returned for a delayed job on a FIFO queue, which only
// supports a queue-wide delay.
var ErrDelayOnFIFO = errors.New("per-message delay is not supported on FIFO queues")

// delayedTopics enqueue jobs with a Delay and need standard queues.
var delayedTopics = []domain.Topic{domain.TopicSessions}

// API is the subset of the SQS SDK client used here.
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Client publishes jobs to one SQS queue per topic.
type Client struct {
	api  API
	urls map[domain.Topic]string
	log  *zap.Logger
	now  func() time.Time
}

// NewClient creates a new SQS client
func NewClient(ctx context.Context, SQSConfig envConfig.SQS, log *zap.Logger) (*Client, error) {
	configOpts := []func(*config.LoadOptions) error{
		config.WithRegion(SQSConfig.Region),
	}

	var clientOpts []func(*sqs.Options)

	// Configure for local development with ElasticMQ
	if SQSConfig.Endpoint != "" {
		log.Info("Configuring SQS for local development",
			zap.String("endpoint", SQSConfig.Endpoint))
		configOpts = append(configOpts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))

		clientOpts = append(clientOpts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(SQSConfig.Endpoint)
		})
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	urls := map[domain.Topic]string{
		domain.TopicEvents:   SQSConfig.EventsQueueURL,
		domain.TopicProfiles: SQSConfig.ProfilesQueueURL,
		domain.TopicSessions: SQSConfig.SessionsQueueURL,
		domain.TopicRollups:  SQSConfig.RollupsQueueURL,
	}
	if err := CheckURLs(urls); err != nil {
		return nil, err
	}

	log.Info("SQS client created",
		zap.String("region", SQSConfig.Region),
		zap.Int("topics", len(urls)))

	return New(sqs.NewFromConfig(cfg, clientOpts...), urls, log), nil
}

// CheckURLs rejects FIFO queues for topics whose jobs are delayed.
func CheckURLs(urls map[domain.Topic]string) error {
	for _, topic := range delayedTopics {
		if isFIFO(urls[topic]) {
			return fmt.Errorf("queue for topic %q: %w", topic, ErrDelayOnFIFO)
		}
	}
	return nil
}

// New wraps an existing SQS API with a topic to queue URL map.
func New(api API, urls map[domain.Topic]string, log *zap.Logger) *Client {
	return &Client{api: api, urls: urls, log: log, now: time.Now}
}

// Enqueue publishes payload as a job on topic.
func (c *Client) Enqueue(ctx context.Context, topic domain.Topic, payload any, opts queue.EnqueueOptions) error {
	url, err := c.url(topic)
	if err != nil {
		return err
	}

	job, err := queue.NewJob(topic, payload, opts.IdempotencyKey, c.now())
	if err != nil {
		return err
	}
	body, err := job.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"Topic": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(topic)),
			},
		},
	}

	if isFIFO(url) {
		if opts.Delay > 0 {
			return fmt.Errorf("topic %q: %w", topic, ErrDelayOnFIFO)
		}
		group := opts.GroupID
		if group == "" {
			group = string(topic)
		}
		input.MessageGroupId = aws.String(group)
		if opts.IdempotencyKey != "" {
			input.MessageDeduplicationId = aws.String(opts.IdempotencyKey)
		}
	} else if opts.Delay > 0 {
		input.DelaySeconds = int32(min(opts.Delay, queue.MaxDelay) / time.Second)
	}

	if _, err := c.api.SendMessage(ctx, input); err != nil {
		c.log.Error("Failed to send message to SQS",
			zap.String("topic", string(topic)),
			zap.String("idempotency_key", opts.IdempotencyKey),
			zap.Error(err))
		return fmt.Errorf("failed to send message to SQS: %w", err)
	}

	c.log.Debug("Job published to SQS",
		zap.String("topic", string(topic)),
		zap.String("idempotency_key", opts.IdempotencyKey))

	return nil
}

// ForTopic returns a consumer bound to the topic's queue.
func (c *Client) ForTopic(topic domain.Topic) (*TopicClient, error) {
	url, err := c.url(topic)
	if err != nil {
		return nil, err
	}
	return &TopicClient{api: c.api, url: url}, nil
}

func (c *Client) url(topic domain.Topic) (string, error) {
	url, ok := c.urls[topic]
	if !ok || url == "" {
		return "", fmt.Errorf("no queue configured for topic %q", topic)
	}
	return url, nil
}

func isFIFO(url string) bool {
	return strings.HasSuffix(url, ".fifo")
}

// TopicClient implements queue.QueueConsumer for a single queue.
type TopicClient struct {
	api API
	url string
}

// ReceiveMessages receives messages from SQS
func (t *TopicClient) ReceiveMessages(ctx context.Context, input *sqs.ReceiveMessageInput) (*sqs.ReceiveMessageOutput, error) {
	return t.api.ReceiveMessage(ctx, input)
}

// DeleteMessage deletes a message from SQS
func (t *TopicClient) DeleteMessage(ctx context.Context, input *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error) {
	return t.api.DeleteMessage(ctx, input)
}

// QueueURL returns the bound queue URL
func (t *TopicClient) QueueURL() string {
	return t.url
}
