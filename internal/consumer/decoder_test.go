package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/queue"
)

func jobMessage(t *testing.T, id string, topic domain.Topic, payload any, key string) types.Message {
	t.Helper()
	job, err := queue.NewJob(topic, payload, key, testTimestamp)
	require.NoError(t, err)
	body, err := job.Encode()
	require.NoError(t, err)
	return types.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String("receipt-" + id),
		Body:          aws.String(string(body)),
	}
}

// runDecoder feeds msgs through a decoder stage and returns what it emitted.
func runDecoder(d *DecoderStage, msgs ...types.Message) []*Envelope {
	in := make(chan types.Message, len(msgs))
	out := make(chan *Envelope, len(msgs))
	for _, m := range msgs {
		in <- m
	}
	close(in)

	d.Start(context.Background(), in, out)

	var envelopes []*Envelope
	for env := range out {
		envelopes = append(envelopes, env)
	}
	return envelopes
}

func expectDelete(m *MockQueueConsumer, receipt string) {
	m.On("DeleteMessage", mock.Anything, mock.MatchedBy(func(in *sqs.DeleteMessageInput) bool {
		return aws.ToString(in.ReceiptHandle) == receipt && aws.ToString(in.QueueUrl) == testQueueURL
	})).Return(&sqs.DeleteMessageOutput{}, nil).Once()
}

func TestDecoderStage_EventJob(t *testing.T) {
	mockConsumer := new(MockQueueConsumer)
	mockConsumer.On("QueueURL").Return(testQueueURL)
	guard := newFakeGuard()
	decoder := NewDecoderStage(mockConsumer, domain.TopicEvents, guard, zap.NewNop())

	event := newTestEvent("d1", domain.EventScreenView)
	msg := jobMessage(t, "m1", domain.TopicEvents, event, event.ID.String())

	envelopes := runDecoder(decoder, msg)
	require.Len(t, envelopes, 1)
	require.NotNil(t, envelopes[0].Event)
	assert.Equal(t, event.ID, envelopes[0].Event.ID)
	assert.Equal(t, "d1", envelopes[0].Event.DeviceID)
	mockConsumer.AssertNotCalled(t, "DeleteMessage", mock.Anything, mock.Anything)

	// Ack deletes the message and records the key.
	expectDelete(mockConsumer, "receipt-m1")
	require.NoError(t, envelopes[0].Ack(context.Background()))
	mockConsumer.AssertExpectations(t)
	assert.Equal(t, []string{"events:" + event.ID.String()}, guard.Marked())

	// Nack leaves the message for redelivery.
	require.NoError(t, envelopes[0].Nack(context.Background()))
	mockConsumer.AssertNumberOfCalls(t, "DeleteMessage", 1)
}

func TestDecoderStage_MalformedMessagesAreDeleted(t *testing.T) {
	mockConsumer := new(MockQueueConsumer)
	mockConsumer.On("QueueURL").Return(testQueueURL)
	decoder := NewDecoderStage(mockConsumer, domain.TopicEvents, newFakeGuard(), zap.NewNop())

	garbage := types.Message{
		MessageId:     aws.String("m1"),
		ReceiptHandle: aws.String("receipt-m1"),
		Body:          aws.String("not json"),
	}
	wrongTopic := jobMessage(t, "m2", domain.TopicSessions, domain.SessionJob{ProjectID: "p", SessionID: "s"}, "s")
	missingIDs := jobMessage(t, "m3", domain.TopicEvents, &domain.Event{ProjectID: "p", Name: "x"}, "k3")

	expectDelete(mockConsumer, "receipt-m1")
	expectDelete(mockConsumer, "receipt-m2")
	expectDelete(mockConsumer, "receipt-m3")

	envelopes := runDecoder(decoder, garbage, wrongTopic, missingIDs)

	assert.Empty(t, envelopes)
	mockConsumer.AssertExpectations(t)
}

func TestDecoderStage_DuplicateIsDeletedWithoutEmitting(t *testing.T) {
	mockConsumer := new(MockQueueConsumer)
	mockConsumer.On("QueueURL").Return(testQueueURL)
	guard := newFakeGuard("session-aggregations:sess_1")
	decoder := NewDecoderStage(mockConsumer, domain.TopicSessions, guard, zap.NewNop())

	dup := jobMessage(t, "m1", domain.TopicSessions, domain.SessionJob{ProjectID: "p", SessionID: "sess_1"}, "sess_1")
	fresh := jobMessage(t, "m2", domain.TopicSessions, domain.SessionJob{ProjectID: "p", SessionID: "sess_2"}, "sess_2")
	expectDelete(mockConsumer, "receipt-m1")

	envelopes := runDecoder(decoder, dup, fresh)

	require.Len(t, envelopes, 1)
	assert.Nil(t, envelopes[0].Event)
	assert.Equal(t, "sess_2", envelopes[0].Job.IdempotencyKey)
	mockConsumer.AssertExpectations(t)
}

func TestDecoderStage_KeyFallsBackToMessageID(t *testing.T) {
	mockConsumer := new(MockQueueConsumer)
	mockConsumer.On("QueueURL").Return(testQueueURL)
	guard := newFakeGuard()
	decoder := NewDecoderStage(mockConsumer, domain.TopicRollups, guard, zap.NewNop())

	msg := jobMessage(t, "m9", domain.TopicRollups, domain.RollupJob{ProjectID: "p", Date: testTimestamp}, "")
	envelopes := runDecoder(decoder, msg)
	require.Len(t, envelopes, 1)

	expectDelete(mockConsumer, "receipt-m9")
	require.NoError(t, envelopes[0].Ack(context.Background()))
	assert.Equal(t, []string{"rollup-aggregations:m9"}, guard.Marked())
}

func TestDecoderStage_GuardErrorLeavesMessage(t *testing.T) {
	mockConsumer := new(MockQueueConsumer)
	mockConsumer.On("QueueURL").Return(testQueueURL)
	guard := newFakeGuard()
	guard.seenErr = errors.New("valkey down")
	decoder := NewDecoderStage(mockConsumer, domain.TopicSessions, guard, zap.NewNop())

	msg := jobMessage(t, "m1", domain.TopicSessions, domain.SessionJob{ProjectID: "p", SessionID: "s"}, "s")
	envelopes := runDecoder(decoder, msg)

	assert.Empty(t, envelopes)
	mockConsumer.AssertNotCalled(t, "DeleteMessage", mock.Anything, mock.Anything)
}

func TestDecoderStage_ContextCancellation(t *testing.T) {
	decoder := NewDecoderStage(new(MockQueueConsumer), domain.TopicEvents, newFakeGuard(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan *Envelope)
	decoder.Start(ctx, make(chan types.Message), out)

	_, ok := <-out
	assert.False(t, ok, "output should be closed after cancellation")
}
