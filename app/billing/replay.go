package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/johnp2003/captify-ai/app/logger"
	"github.com/johnp2003/captify-ai/app/models"
)

// ReplayPublisher durably records a reconciliation that failed after verification.
type ReplayPublisher interface {
	Publish(ctx context.Context, rec models.ReplayRecord) error
}

// SQSAPI is the subset of the SQS client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSReplayQueue publishes and consumes replay records on one queue.
type SQSReplayQueue struct {
	client   SQSAPI
	queueURL string
	log      logger.Logger
}

func NewSQSReplayQueue(client SQSAPI, queueURL string, log logger.Logger) *SQSReplayQueue {
	return &SQSReplayQueue{client: client, queueURL: queueURL, log: log}
}

func (q *SQSReplayQueue) Publish(ctx context.Context, rec models.ReplayRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(rec.EventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish replay record for %s: %w", rec.EventID, err)
	}
	return nil
}

// ReplayFunc applies one replay record. Returning an error leaves the message on the
// queue so it becomes visible again after the visibility timeout.
type ReplayFunc func(ctx context.Context, rec models.ReplayRecord) error

// Consume long-polls the queue until ctx is cancelled.
func (q *SQSReplayQueue) Consume(ctx context.Context, apply ReplayFunc) error {
	q.log.Info("replay consumer started", map[string]interface{}{"queue_url": q.queueURL})
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, err := q.ReceiveOnce(ctx, apply)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			q.log.WithError(err).Warn("receive replay messages failed", nil)
			sleepCtx(ctx, 5*time.Second)
			continue
		}
		if n == 0 {
			sleepCtx(ctx, 2*time.Second)
		}
	}
}

// ReceiveOnce performs a single long poll and applies what it got. It returns the number
// of messages received.
func (q *SQSReplayQueue) ReceiveOnce(ctx context.Context, apply ReplayFunc) (int, error) {
	recvCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	resp, err := q.client.ReceiveMessage(recvCtx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   120,
	})
	cancel()
	if err != nil {
		return 0, err
	}

	for _, m := range resp.Messages {
		if m.Body == nil {
			q.deleteMessage(ctx, m)
			continue
		}
		var rec models.ReplayRecord
		if err := json.Unmarshal([]byte(*m.Body), &rec); err != nil {
			q.log.WithError(err).Error("undecodable replay record, dropping", map[string]interface{}{"body": *m.Body})
			q.deleteMessage(ctx, m)
			continue
		}

		fields := map[string]interface{}{
			"event_id":        rec.EventID,
			"user_id":         rec.UserID,
			"subscription_id": rec.SubscriptionID,
		}
		applyCtx, applyCancel := context.WithTimeout(ctx, time.Minute)
		err := apply(applyCtx, rec)
		applyCancel()
		if err != nil {
			q.log.WithError(err).Warn("replay failed, leaving message for retry", fields)
			continue
		}
		q.log.Info("replay applied", fields)
		q.deleteMessage(ctx, m)
	}
	return len(resp.Messages), nil
}

func (q *SQSReplayQueue) deleteMessage(ctx context.Context, m sqstypes.Message) {
	if m.ReceiptHandle == nil {
		return
	}
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		q.log.WithError(err).Warn("delete replay message failed", nil)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// LogReplayPublisher only logs. It is used when no replay queue is configured.
type LogReplayPublisher struct {
	Log logger.Logger
}

func (p LogReplayPublisher) Publish(_ context.Context, rec models.ReplayRecord) error {
	p.Log.Error("replay queue not configured, manual replay required", map[string]interface{}{
		"event_id":        rec.EventID,
		"event_type":      rec.EventType,
		"user_id":         rec.UserID,
		"subscription_id": rec.SubscriptionID,
		"price_id":        rec.PriceID,
		"reason":          rec.Reason,
	})
	return nil
}
