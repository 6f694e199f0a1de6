package billing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnp2003/captify-ai/app/logger"
	"github.com/johnp2003/captify-ai/app/models"
)

type fakeSQS struct {
	sent    []*sqs.SendMessageInput
	inbox   []sqstypes.Message
	deleted []string
	sendErr error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	msgs := f.inbox
	f.inbox = nil
	return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSReplayQueue_Publish(t *testing.T) {
	fake := &fakeSQS{}
	q := NewSQSReplayQueue(fake, "https://sqs.local/replay", logger.NewTestLogger(t))

	rec := models.ReplayRecord{EventID: "evt_1", EventType: EventCheckoutCompleted, UserID: "U1", SubscriptionID: "sub_123", PriceID: "price_x", Reason: "boom"}
	require.NoError(t, q.Publish(context.Background(), rec))
	require.Len(t, fake.sent, 1)
	assert.Equal(t, "https://sqs.local/replay", aws.ToString(fake.sent[0].QueueUrl))

	var got models.ReplayRecord
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(fake.sent[0].MessageBody)), &got))
	assert.Equal(t, rec, got)

	fake.sendErr = errors.New("throttled")
	assert.Error(t, q.Publish(context.Background(), rec))
}

func TestSQSReplayQueue_ReceiveOnce(t *testing.T) {
	good, _ := json.Marshal(models.ReplayRecord{EventID: "evt_ok", UserID: "U1", SubscriptionID: "sub_1"})
	failing, _ := json.Marshal(models.ReplayRecord{EventID: "evt_fail", UserID: "U2", SubscriptionID: "sub_2"})
	fake := &fakeSQS{inbox: []sqstypes.Message{
		{Body: aws.String(string(good)), ReceiptHandle: aws.String("r-ok")},
		{Body: aws.String(string(failing)), ReceiptHandle: aws.String("r-fail")},
		{Body: aws.String("not json"), ReceiptHandle: aws.String("r-bad")},
	}}
	q := NewSQSReplayQueue(fake, "https://sqs.local/replay", logger.NewTestLogger(t))

	var applied []string
	n, err := q.ReceiveOnce(context.Background(), func(_ context.Context, rec models.ReplayRecord) error {
		if rec.EventID == "evt_fail" {
			return errors.New("still down")
		}
		applied = append(applied, rec.EventID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"evt_ok"}, applied)
	assert.ElementsMatch(t, []string{"r-ok", "r-bad"}, fake.deleted)
}

func TestSQSReplayQueue_ConsumeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q := NewSQSReplayQueue(&fakeSQS{}, "https://sqs.local/replay", logger.NewNoOpLogger())
	assert.NoError(t, q.Consume(ctx, func(context.Context, models.ReplayRecord) error { return nil }))
}
