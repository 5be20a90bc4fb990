package events

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// sqsSender is the subset of *sqs.Client the relay uses.
type sqsSender interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSRelay sends change envelopes to an SQS queue.
type SQSRelay struct {
	client   sqsSender
	queueURL string
}

func NewSQSRelay(ctx context.Context, queueURL string) (*SQSRelay, error) {
	if queueURL == "" {
		return nil, fmt.Errorf("sqs relay: queue url required")
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqs relay: load aws config: %w", err)
	}
	client := sqs.New(sqs.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: cfg.BaseEndpoint,
	})
	return &SQSRelay{client: client, queueURL: queueURL}, nil
}

func (r *SQSRelay) Name() string { return "sqs" }

func (r *SQSRelay) Publish(ctx context.Context, msg Message) error {
	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(r.queueURL),
		MessageBody: aws.String(string(msg.Body)),
	}
	// SQS rejects empty attribute values.
	if msg.Key != "" {
		in.MessageAttributes = map[string]types.MessageAttributeValue{
			"tenant_id": {DataType: aws.String("String"), StringValue: aws.String(msg.Key)},
		}
	}
	_, err := r.client.SendMessage(ctx, in)
	if err != nil {
		return fmt.Errorf("send to sqs: %w", err)
	}
	return nil
}

func (r *SQSRelay) Close() error { return nil }
