// Package sqs implements the job queue on Amazon SQS using long polling.
package sqs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeworker/internal/queue"
	"github.com/JakeFAU/scrapeworker/internal/scraping"
)

// maxWaitSeconds is the SQS long-poll ceiling.
const maxWaitSeconds = 20

// messageGroup is used for FIFO queues so every job shares one ordered group.
const messageGroup = "scraping-jobs"

// API is the subset of the SQS client used by the queue.
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Config identifies the queue.
type Config struct {
	QueueURL string
	Region   string
	Endpoint string
}

// Queue hands each received message to exactly one consumer by deleting it on receipt.
type Queue struct {
	api      API
	queueURL string
	fifo     bool
	logger   *zap.Logger
	closed   atomic.Bool
}

// New builds an SQS client from the default AWS credential chain.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Queue, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		return nil, errors.New("sqs queue url is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithAPI(client, cfg.QueueURL, logger), nil
}

// NewWithAPI wraps an existing client.
func NewWithAPI(api API, queueURL string, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		api:      api,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
		logger:   logger,
	}
}

// Enqueue sends the job's wire form.
func (q *Queue) Enqueue(ctx context.Context, job scraping.Job) error {
	if q.closed.Load() {
		return queue.ErrClosed
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	}
	if q.fifo {
		input.MessageGroupId = aws.String(messageGroup)
		input.MessageDeduplicationId = aws.String(job.ID)
	}
	if _, err := q.api.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Dequeue long-polls for one message and deletes it before decoding.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*scraping.Job, error) {
	if q.closed.Load() {
		return nil, queue.ErrClosed
	}
	out, err := q.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     waitSeconds(timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("receive message: %w", err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}
	msg := out.Messages[0]
	if _, err := q.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	}); err != nil {
		return nil, fmt.Errorf("delete message %s: %w", aws.ToString(msg.MessageId), err)
	}
	job, err := scraping.DecodeJob([]byte(aws.ToString(msg.Body)))
	if err != nil {
		q.logger.Error("Dropping undecodable job payload",
			zap.String("message_id", aws.ToString(msg.MessageId)), zap.Error(err))
		return nil, fmt.Errorf("decode message %s: %w", aws.ToString(msg.MessageId), err)
	}
	return &job, nil
}

// Close marks the queue closed; the SQS client holds no connection to release.
func (q *Queue) Close() error {
	q.closed.Store(true)
	return nil
}

func waitSeconds(timeout time.Duration) int32 {
	secs := int32(math.Ceil(timeout.Seconds()))
	switch {
	case secs < 0:
		return 0
	case secs > maxWaitSeconds:
		return maxWaitSeconds
	default:
		return secs
	}
}
