// Package jobqueue notifies the evaluation worker fleet about new pending
// submission requests. The request file in the store stays the source of
// truth; a lost notification only delays pickup.
package jobqueue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/klauspost/compress/zstd"
)

type JobNotification struct {
	JobID         string `json:"job_uuid"`
	Model         string `json:"model"`
	Revision      string `json:"revision"`
	Precision     string `json:"precision"`
	WeightType    string `json:"weight_type"`
	RequestKey    string `json:"request_key"`
	SubmittedTime string `json:"submitted_time"`
}

type Publisher interface {
	Publish(ctx context.Context, job JobNotification) error
}

type SqsClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type SqsPublisher struct {
	client   SqsClient
	queueUrl string
	logger   *slog.Logger
}

func NewSqsPublisher(client SqsClient, queueUrl string) *SqsPublisher {
	return &SqsPublisher{
		client:   client,
		queueUrl: queueUrl,
		logger:   slog.Default().With("module", "jobqueue"),
	}
}

func (p *SqsPublisher) Publish(ctx context.Context, job JobNotification) error {
	body, err := Encode(job)
	if err != nil {
		return err
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueUrl),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("failed to send message to job queue: %w", err)
	}
	p.logger.Info("published evaluation job", "job_uuid", job.JobID, "model", job.Model, "revision", job.Revision)
	return nil
}

// Encode marshals a notification to json, compresses it with zstd and
// encodes the result in base64.
func Encode(job JobNotification) (string, error) {
	jsonReq, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job notification: %w", err)
	}

	zstdEncoder, err := zstd.NewWriter(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer zstdEncoder.Close()

	compressed := zstdEncoder.EncodeAll(jsonReq, make([]byte, 0, len(jsonReq)))
	return base64.StdEncoding.EncodeToString(compressed), nil
}

func Decode(body string) (JobNotification, error) {
	compressed, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return JobNotification{}, fmt.Errorf("failed to decode base64: %w", err)
	}
	zstdDecoder, err := zstd.NewReader(nil)
	if err != nil {
		return JobNotification{}, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer zstdDecoder.Close()

	jsonReq, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return JobNotification{}, fmt.Errorf("failed to decompress: %w", err)
	}
	var job JobNotification
	if err := json.Unmarshal(jsonReq, &job); err != nil {
		return JobNotification{}, fmt.Errorf("failed to unmarshal job notification: %w", err)
	}
	return job, nil
}

// NopPublisher is used when no job queue is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, job JobNotification) error {
	return nil
}
