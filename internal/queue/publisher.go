// Package queue carries dispatch requests over SQS from the API to the
// dispatch worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"roofalert/internal/types"
)

// Message attribute names set on every dispatch message.
const (
	AttrAreaID    = "area_id"
	AttrRequestID = "request_id"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Publisher enqueues DispatchRequests for the dispatch worker.
type Publisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewPublisher creates a Publisher targeting queueURL.
func NewPublisher(client SQSSender, queueURL string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, queueURL: queueURL, logger: logger}
}

// Publish validates req, fills in BatchID and RequestID when empty, and sends
// it to the dispatch queue. The returned request carries the assigned ids.
func (p *Publisher) Publish(ctx context.Context, req types.DispatchRequest) (types.DispatchRequest, error) {
	if req.BatchID == "" {
		req.BatchID = NewBatchID()
	}
	if req.RequestID == "" {
		req.RequestID = types.GetRequestID(ctx)
	}
	if err := types.ValidateDispatchRequest(&req); err != nil {
		return req, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return req, fmt.Errorf("queue: failed to marshal DispatchRequest: %w", err)
	}

	attrs := map[string]sqsTypes.MessageAttributeValue{
		AttrAreaID: {
			DataType:    aws.String("String"),
			StringValue: aws.String(req.AreaID),
		},
	}
	if req.RequestID != "" {
		attrs[AttrRequestID] = sqsTypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(req.RequestID),
		}
	}

	out, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(p.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return req, types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to send dispatch request to %s", p.queueURL), err)
	}

	p.logger.InfoContext(ctx, "dispatch request enqueued",
		"queue_url", p.queueURL,
		"batch_id", req.BatchID,
		"area_id", req.AreaID,
		"recipients", len(req.Recipients),
		"message_id", aws.ToString(out.MessageId),
	)
	return req, nil
}

// Decode parses and validates a dispatch message body.
func Decode(body string) (types.DispatchRequest, error) {
	var req types.DispatchRequest
	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, types.NewAppError(types.ErrCodeValidationInvalidPayload, "malformed dispatch message", err)
	}
	if err := types.ValidateDispatchRequest(&req); err != nil {
		return req, err
	}
	return req, nil
}

// NewBatchID returns a fresh batch identifier.
func NewBatchID() string {
	return "batch_" + uuid.NewString()
}
