// Package core holds delivery plumbing shared by notification sinks.
package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"roofalert/internal/dispatch"
	"roofalert/internal/types"
)

// ChannelEmail is the Channel dimension value for email deliveries.
const ChannelEmail = "email"

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchDispatchMetrics emits dispatch metrics to CloudWatch. It
// implements dispatch.Metrics.
//
// Metrics emitted:
//   - DeliveryAttempt: Dims {Channel, Result} on every property outcome
//   - DispatchBatch, DeliverySuccess/Failed/Skipped: Dims {Area} per batch
//   - EstimatedRepairCost: Dims {Area}, sum over sent properties
//   - NotificationQueueLag: no dims
//
// Publishing failures are logged and never surface to the caller.
type CloudWatchDispatchMetrics struct {
	client    CloudWatchClient
	namespace string
	channel   string
	logger    *slog.Logger
}

var _ dispatch.Metrics = (*CloudWatchDispatchMetrics)(nil)

// NewCloudWatchDispatchMetrics creates metrics publishing to the RoofAlert
// namespace for the given channel.
func NewCloudWatchDispatchMetrics(client CloudWatchClient, channel string, logger *slog.Logger) *CloudWatchDispatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	if channel == "" {
		channel = ChannelEmail
	}
	return &CloudWatchDispatchMetrics{
		client:    client,
		namespace: types.MetricNamespace,
		channel:   channel,
		logger:    logger,
	}
}

// RecordDelivery emits a DeliveryAttempt metric with Channel and Result dimensions.
func (m *CloudWatchDispatchMetrics) RecordDelivery(ctx context.Context, status types.DeliveryStatus) {
	m.put(ctx, "delivery", cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricDeliveryAttempt),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimChannel), Value: aws.String(m.channel)},
			{Name: aws.String(types.DimResult), Value: aws.String(string(status))},
		},
	})
}

// RecordBatch emits the per-batch totals in a single PutMetricData call.
func (m *CloudWatchDispatchMetrics) RecordBatch(ctx context.Context, t *dispatch.Tally) {
	if t == nil {
		return
	}
	area := []cwtypes.Dimension{{Name: aws.String(types.DimArea), Value: aws.String(t.AreaID)}}
	count := func(name string, v int) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(float64(v)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: area,
		}
	}

	var cost float64
	for _, o := range t.Outcomes {
		if o.Status == types.DeliveryStatusSent {
			cost += o.TotalCost
		}
	}

	m.put(ctx, "batch",
		count(types.MetricDispatchBatch, 1),
		count(types.MetricDeliverySuccess, t.Sent),
		count(types.MetricDeliveryFailed, t.Failed),
		count(types.MetricDeliverySkipped, t.Skipped),
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricEstimatedCost),
			Value:      aws.Float64(cost),
			Unit:       cwtypes.StandardUnitNone,
			Dimensions: area,
		},
	)
}

// RecordQueueLag emits the time between a dispatch request being enqueued
// and a worker starting on it.
func (m *CloudWatchDispatchMetrics) RecordQueueLag(ctx context.Context, lag time.Duration) {
	m.put(ctx, "queue lag", cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricQueueLag),
		Value:      aws.Float64(float64(lag.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	})
}

func (m *CloudWatchDispatchMetrics) put(ctx context.Context, kind string, data ...cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record "+kind+" metric",
			"error", err.Error(),
			"channel", m.channel,
		)
	}
}

// APIMetrics emits request latency and count for the HTTP API.
type APIMetrics struct {
	client  CloudWatchClient
	timeout time.Duration
	logger  *slog.Logger
}

// NewAPIMetrics creates APIMetrics publishing to the RoofAlert namespace.
func NewAPIMetrics(client CloudWatchClient, logger *slog.Logger) *APIMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIMetrics{client: client, timeout: 2 * time.Second, logger: logger}
}

// RecordRequest emits APILatency and APIRequestCount with Method, Endpoint
// and Status dimensions. It runs after the response is written, so it uses
// its own short deadline instead of the request context.
func (m *APIMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimMethod), Value: aws.String(method)},
		{Name: aws.String(types.DimEndpoint), Value: aws.String(endpoint)},
		{Name: aws.String(types.DimStatus), Value: aws.String(status)},
	}
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(types.MetricNamespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricAPILatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: dims,
			},
			{
				MetricName: aws.String(types.MetricAPIRequestCount),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
		},
	})
	if err != nil {
		m.logger.Error("failed to record api metric", "error", err.Error(), "endpoint", endpoint)
	}
}
