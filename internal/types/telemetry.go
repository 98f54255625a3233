package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricDispatchBatch     = "DispatchBatch"
	MetricDeliveryAttempt   = "DeliveryAttempt"
	MetricDeliverySuccess   = "DeliverySuccess"
	MetricDeliveryFailed    = "DeliveryFailed"
	MetricDeliverySkipped   = "DeliverySkipped"
	MetricEstimatedCost     = "EstimatedRepairCost"
	MetricExternalAPIFailed = "ExternalAPIFailure"
	MetricQueueLag          = "NotificationQueueLag"
	MetricAPILatency        = "APILatency"
	MetricAPIRequestCount   = "APIRequestCount"

	// Dimension Keys
	DimChannel  = "Channel"
	DimResult   = "Result"
	DimProvider = "Provider"
	DimArea     = "Area"
	DimMethod   = "Method"
	DimEndpoint = "Endpoint"
	DimStatus   = "Status"

	// Metric Namespace
	MetricNamespace = "RoofAlert"
)
