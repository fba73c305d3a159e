package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldReplyID identifies one reply pipeline run
	FieldReplyID = "reply_id"

	// FieldFeedbackID is the identifier of a stored feedback record
	FieldFeedbackID = "feedback_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldStage is the current reply pipeline stage
	FieldStage = "stage"

	// FieldMode is the reply delivery mode (blocking, streaming)
	FieldMode = "mode"

	// FieldSource is the seed data source identifier
	FieldSource = "source"
)

// Metric fields, used for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
