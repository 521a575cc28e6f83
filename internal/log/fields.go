package log

// Common field names for structured logging. Every package logs with
// these keys so lines from different components aggregate cleanly.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldError      = "error"

	FieldUserID      = "user_id"
	FieldEmail       = "email"
	FieldExpenseID   = "expense_id"
	FieldAmountCents = "amount_cents"
)

// ComponentApp tags process-level log lines from the entrypoint.
const ComponentApp = "app"
