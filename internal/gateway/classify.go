package gateway

import "strings"

// FailureKind labels a transport failure for logging. Classification never
// drives retry or fallback decisions.
type FailureKind string

const (
	FailureBadGateway      FailureKind = "bad_gateway"
	FailureRateLimit       FailureKind = "rate_limit"
	FailureTimeout         FailureKind = "timeout"
	FailureConnectionReset FailureKind = "connection_reset"
	FailureTLS             FailureKind = "tls_error"
	FailureUnauthorized    FailureKind = "unauthorized"
	FailureModelNotFound   FailureKind = "model_not_found"
	FailureOther           FailureKind = "other"
)

// Classify maps a failure to a FailureKind by inspecting its text.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureOther
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(msg, "502") || strings.Contains(lower, "bad gateway"):
		return FailureBadGateway
	case strings.Contains(msg, "429") || strings.Contains(lower, "too many requests") || strings.Contains(lower, "rate limit"):
		return FailureRateLimit
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") || strings.Contains(lower, "deadline exceeded"):
		return FailureTimeout
	case strings.Contains(lower, "connection reset") || strings.Contains(lower, "reset by peer"):
		return FailureConnectionReset
	case strings.Contains(lower, "tls") || strings.Contains(lower, "ssl"):
		return FailureTLS
	case strings.Contains(msg, "401") || strings.Contains(lower, "unauthorized"):
		return FailureUnauthorized
	case strings.Contains(lower, "model") && strings.Contains(lower, "not found"):
		return FailureModelNotFound
	default:
		return FailureOther
	}
}
