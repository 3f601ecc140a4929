package context

import "context"

type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	customerIDKey contextKey = "customer_id"
)

// WithRequestID attaches the request correlation id to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id, or empty when absent.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithCustomerID attaches the customer identifier to the context.
func WithCustomerID(ctx context.Context, customerID string) context.Context {
	if customerID == "" {
		return ctx
	}
	return context.WithValue(ctx, customerIDKey, customerID)
}

// CustomerIDFromContext returns the customer id, or empty when absent.
func CustomerIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(customerIDKey).(string); ok {
		return v
	}
	return ""
}
