package domain

import "context"

type contextKey string

const operatorIDKey contextKey = "operatorID"

// WithOperatorID stores the operator id resolved by the HTTP layer
func WithOperatorID(ctx context.Context, operatorID string) context.Context {
	return context.WithValue(ctx, operatorIDKey, operatorID)
}

// GetOperatorIDFromContext returns the operator id or an empty string
func GetOperatorIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(operatorIDKey).(string); ok {
		return v
	}
	return ""
}
