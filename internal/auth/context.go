// ABOUTME: Request-scoped operator identity for the admin API
// ABOUTME: Set by the bearer middleware and read by handlers for audit logging

package auth

import "context"

type operatorKey struct{}

// WithOperator returns a context carrying the authenticated operator.
func WithOperator(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, operatorKey{}, subject)
}

// OperatorFrom returns the operator on ctx, or "" when the request was not
// authenticated.
func OperatorFrom(ctx context.Context) string {
	s, _ := ctx.Value(operatorKey{}).(string)
	return s
}
