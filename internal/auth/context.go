// ABOUTME: Request context helpers for the authenticated caller
// ABOUTME: Provides WithSubject/SubjectFromContext for handlers behind the middleware

package auth

import "context"

type subjectKey struct{}

// WithSubject returns a new context carrying the authenticated subject.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the authenticated subject, or "" when the
// request did not pass through the middleware.
func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}
