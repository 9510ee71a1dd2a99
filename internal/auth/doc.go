// Package auth guards the chorus HTTP API with bearer tokens.
//
// Tokens are HS256 JWTs signed with server.auth.jwt_secret. The subject claim
// names the caller and is attached to the request context:
//
//	v := auth.NewJWTVerifier(secret)
//	token, err := v.Generate("ada", 24*time.Hour)
//	handler = auth.Middleware(v)(handler)
//	subject := auth.SubjectFromContext(r.Context())
//
// Browsers cannot set headers on an EventSource, so the middleware also
// accepts the token as an access_token query parameter.
//
// When no secret is configured the gateway does not install the middleware.
package auth
