// Package auth protects the admin API with bearer JWTs.
//
// Tokens are HS256 with the coven-voice issuer, signed with auth.jwt_secret.
// The subject names the operator and is attached to the request context so
// handlers can log who ended or placed a call:
//
//	v := auth.NewJWTVerifier([]byte(secret))
//	token, err := v.Generate("ops@example.com", 24*time.Hour)
//
//	mux.Handle("/api/", auth.Middleware(v, logger)(api))
//
// With an empty secret VerifierFromSecret returns nil and Middleware lets
// every request through after logging a warning.
package auth
