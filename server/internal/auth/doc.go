// Package auth enforces the optional shared API key on the gRPC receiver and
// the REST API.
//
// Both UnaryInterceptor and Middleware are built from config.AuthConfig.
// When the mode is not "apikey" or the key resolves empty, every call passes
// through. Otherwise the configured header must carry the key: gRPC calls
// fail with codes.Unauthenticated and HTTP requests with 401.
package auth
