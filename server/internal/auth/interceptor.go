package auth

import (
	"context"
	"crypto/subtle"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/healthwatch/healthwatch/server/internal/config"
)

// ModeAPIKey enables shared-key authentication.
const ModeAPIKey = "apikey"

// Checker validates a presented API key against the configured one.
type Checker struct {
	header string
	key    string
}

// NewChecker resolves cfg into a Checker. The key is read from the
// environment once, at construction.
func NewChecker(cfg config.AuthConfig) *Checker {
	c := &Checker{header: cfg.EffectiveHeader()}
	if cfg.Mode == ModeAPIKey {
		c.key = cfg.Key()
	}
	return c
}

// Enabled reports whether requests must present a key.
func (c *Checker) Enabled() bool { return c.key != "" }

// Header is the metadata key and HTTP header the key is read from.
func (c *Checker) Header() string { return c.header }

func (c *Checker) valid(presented string) bool {
	return subtle.ConstantTimeCompare([]byte(presented), []byte(c.key)) == 1
}

// UnaryInterceptor returns a gRPC UnaryServerInterceptor enforcing c.
// gRPC normalises metadata keys to lowercase, so the header lookup is
// case-insensitive.
func (c *Checker) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !c.Enabled() {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		vals := md.Get(c.header)
		if len(vals) == 0 || !c.valid(vals[0]) {
			return nil, status.Error(codes.Unauthenticated, "invalid api key")
		}
		return handler(ctx, req)
	}
}

// Middleware wraps next so that requests without a valid key get 401.
func (c *Checker) Middleware(next http.Handler) http.Handler {
	if !c.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.valid(r.Header.Get(c.header)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid api key"}`)) //nolint:errcheck
			return
		}
		next.ServeHTTP(w, r)
	})
}

// APIKeyInterceptor builds an interceptor from an explicit mode, header and
// key instead of a config section. An empty header uses the default.
func APIKeyInterceptor(mode, header, key string) grpc.UnaryServerInterceptor {
	c := &Checker{header: header}
	if c.header == "" {
		c.header = config.AuthConfig{}.EffectiveHeader()
	}
	if mode == ModeAPIKey {
		c.key = key
	}
	return c.UnaryInterceptor()
}
