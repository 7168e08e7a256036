package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/healthwatch/healthwatch/server/internal/config"
)

// passHandler is a grpc.UnaryHandler that returns ("ok", nil).
func passHandler(ctx context.Context, req interface{}) (interface{}, error) {
	return "ok", nil
}

func call(i grpc.UnaryServerInterceptor, md metadata.MD) (interface{}, error) {
	ctx := context.Background()
	if md != nil {
		ctx = metadata.NewIncomingContext(ctx, md)
	}
	return i(ctx, nil, &grpc.UnaryServerInfo{}, passHandler)
}

func TestUnaryInterceptor(t *testing.T) {
	t.Setenv("HW_TEST_KEY", "supersecret")

	tests := []struct {
		name string
		cfg  config.AuthConfig
		md   metadata.MD
		want codes.Code
	}{
		{"mode none passes", config.AuthConfig{Mode: "none", KeyEnv: "HW_TEST_KEY"}, nil, codes.OK},
		{"empty key passes", config.AuthConfig{Mode: "apikey", KeyEnv: "HW_TEST_UNSET"}, nil, codes.OK},
		{"correct key", config.AuthConfig{Mode: "apikey", KeyEnv: "HW_TEST_KEY"}, metadata.Pairs("x-api-key", "supersecret"), codes.OK},
		{"wrong key", config.AuthConfig{Mode: "apikey", KeyEnv: "HW_TEST_KEY"}, metadata.Pairs("x-api-key", "wrong"), codes.Unauthenticated},
		{"missing header", config.AuthConfig{Mode: "apikey", KeyEnv: "HW_TEST_KEY"}, metadata.MD{}, codes.Unauthenticated},
		{"no metadata", config.AuthConfig{Mode: "apikey", KeyEnv: "HW_TEST_KEY"}, nil, codes.Unauthenticated},
		{"custom header", config.AuthConfig{Mode: "apikey", KeyEnv: "HW_TEST_KEY", Header: "x-hw-token"}, metadata.Pairs("x-hw-token", "supersecret"), codes.OK},
		{"default header ignored when custom set", config.AuthConfig{Mode: "apikey", KeyEnv: "HW_TEST_KEY", Header: "x-hw-token"}, metadata.Pairs("x-api-key", "supersecret"), codes.Unauthenticated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := call(NewChecker(tc.cfg).UnaryInterceptor(), tc.md)
			if code := status.Code(err); code != tc.want {
				t.Fatalf("code: got %v, want %v", code, tc.want)
			}
			if tc.want == codes.OK && res != "ok" {
				t.Errorf("result: got %v, want ok", res)
			}
		})
	}
}

func TestAPIKeyInterceptor(t *testing.T) {
	i := APIKeyInterceptor("apikey", "", "k")
	if _, err := call(i, metadata.Pairs("x-api-key", "k")); err != nil {
		t.Errorf("default header: %v", err)
	}
	if _, err := call(APIKeyInterceptor("none", "x-api-key", "k"), nil); err != nil {
		t.Errorf("mode none: %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	t.Setenv("HW_TEST_KEY", "supersecret")
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name   string
		cfg    config.AuthConfig
		header string
		want   int
	}{
		{"disabled", config.AuthConfig{Mode: "none"}, "", http.StatusTeapot},
		{"correct key", config.AuthConfig{Mode: "apikey", KeyEnv: "HW_TEST_KEY"}, "supersecret", http.StatusTeapot},
		{"wrong key", config.AuthConfig{Mode: "apikey", KeyEnv: "HW_TEST_KEY"}, "nope", http.StatusUnauthorized},
		{"missing key", config.AuthConfig{Mode: "apikey", KeyEnv: "HW_TEST_KEY"}, "", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewChecker(tc.cfg)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/machines", nil)
			if tc.header != "" {
				// HTTP header names are canonicalised; lookup must still match.
				req.Header.Set("X-Api-Key", tc.header)
			}
			rec := httptest.NewRecorder()
			c.Middleware(next).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status: got %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
