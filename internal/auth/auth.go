package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Guard checks presented keys against the configured one.
type Guard struct {
	enabled bool
	header  string
	key     []byte
}

// New returns a Guard. Authentication is enforced only when mode is "apikey"
// and key is non-empty.
func New(mode, header, key string) *Guard {
	return &Guard{
		enabled: mode == "apikey" && key != "",
		header:  strings.ToLower(header),
		key:     []byte(key),
	}
}

// Enabled reports whether requests are checked.
func (g *Guard) Enabled() bool {
	return g.enabled
}

func (g *Guard) valid(got string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), g.key) == 1
}

// authorize checks the key carried in the incoming gRPC metadata.
func (g *Guard) authorize(ctx context.Context) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get(g.header)
	if len(vals) == 0 || !g.valid(vals[0]) {
		return status.Error(codes.Unauthenticated, "invalid api key")
	}
	return nil
}

// UnaryInterceptor rejects calls without a valid key with codes.Unauthenticated.
func (g *Guard) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if g.enabled {
			if err := g.authorize(ctx); err != nil {
				return nil, err
			}
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor applies the same check to streaming calls such as
// Health/Watch.
func (g *Guard) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if g.enabled {
			if err := g.authorize(ss.Context()); err != nil {
				return err
			}
		}
		return handler(srv, ss)
	}
}

// Middleware rejects HTTP requests without a valid key with 401.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	if !g.enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.valid(r.Header.Get(g.header)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid api key"}) //nolint:errcheck
			return
		}
		next.ServeHTTP(w, r)
	})
}
