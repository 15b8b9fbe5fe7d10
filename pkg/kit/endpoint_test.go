package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func tag(name string, trail *[]string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			*trail = append(*trail, name)
			return next(ctx, req)
		}
	}
}

func TestChain_Order(t *testing.T) {
	var trail []string
	ep := Chain(tag("a", &trail), tag("b", &trail), tag("c", &trail))(func(context.Context, any) (any, error) {
		trail = append(trail, "endpoint")
		return nil, nil
	})
	if _, err := ep(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(trail, ","); got != "a,b,c,endpoint" {
		t.Errorf("call order = %s", got)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	ep := RequestID()(func(ctx context.Context, _ any) (any, error) {
		seen = GetRequestID(ctx)
		return nil, nil
	})

	ep(context.Background(), nil)
	if len(seen) != 36 {
		t.Errorf("generated request id = %q, want a uuid", seen)
	}

	ep(WithRequestID(context.Background(), "given"), nil)
	if seen != "given" {
		t.Errorf("request id = %q, want given", seen)
	}
}

func TestTransport(t *testing.T) {
	if got := GetTransport(context.Background()); got != "http" {
		t.Errorf("default transport = %q, want http", got)
	}
	if got := GetTransport(WithTransport(context.Background(), "mcp")); got != "mcp" {
		t.Errorf("transport = %q, want mcp", got)
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ep := Logging(logger, "normalize")(func(context.Context, any) (any, error) {
		return nil, errors.New("boom")
	})
	if _, err := ep(context.Background(), nil); err == nil {
		t.Fatal("error swallowed")
	}
	out := buf.String()
	if !strings.Contains(out, "action=normalize") || !strings.Contains(out, "error=boom") {
		t.Errorf("log output = %q", out)
	}
}
