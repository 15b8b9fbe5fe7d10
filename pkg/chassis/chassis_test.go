package chassis

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hazyhaar/combine-registry/pkg/api"
	"github.com/hazyhaar/combine-registry/pkg/engine"
	"github.com/hazyhaar/combine-registry/pkg/refdata/refdatatest"
)

func testMCPServer(t *testing.T) *mcpHandler {
	t.Helper()
	eng := engine.New(refdatatest.Snapshot(t), engine.Options{})
	return &mcpHandler{srv: api.NewMCPServer(eng, "test", nil), logger: slog.Default()}
}

type rw struct {
	io.Reader
	io.Writer
}

func TestServeStream(t *testing.T) {
	h := testMCPServer(t)
	call, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      7,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      "normalize_identifier",
			"arguments": map[string]any{"input": "jd s790"},
		},
	})
	in := Preamble + "\n" + string(call) + "\n"
	var out bytes.Buffer
	if err := h.serveStream(context.Background(), rw{strings.NewReader(in), &out}, "test"); err != nil {
		t.Fatalf("serveStream: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d responses: %s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], `"id":7`) || !strings.Contains(lines[0], "john_deere_s790") {
		t.Errorf("response = %s", lines[0])
	}
}

func TestServeStream_BadPreamble(t *testing.T) {
	h := testMCPServer(t)
	for _, in := range []string{"", "CR", "HTTP/1.1 GET"} {
		var out bytes.Buffer
		err := h.serveStream(context.Background(), rw{strings.NewReader(in), &out}, "test")
		if !errors.Is(err, ErrBadPreamble) {
			t.Errorf("%q: err = %v, want ErrBadPreamble", in, err)
		}
		if out.Len() != 0 {
			t.Errorf("%q: wrote %q", in, out.String())
		}
	}
}

func TestServerTLSConfig(t *testing.T) {
	cfg, err := ServerTLSConfig("", "")
	if err != nil {
		t.Fatalf("self-signed: %v", err)
	}
	if len(cfg.Certificates) != 1 || cfg.MinVersion != tls.VersionTLS13 {
		t.Errorf("config = %+v", cfg)
	}
	if _, err := ServerTLSConfig("cert.pem", ""); err == nil {
		t.Error("expected error for cert without key")
	}
	if _, err := New(Config{Addr: "127.0.0.1:0"}); err == nil {
		t.Error("expected error without handler")
	}
}

func TestHeaders(t *testing.T) {
	h := securityHeaders(altSvc(8443, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	rec := &headerRecorder{h: http.Header{}}
	h.ServeHTTP(rec, &http.Request{})
	if got := rec.h.Get("Alt-Svc"); got != `h3=":8443"; ma=86400` {
		t.Errorf("Alt-Svc = %q", got)
	}
	if rec.h.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff")
	}
}

type headerRecorder struct{ h http.Header }

func (r *headerRecorder) Header() http.Header         { return r.h }
func (r *headerRecorder) Write(b []byte) (int, error) { return len(b), nil }
func (r *headerRecorder) WriteHeader(int)             {}

func TestServer_Loopback(t *testing.T) {
	eng := engine.New(refdatatest.Snapshot(t), engine.Options{})
	srv, err := New(Config{
		Addr:      "127.0.0.1:0",
		Handler:   api.NewRouter(eng, api.RouterOptions{}),
		MCPServer: api.NewMCPServer(eng, "test", nil),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := srv.Listen(); err != nil {
		t.Skipf("cannot bind loopback sockets: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	serveCtx, stopServe := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(serveCtx) }()
	t.Cleanup(func() {
		stopServe()
		<-done
		srv.Stop(context.Background())
	})

	httpc := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}}
	resp, err := httpc.Get("https://" + srv.Addr() + "/v1/health")
	if err != nil {
		t.Fatalf("https: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Alt-Svc"), "h3=") {
		t.Errorf("https status %d, headers %v", resp.StatusCode, resp.Header)
	}

	c, err := DialMCP(ctx, srv.Addr(), ClientTLSConfig(true))
	if err != nil {
		t.Fatalf("DialMCP: %v", err)
	}
	defer c.Close()

	tools, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools.Tools) != 3 {
		t.Errorf("tools = %d, want 3", len(tools.Tools))
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = "normalize_identifier"
	req.Params.Arguments = map[string]any{"input": "class lexion 8900"}
	res, err := c.CallTool(ctx, req)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if res.IsError || !ok || !strings.Contains(text.Text, "claas_lexion_8900") {
		t.Errorf("result = %+v", res)
	}
}
