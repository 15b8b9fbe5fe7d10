// Package chassis serves the registry over TLS on one port with two sockets.
//
// TCP carries HTTP/1.1 and HTTP/2. UDP carries QUIC, demultiplexed by ALPN:
// "h3" is HTTP/3 on the same handler, "combine-mcp/1" is an MCP session on
// the first bidirectional stream. HTTP responses advertise HTTP/3 through
// Alt-Svc.
package chassis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

type Config struct {
	Addr string
	// TLS defaults to ServerTLSConfig(CertFile, KeyFile).
	TLS       *tls.Config
	CertFile  string
	KeyFile   string
	Handler   http.Handler
	MCPServer *server.MCPServer // nil disables MCP over QUIC
	Logger    *slog.Logger
}

type Server struct {
	cfg    Config
	logger *slog.Logger
	mcp    *mcpHandler

	mu     sync.Mutex
	tcpLn  net.Listener
	quicLn *quic.Listener
	https  *http.Server
	h3     *http3.Server
}

func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Handler == nil {
		return nil, errors.New("chassis: handler is required")
	}
	if cfg.TLS == nil {
		tlsCfg, err := ServerTLSConfig(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("chassis tls: %w", err)
		}
		if cfg.CertFile == "" {
			cfg.Logger.Warn("using a self-signed certificate")
		}
		cfg.TLS = tlsCfg
	}
	s := &Server{cfg: cfg, logger: cfg.Logger}
	if cfg.MCPServer != nil {
		s.mcp = &mcpHandler{srv: cfg.MCPServer, logger: cfg.Logger}
	}
	return s, nil
}

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxStreamReceiveWindow:     8 << 20,
		MaxConnectionReceiveWindow: 32 << 20,
		MaxIdleTimeout:             5 * time.Minute,
		KeepAlivePeriod:            30 * time.Second,
	}
}

// Listen binds the UDP socket, then TCP on the same port. With port 0 the
// kernel-chosen UDP port is reused for TCP.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ln, err := quic.ListenAddr(s.cfg.Addr, s.cfg.TLS, quicConfig())
	if err != nil {
		return fmt.Errorf("quic listen: %w", err)
	}
	host, _, err := net.SplitHostPort(s.cfg.Addr)
	if err != nil {
		ln.Close()
		return err
	}
	port := ln.Addr().(*net.UDPAddr).Port

	tcpTLS := s.cfg.TLS.Clone()
	tcpTLS.NextProtos = []string{"h2", "http/1.1"}
	tcpLn, err := tls.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)), tcpTLS)
	if err != nil {
		ln.Close()
		return fmt.Errorf("tcp listen: %w", err)
	}

	handler := securityHeaders(altSvc(port, s.cfg.Handler))
	s.quicLn = ln
	s.tcpLn = tcpLn
	s.https = &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	s.h3 = &http3.Server{Handler: handler}
	return nil
}

// Addr is the bound address once Listen has succeeded.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tcpLn == nil {
		return s.cfg.Addr
	}
	return s.tcpLn.Addr().String()
}

// Serve runs both accept loops until ctx is done or one fails. Listen is
// called first if needed. Call Stop afterwards.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	bound := s.quicLn != nil
	s.mu.Unlock()
	if !bound {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.logger.Info("chassis listening", "addr", s.Addr(), "tcp", "h2,http/1.1", "udp", "h3,"+ALPNMCP)

	errc := make(chan error, 2)
	go func() {
		if err := s.https.Serve(s.tcpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("tcp: %w", err)
		}
	}()
	go func() {
		if err := s.acceptQUIC(ctx); err != nil {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		return err
	}
}

func (s *Server) acceptQUIC(ctx context.Context) error {
	for {
		conn, err := s.quicLn.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("quic accept: %w", err)
		}
		switch alpn := conn.ConnectionState().TLS.NegotiatedProtocol; alpn {
		case ALPNHTTP3:
			go func() {
				if err := s.h3.ServeQUICConn(conn); err != nil {
					s.logger.Debug("http3 conn done", "remote", conn.RemoteAddr(), "error", err)
				}
			}()
		case ALPNMCP:
			if s.mcp == nil {
				conn.CloseWithError(codeMCPDisabled, "mcp disabled")
				continue
			}
			go s.mcp.serveConn(ctx, conn)
		default:
			s.logger.Warn("unsupported alpn", "alpn", alpn, "remote", conn.RemoteAddr())
			conn.CloseWithError(codeUnsupportedALPN, "unsupported alpn "+alpn)
		}
	}
}

// Stop shuts down the HTTPS server and closes the QUIC listener.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.https != nil {
		errs = append(errs, s.https.Shutdown(ctx))
	}
	if s.h3 != nil {
		errs = append(errs, s.h3.Close())
	}
	if s.quicLn != nil {
		errs = append(errs, s.quicLn.Close())
	}
	return errors.Join(errs...)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Strict-Transport-Security", "max-age=31536000")
		next.ServeHTTP(w, r)
	})
}

func altSvc(port int, next http.Handler) http.Handler {
	value := fmt.Sprintf(`h3=":%d"; ma=86400`, port)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Alt-Svc", value)
		next.ServeHTTP(w, r)
	})
}
