// CLAUDE:SUMMARY MCP sessions over a QUIC stream: CRM1 preamble check, newline-delimited JSON-RPC, serialized writes.
package chassis

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/quic-go/quic-go"

	"github.com/hazyhaar/combine-registry/pkg/kit"
)

const (
	// Preamble is written by the client as the first bytes of the MCP stream.
	Preamble = "CRM1"
	// MaxMessageSize bounds one newline-delimited JSON-RPC message.
	MaxMessageSize = 4 << 20
)

// Application error codes sent when closing QUIC streams and connections.
const (
	codeOK               quic.ApplicationErrorCode = 0x00
	codeUnsupportedALPN  quic.ApplicationErrorCode = 0x01
	codeProtocolError    quic.ApplicationErrorCode = 0x03
	codeMCPDisabled      quic.ApplicationErrorCode = 0x10
	streamCodeBadPreface quic.StreamErrorCode      = 0x02
)

var ErrBadPreamble = errors.New("mcp stream: bad preamble")

// mcpHandler runs MCP sessions over QUIC streams against one MCPServer.
type mcpHandler struct {
	srv    *server.MCPServer
	logger *slog.Logger
}

// serveConn serves the first bidirectional stream of conn as an MCP session.
func (h *mcpHandler) serveConn(ctx context.Context, conn *quic.Conn) {
	remote := conn.RemoteAddr().String()
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		h.logger.Debug("mcp accept stream", "remote", remote, "error", err)
		conn.CloseWithError(codeProtocolError, "no stream")
		return
	}
	err = h.serveStream(ctx, stream, remote)
	if errors.Is(err, ErrBadPreamble) {
		stream.CancelRead(streamCodeBadPreface)
		stream.CancelWrite(streamCodeBadPreface)
		conn.CloseWithError(codeProtocolError, "bad preamble")
		return
	}
	stream.Close()
	conn.CloseWithError(codeOK, "")
}

// serveStream checks the preamble then answers newline-delimited JSON-RPC
// messages until rw reaches EOF or ctx is done.
func (h *mcpHandler) serveStream(ctx context.Context, rw io.ReadWriter, remote string) error {
	magic := make([]byte, len(Preamble))
	if _, err := io.ReadFull(rw, magic); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPreamble, err)
	}
	if string(magic) != Preamble {
		h.logger.Warn("mcp bad preamble", "remote", remote, "got", string(magic))
		return fmt.Errorf("%w: got %q", ErrBadPreamble, magic)
	}

	sess := &quicSession{
		id:            "quic-" + uuid.NewString()[:8],
		notifications: make(chan mcp.JSONRPCNotification, 64),
		w:             rw,
	}
	if err := h.srv.RegisterSession(ctx, sess); err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	defer h.srv.UnregisterSession(ctx, sess.id)
	h.logger.Info("mcp session started", "session", sess.id, "remote", remote)

	ctx, cancel := context.WithCancel(kit.WithTransport(ctx, "mcp_quic"))
	defer cancel()
	ctx = h.srv.WithContext(ctx, sess)
	go sess.forwardNotifications(ctx)

	sc := bufio.NewScanner(rw)
	sc.Buffer(make([]byte, 0, 64<<10), MaxMessageSize)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := h.srv.HandleMessage(ctx, json.RawMessage(line))
		if resp == nil {
			continue
		}
		if err := sess.send(resp); err != nil {
			h.logger.Debug("mcp write", "session", sess.id, "error", err)
			break
		}
	}
	err := sc.Err()
	h.logger.Info("mcp session ended", "session", sess.id, "remote", remote)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp read: %w", err)
	}
	return nil
}

// quicSession implements server.ClientSession. Responses and notifications
// share w, so writes are serialized.
type quicSession struct {
	id            string
	notifications chan mcp.JSONRPCNotification
	initialized   atomic.Bool

	mu sync.Mutex
	w  io.Writer
}

func (s *quicSession) SessionID() string                                   { return s.id }
func (s *quicSession) NotificationChannel() chan<- mcp.JSONRPCNotification { return s.notifications }
func (s *quicSession) Initialize()                                         { s.initialized.Store(true) }
func (s *quicSession) Initialized() bool                                   { return s.initialized.Load() }

func (s *quicSession) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(data)
	return err
}

func (s *quicSession) forwardNotifications(ctx context.Context) {
	for {
		select {
		case n := <-s.notifications:
			if err := s.send(n); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
