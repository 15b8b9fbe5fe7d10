// CLAUDE:SUMMARY MCP client over QUIC: dial, preamble, mcp-go client on the stream, initialize handshake.
package chassis

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/quic-go/quic-go"
)

// MCPClient is an initialized MCP client session over QUIC.
type MCPClient struct {
	*client.Client
	conn   *quic.Conn
	stream *quic.Stream
}

// DialMCP connects to addr, sends the preamble and performs the MCP
// initialize handshake. tlsCfg defaults to ClientTLSConfig(false).
func DialMCP(ctx context.Context, addr string, tlsCfg *tls.Config) (*MCPClient, error) {
	if tlsCfg == nil {
		tlsCfg = ClientTLSConfig(false)
	}
	conn, err := quic.DialAddr(ctx, addr, tlsCfg, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if alpn := conn.ConnectionState().TLS.NegotiatedProtocol; alpn != ALPNMCP {
		conn.CloseWithError(codeUnsupportedALPN, "")
		return nil, fmt.Errorf("dial %s: negotiated %q, want %q", addr, alpn, ALPNMCP)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(codeProtocolError, "")
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if _, err := stream.Write([]byte(Preamble)); err != nil {
		conn.CloseWithError(codeProtocolError, "")
		return nil, fmt.Errorf("write preamble: %w", err)
	}

	c := &MCPClient{
		Client: client.NewClient(transport.NewIO(stream, stream, io.NopCloser(eofReader{}))),
		conn:   conn,
		stream: stream,
	}
	if err := c.Start(ctx); err != nil {
		c.closeConn()
		return nil, fmt.Errorf("mcp start: %w", err)
	}
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "combine-registry-quic", Version: "1"}
	if _, err := c.Initialize(ctx, req); err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp initialize: %w", err)
	}
	return c, nil
}

func (c *MCPClient) Close() error {
	err := c.Client.Close()
	c.closeConn()
	return err
}

func (c *MCPClient) closeConn() {
	c.stream.Close()
	c.conn.CloseWithError(codeOK, "")
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
