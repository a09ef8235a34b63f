package metricstream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/novacare/authsync/errors"
)

// TokenSource supplies the bearer credential attached to the stream
// handshake. The root client shares one implementation between the HTTP
// transport and the stream.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Conn is a single established stream connection. ReadMessage blocks until
// a frame arrives, the peer closes, or Close is called.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens stream connections. Implementations must honor the context
// for handshake cancellation.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

const defaultHandshakeTimeout = 10 * time.Second

// WebsocketDialer dials real websocket endpoints.
type WebsocketDialer struct {
	// HandshakeTimeout bounds the opening handshake. Zero means 10s.
	HandshakeTimeout time.Duration
}

// Dial opens a websocket connection to url with the given headers.
func (d *WebsocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	dialer := &websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("handshake rejected with status %d: %w", resp.StatusCode, err)
		}
		return nil, apperrors.WrapTransient(err, "metricstream", "Dial", "open websocket")
	}
	return &websocketConn{conn: conn}, nil
}

type websocketConn struct {
	conn *websocket.Conn
}

func (c *websocketConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *websocketConn) Close() error {
	return c.conn.Close()
}

// authHeaders builds the handshake headers, attaching the bearer credential
// the same way the HTTP transport does.
func authHeaders(ctx context.Context, tokens TokenSource) (http.Header, error) {
	header := http.Header{}
	if tokens == nil {
		return header, nil
	}
	token, err := tokens.Token(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "metricstream", "Dial", "resolve credential")
	}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return header, nil
}
