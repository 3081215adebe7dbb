package venue

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the minimal websocket surface the Adapter drives. Narrowing to
// an interface (rather than using *websocket.Conn directly) lets tests
// substitute a fake transport to exercise the reconnect state machine
// without opening real sockets.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens a Conn to a venue's websocket endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// gorillaDialer is the production Dialer: a generous handshake timeout
// for slow venue gateways plus an identifying User-Agent.
type gorillaDialer struct {
	handshakeTimeout time.Duration
	userAgent        string
}

// NewGorillaDialer returns the default production Dialer.
func NewGorillaDialer() Dialer {
	return &gorillaDialer{
		handshakeTimeout: 30 * time.Second,
		userAgent:        "arbiscan/1.0 (+arbitrage-scanner)",
	}
}

func (d *gorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: d.handshakeTimeout}
	header := http.Header{}
	header.Set("User-Agent", d.userAgent)
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
