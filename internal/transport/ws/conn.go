package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type Options struct {
	HandshakeTimeout time.Duration
	// ReadTimeout bounds the wait for each frame. Zero waits forever.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Header       http.Header
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	return o
}

// Conn carries JSON text frames. Read must be called from one goroutine;
// Write may be called from any.
type Conn struct {
	ws   *websocket.Conn
	opts Options

	wmu  sync.Mutex
	once sync.Once
}

// Dial opens a client connection to url (ws:// or wss://).
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	opts = opts.withDefaults()
	d := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
		ReadBufferSize:   64 * 1024,
		WriteBufferSize:  64 * 1024,
	}
	c, resp, err := d.DialContext(ctx, url, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (http %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Conn{ws: c, opts: opts}, nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
}

// Upgrade accepts a server-side connection. Used by local test servers.
func Upgrade(rw http.ResponseWriter, r *http.Request, opts Options) (*Conn, error) {
	c, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return nil, err
	}
	return &Conn{ws: c, opts: opts.withDefaults()}, nil
}

// Read returns the next text frame. Binary frames are skipped.
func (c *Conn) Read() ([]byte, error) {
	for {
		if c.opts.ReadTimeout > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		}
		kind, msg, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage {
			return msg, nil
		}
	}
}

func (c *Conn) Write(b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

// Close sends a normal-closure frame and closes the socket.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		c.wmu.Lock()
		werr := c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		c.wmu.Unlock()
		err = c.ws.Close()
		if err == nil && werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			err = werr
		}
	})
	return err
}

// IsNormalClose reports whether err is the peer closing cleanly.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
