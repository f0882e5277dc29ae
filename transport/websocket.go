package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketConn is a controller connection over a websocket, such as the
// FluidNC web UI socket. Inbound frames are concatenated into a byte stream;
// a line may span frames and a frame may hold several lines.
type WebsocketConn struct {
	ws *websocket.Conn

	wMx sync.Mutex
	buf []byte

	closeOnce sync.Once
	closeErr  error
}

var _ io.ReadWriteCloser = &WebsocketConn{}

// DialWebsocket connects to the controller socket at url.
func DialWebsocket(ctx context.Context, url string) (*WebsocketConn, error) {
	log.Println("Connecting to", url)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	log.Println("Connected.")
	return &WebsocketConn{ws: ws}, nil
}

// Read must not be called concurrently.
func (c *WebsocketConn) Read(p []byte) (int, error) {
	for len(c.buf) == 0 {
		_, data, err := c.ws.ReadMessage()
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return 0, io.EOF
		}
		if err != nil {
			return 0, err
		}
		c.buf = data
	}

	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

// Write sends p as a single text frame.
func (c *WebsocketConn) Write(p []byte) (int, error) {
	c.wMx.Lock()
	defer c.wMx.Unlock()
	err := c.ws.WriteMessage(websocket.TextMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame and closes the connection.
func (c *WebsocketConn) Close() error {
	c.closeOnce.Do(func() {
		c.wMx.Lock()
		err := c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.wMx.Unlock()
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			log.Println("ERROR: send close:", err)
		}
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
