package ws

import (
	"sync"
	"time"

	"proconnect/internal/relay"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// clientConn is the relay.Outbox of one websocket. Only writePump writes to
// rawConn; everything else goes through send.
type clientConn struct {
	rawConn *websocket.Conn
	send    chan any
	done    chan struct{}
	once    sync.Once
}

var _ relay.Outbox = (*clientConn)(nil)

func newClientConn(raw *websocket.Conn, outboxSize int) *clientConn {
	return &clientConn{
		rawConn: raw,
		send:    make(chan any, outboxSize),
		done:    make(chan struct{}),
	}
}

func (c *clientConn) Deliver(ev relay.Event) bool {
	return c.enqueue(Envelope{Event: ev.EventName(), Body: ev})
}

// Close stops the write pump, which then closes the socket. The reader
// notices and disconnects the connection from the relay.
func (c *clientConn) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *clientConn) enqueue(v any) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- v:
		return true
	default:
		return false
	}
}

func (c *clientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.rawConn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.rawConn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case v := <-c.send:
			_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.rawConn.WriteJSON(v); err != nil {
				zap.L().Debug("ws.write_failed", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.rawConn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.Close()
				return
			}
		}
	}
}
