package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const maxMessageSize = 512

type connOptions struct {
	sendBuffer   int
	pingPeriod   time.Duration
	writeTimeout time.Duration
}

// wsConn is a push connection backed by a gorilla websocket. Frames are
// queued by Enqueue and written by a single write pump.
type wsConn struct {
	id     string
	userID string

	mu        sync.Mutex
	sessionID string

	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	pingPeriod   time.Duration
	pongWait     time.Duration
	writeTimeout time.Duration
}

func newWSConn(id, userID, sessionID string, ws *websocket.Conn, opts connOptions) *wsConn {
	return &wsConn{
		id:           id,
		userID:       userID,
		sessionID:    sessionID,
		ws:           ws,
		send:         make(chan []byte, opts.sendBuffer),
		done:         make(chan struct{}),
		pingPeriod:   opts.pingPeriod,
		pongWait:     opts.pingPeriod * 10 / 9,
		writeTimeout: opts.writeTimeout,
	}
}

func (c *wsConn) ID() string     { return c.id }
func (c *wsConn) UserID() string { return c.userID }

func (c *wsConn) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *wsConn) Rebind(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
}

func (c *wsConn) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close signals the write pump, which sends the close frame and then
// releases the socket.
func (c *wsConn) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// run starts the write pump and blocks in the read pump until the peer goes
// away or the connection is closed. It always leaves the registry.
func (c *wsConn) run(registry *Registry) {
	defer func() {
		registry.Remove(c)
		c.Close()
	}()

	go c.writePump()
	c.readPump()
}

// readPump discards client frames; reading is only needed to process pongs
// and notice disconnects.
func (c *wsConn) readPump() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithError(err).WithField("connection_id", c.id).Debug("Push connection read error")
			}
			return
		}
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				logrus.WithError(err).WithFields(logrus.Fields{
					"connection_id": c.id,
					"user_id":       c.userID,
				}).Debug("Push write failed")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeTimeout))
			return
		}
	}
}
