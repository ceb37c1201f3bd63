package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/snapetech/tribute/internal/gate"
	"github.com/snapetech/tribute/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

// progressHandler streams gate states to the loading screen. The connection
// is closed after the revealed state has been sent.
type progressHandler struct {
	gate    *gate.Gate
	metrics *metrics.Metrics
}

func (h *progressHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}
	c := &progressClient{conn: conn, states: h.gate.Subscribe(), closed: make(chan struct{})}
	h.metrics.AddWSClients(1)
	defer func() {
		h.gate.Unsubscribe(c.states)
		h.metrics.AddWSClients(-1)
	}()
	go c.readPump()
	c.writePump()
}

type progressClient struct {
	conn   *websocket.Conn
	states chan gate.State
	closed chan struct{}
}

// readPump only services pongs and the peer's close frame.
func (c *progressClient) readPump() {
	defer close(c.closed)
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("ws: read: %v", err)
			}
			return
		}
	}
}

func (c *progressClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case st, ok := <-c.states:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(st); err != nil {
				return
			}
			if st.Revealed {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "revealed"))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
