package daemon

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/thermolab/thermocal/pkg/events"
)

const (
	writeTimeout = 5 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	maxReadSize  = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Only local processes can reach the unix socket.
	CheckOrigin: func(*http.Request) bool { return true },
}

// streamEvents upgrades the request to a websocket and forwards every hub
// event to it until either side goes away.
func streamEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("websocket upgrade failed")
		return
	}

	ch := hub.Subscribe()
	logrus.WithField("subscribers", hub.Subscribers()).Debug("event stream connected")

	closed := make(chan struct{})
	go readPump(conn, closed)
	writePump(conn, ch, closed)

	hub.Unsubscribe(ch)
	_ = conn.Close()
	logrus.WithField("subscribers", hub.Subscribers()).Debug("event stream disconnected")
}

// readPump discards client frames and watches for the close handshake or a
// missed pong. It closes closed when the peer is gone.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(maxReadSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logrus.WithError(err).Debug("event stream read ended")
			}
			return
		}
	}
}

func writePump(conn *websocket.Conn, ch <-chan events.Event, closed <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	write := func(messageType int, data []byte) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteMessage(messageType, data)
	}

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-ch:
			if !ok {
				// hub closed: daemon is shutting down
				_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				logrus.WithError(err).WithField("event", ev.Name).Error("failed to encode event")
				continue
			}
			if err := write(websocket.TextMessage, b); err != nil {
				logrus.WithError(err).Debug("event stream write failed")
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
