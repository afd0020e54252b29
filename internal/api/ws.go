package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sentryline/internal/hub"
	"sentryline/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientMessage is a membership request from a websocket client.
type clientMessage struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// reply answers a membership request on the requesting connection only.
type reply struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

func (s *Server) serveWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("Websocket upgrade failed: %v", err)
		return
	}

	sub := s.cfg.Hub.Connect()
	replies := make(chan reply, 16)
	done := make(chan struct{})

	go s.writePump(conn, sub, replies, done)
	s.readPump(conn, sub, replies, done)
}

// readPump handles membership requests until the connection fails, then
// disconnects the subscriber.
func (s *Server) readPump(conn *websocket.Conn, sub *hub.Subscriber, replies chan<- reply, done chan struct{}) {
	defer func() {
		close(done)
		s.cfg.Hub.Disconnect(sub)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debugf("Websocket read failed: subscriber=%s err=%v", sub.ID(), err)
			}
			return
		}

		channel := strings.TrimSpace(msg.Channel)
		var r reply
		switch msg.Action {
		case "subscribe":
			sub.Subscribe(channel)
			r = reply{Type: "subscribed", Data: map[string]string{"channel": channel}}
		case "unsubscribe":
			sub.Unsubscribe(channel)
			r = reply{Type: "unsubscribed", Data: map[string]string{"channel": channel}}
		default:
			r = reply{Type: "error", Data: map[string]string{"message": "unknown action " + msg.Action}}
		}

		select {
		case replies <- r:
		default:
			logger.Warnf("Dropping websocket reply for subscriber %s", sub.ID())
		}
	}
}

// writePump is the only writer on conn. It stops when the hub closes the
// subscriber or the read side goes away.
func (s *Server) writePump(conn *websocket.Conn, sub *hub.Subscriber, replies <-chan reply, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case n, ok := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "disconnected"))
				return
			}
			if err := conn.WriteJSON(n); err != nil {
				logger.Debugf("Websocket write failed: subscriber=%s err=%v", sub.ID(), err)
				return
			}
		case r := <-replies:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(r); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
