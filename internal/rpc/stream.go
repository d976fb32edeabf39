package rpc

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/trailblaze/internal/session"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// stream sends the retained events of a session, then live ones, as JSON
// text frames. The connection is closed after the terminal status event.
func (s *Server) stream(c echo.Context) error {
	id := c.Param("id")
	after, err := afterParam(c)
	if err != nil {
		return err
	}

	// Subscribe before reading the backlog so nothing falls in between.
	live, unsubscribe := s.opts.Hub.Subscribe(id)
	defer unsubscribe()

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return nil
	}
	defer ws.Close()

	closed := make(chan struct{})
	go readUntilClosed(ws, closed)

	last := after
	send := func(e session.Event) (bool, error) {
		if e.Seq <= last {
			return false, nil
		}
		last = e.Seq
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(e); err != nil {
			return false, err
		}
		return e.Kind == session.EventStatus && e.Status != nil && e.Status.IsEnded(), nil
	}

	backlog, err := s.sessionEvents(c.Request().Context(), id, after)
	if err != nil {
		s.log.Warn("load session backlog", zap.String("session", id), zap.Error(err))
	}
	for _, e := range backlog {
		done, err := send(e)
		if err != nil {
			return nil
		}
		if done {
			closeNormally(ws)
			return nil
		}
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case e, ok := <-live:
			if !ok {
				return nil
			}
			done, err := send(e)
			if err != nil {
				s.log.Debug("websocket write failed", zap.String("session", id), zap.Error(err))
				return nil
			}
			if done {
				closeNormally(ws)
				return nil
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		case <-closed:
			return nil
		case <-c.Request().Context().Done():
			return nil
		}
	}
}

// readUntilClosed drains client frames so control messages are handled,
// and closes done when the peer goes away.
func readUntilClosed(ws *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func closeNormally(ws *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
