package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nvandessel/tradernet/internal/session"
	"github.com/nvandessel/tradernet/internal/simulation"
	"github.com/nvandessel/tradernet/internal/store"
)

const (
	writeWait      = 2 * time.Second
	maxMessageSize = 4096
)

// Stream message types.
const (
	MessageStep  = "step"
	MessageDone  = "done"
	MessageError = "error"
)

// StreamMessage is one websocket frame of /v1/stream.
type StreamMessage struct {
	Type  string                 `json:"type"`
	Step  *simulation.StepReport `json:"step,omitempty"`
	Run   *store.RunSummary      `json:"run,omitempty"`
	Error string                 `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isLocalOrigin(origin)
	},
}

// stream runs a simulation configured by query parameters and sends each
// step as it completes. The finished run is stored and announced with a
// final "done" message. Closing the socket cancels the simulation.
func (s *Server) stream(c *gin.Context) {
	var o session.Overrides
	if err := c.ShouldBindQuery(&o); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	cfg, err := o.Apply(s.base)
	if err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	sess, err := session.New(cfg, session.Options{Logger: s.logger})
	if err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go watchClose(conn, cancel)

	send := func(m StreamMessage) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(m)
	}

	for report, err := range sess.Stream(ctx, cfg.Simulation.Steps) {
		if err != nil {
			_ = send(StreamMessage{Type: MessageError, Error: err.Error()})
			return
		}
		if err := send(StreamMessage{Type: MessageStep, Step: &report}); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
			return
		}
	}

	run, err := sess.Record()
	if err == nil {
		_, err = s.store.SaveRun(ctx, run)
	}
	if err != nil {
		_ = send(StreamMessage{Type: MessageError, Error: err.Error()})
		return
	}

	summary := run.Summary()
	_ = send(StreamMessage{Type: MessageDone, Run: &summary})
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// watchClose reads until the client goes away, then cancels the stream.
func watchClose(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
