package api

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"stopboard.dev/gtfs/internal/logging"
)

const writeTimeout = 5 * time.Second

// Streams the board over a websocket. The current text is sent on
// connect and then whenever it changes, checked every board interval.
// The client isn't expected to send anything.
func (s *Server) boardStreamHandler(w http.ResponseWriter, r *http.Request) {
	if s.board == nil {
		respondError(w, r, http.StatusNotFound, "no board configured")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	clientID := uuid.New().String()
	logger := logging.FromContext(r.Context()).With("client_id", clientID)
	logger.Debug("board client connected")

	// Detached from the request, which ends with the upgrade on some
	// servers. Cancelled by Close, or by CloseRead once the client goes
	// away.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	ctx = conn.CloseRead(ctx)

	ticker := time.NewTicker(s.options.BoardInterval)
	defer ticker.Stop()

	last := ""
	first := true
	for {
		text, err := s.board.Render()
		if err != nil {
			logger.Debug("board unavailable", "error", err)
		} else if first || text != last {
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, []byte(text))
			cancel()
			if err != nil {
				logger.Debug("board client write failed", "error", err)
				return
			}
			last = text
			first = false
		}

		select {
		case <-ctx.Done():
			if s.ctx.Err() != nil {
				logger.Debug("closing board stream for shutdown")
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			logger.Debug("board client disconnected")
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
		}
	}
}
