package api

import (
	"encoding/json"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/spool/pkg/eventstream/hub"
	"github.com/papercomputeco/spool/pkg/sse"
)

// heartbeatInterval paces the comment lines that keep idle streams alive and
// surface disconnected clients between mutations.
const heartbeatInterval = 15 * time.Second

// handleEvents subscribes the client to the mutation stream and serves it as
// Server-Sent Events until the client disconnects or the server shuts down.
func (s *Server) handleEvents(c *fiber.Ctx) error {
	sub := s.config.Events.Subscribe()

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	// Use io.Pipe + SetBodyStream instead of SetBodyStreamWriter.
	// SetBodyStreamWriter buffers chunks internally, so Flush() in the
	// callback does not reach the TCP socket. With io.Pipe every write
	// blocks until fasthttp's chunked writer has flushed it, which gives
	// per-event delivery and direct backpressure.
	pr, pw := io.Pipe()
	go s.streamEvents(sub, pw)

	// Unknown size (-1) selects chunked transfer encoding.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// streamEvents drains one subscription into the response pipe. It runs until
// the hub closes, the server shuts down, or a write fails because the client
// went away.
func (s *Server) streamEvents(sub *hub.Subscription, pw *io.PipeWriter) {
	defer pw.Close()
	defer sub.Cancel()

	w := sse.NewWriter(pw)
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-s.streamsDone:
			return

		case <-heartbeat.C:
			if err := w.WriteComment("heartbeat"); err != nil {
				return
			}

		case event, open := <-sub.C:
			if !open {
				return
			}

			payload, err := json.Marshal(event)
			if err != nil {
				s.logger.Error("encoding mutation event", zap.Error(err))
				continue
			}

			err = w.WriteEvent(&sse.Event{
				Type: event.EventType,
				ID:   event.EventID,
				Data: string(payload),
			})
			if err != nil {
				return
			}
		}
	}
}
