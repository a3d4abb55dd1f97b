package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"claimlink/storage"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsBacklogPage  = 500
)

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	cursor := int64(0)
	if raw := strings.TrimSpace(r.URL.Query().Get("cursor")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
		cursor = parsed
	}
	eventType := strings.TrimSpace(r.URL.Query().Get("type"))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns()})
	if err != nil {
		s.logger.Debug("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, cursor, eventType); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

// streamEvents replays committed events after cursor and then follows the
// live feed. The subscription is opened before the replay so nothing
// committed in between is lost; duplicates are skipped by sequence.
func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, cursor int64, eventType string) error {
	updates, cancel := s.node.Subscribe()
	defer cancel()

	last := cursor
	for {
		backlog, err := s.node.Events(ctx, last, wsBacklogPage, eventType)
		if err != nil {
			return err
		}
		for _, rec := range backlog {
			if err := writeEvent(ctx, conn, rec); err != nil {
				return err
			}
			last = rec.Sequence
		}
		if len(backlog) < wsBacklogPage {
			break
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-updates:
			if !ok {
				return nil
			}
			if rec.Sequence <= last {
				continue
			}
			if eventType != "" && rec.Type != eventType {
				continue
			}
			if err := writeEvent(ctx, conn, rec); err != nil {
				return err
			}
			last = rec.Sequence
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, rec storage.EventRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

// originPatterns converts the CORS allow list into host patterns. An empty
// list leaves the library's same-origin check in place.
func (s *Server) originPatterns() []string {
	patterns := make([]string, 0, len(s.cfg.AllowedOrigins))
	for _, origin := range s.cfg.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if idx := strings.Index(origin, "://"); idx >= 0 {
			origin = origin[idx+3:]
		}
		patterns = append(patterns, strings.TrimSuffix(origin, "/"))
	}
	return patterns
}
