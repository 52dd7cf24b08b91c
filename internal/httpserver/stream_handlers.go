package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tidechat/tidechat/internal/chatstore"
	"github.com/tidechat/tidechat/internal/session"
)

type sendMessageRequest struct {
	Content string `json:"content"`
}

// handleSendMessage persists the user message and relays the generated
// answer over a server-sent event stream. The response stays open until
// the session reaches a terminal state.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	reqStart := time.Now()
	chatID := chi.URLParam(r, "chatID")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("content is required"))
		return
	}
	if _, err := s.store.GetChat(r.Context(), chatID); err != nil {
		s.respondStoreError(w, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sess := session.New(chatID, s.store, s.registry, cancel)
	sess.PingInterval = s.ssePingInterval

	// Claim the chat before persisting so a rejected concurrent send
	// leaves no orphaned user message behind.
	if err := s.registry.Register(chatID, sess); err != nil {
		s.respondError(w, http.StatusConflict, err)
		return
	}

	if _, err := s.store.AppendMessage(ctx, chatID, chatstore.RoleUser, req.Content); err != nil {
		s.registry.Deregister(chatID)
		s.respondStoreError(w, err)
		return
	}

	events, err := s.provider.StreamCompletion(ctx, req.Content)
	if err != nil {
		s.registry.Deregister(chatID)
		s.logf("stream open failed chat=%s err=%v", chatID, err)
		s.respondError(w, http.StatusBadGateway, err)
		return
	}

	s.metrics.StreamStarted()

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher, _ := w.(http.Flusher)
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	msg, terminal, runErr := sess.Run(ctx, events, &sseRelay{w: w, flusher: flusher})
	if runErr != nil {
		s.logf("stream %s chat=%s err=%v", terminal, chatID, runErr)
	}
	total := time.Since(reqStart)
	chars := 0
	if msg != nil {
		chars = len(msg.Content)
	}
	s.metrics.StreamFinished(terminal.String(), chars)
	s.logf("stream %s chat=%s chars=%d total_ms=%d", terminal, chatID, chars, total.Milliseconds())
}

// handleStopStream cancels the live session for a chat, if any.
func (s *Server) handleStopStream(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	sess, err := s.registry.Lookup(chatID)
	if err != nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"message": "No active stream to stop"})
		return
	}
	sess.Cancel()
	s.logf("stream stop requested chat=%s", chatID)
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Stream stopped"})
}

// sseRelay writes fragments as discrete SSE events. Fragment text is split
// on newlines into successive data lines of one event, so multi-line
// fragments survive framing; consumers rejoin data lines with "\n".
type sseRelay struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (r *sseRelay) Send(fragment string) error {
	for _, line := range strings.Split(fragment, "\n") {
		if _, err := fmt.Fprintf(r.w, "data: %s\n", line); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(r.w, "\n"); err != nil {
		return err
	}
	if r.flusher != nil {
		r.flusher.Flush()
	}
	return nil
}

func (r *sseRelay) Ping() error {
	if _, err := io.WriteString(r.w, ": ping\n\n"); err != nil {
		return err
	}
	if r.flusher != nil {
		r.flusher.Flush()
	}
	return nil
}
