package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type renameChatRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.store.CreateChat(r.Context())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.debugf("chat created id=%s", chat.ID)
	s.respondJSON(w, http.StatusCreated, chat)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.store.ListChats(r.Context())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, chats)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	messages, err := s.store.ListMessages(r.Context(), chatID)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, messages)
}

func (s *Server) handleRenameChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	var req renameChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("title is required"))
		return
	}
	chat, err := s.store.RenameChat(r.Context(), chatID, req.Title)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, chat)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	if err := s.store.DeleteChat(r.Context(), chatID); err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.logf("chat deleted id=%s", chatID)
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Chat deleted successfully"})
}
