package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Fixed transport-level payloads, matching what the chat widget expects.
const (
	promptForInputReply = "Пожалуйста, напишите сообщение."
	serverErrorReply    = "Ошибка на сервере. Попробуйте позже."
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// Handler serves the chat endpoint.
type Handler struct {
	svc            *ChatService
	requestTimeout time.Duration
	log            *slog.Logger
}

// NewHandler creates the HTTP handler over the chat service.
func NewHandler(svc *ChatService, requestTimeout time.Duration, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}

	return &Handler{
		svc:            svc,
		requestTimeout: requestTimeout,
		log:            log.With("component", "http"),
	}
}

// RegisterRoutes mounts the chat endpoint on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

// handleChat processes POST /chat. Client identity is the transport peer
// address; the whole turn is bounded by the request timeout so a hung
// external call cannot stall the client.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// An unreadable body is treated like an empty message: prompt
		// the user instead of failing the widget.
		writeJSON(w, http.StatusOK, chatResponse{Response: promptForInputReply})
		return
	}

	if req.Message == "" {
		writeJSON(w, http.StatusOK, chatResponse{Response: promptForInputReply})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	clientID := clientIP(r)

	response, err := h.svc.ProcessTurn(ctx, clientID, req.Message)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, chatResponse{Response: serverErrorReply})
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: response})
}

// clientIP derives the client identifier from the peer address. The RealIP
// middleware has already folded forwarded headers into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"response": "`+serverErrorReply+`"}`, http.StatusInternalServerError)
	}
}
