package messages

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"axon/cmd/internal/auth/session"
)

const maxBodyBytes = 16 << 10

// AccessVerifier authenticates bearer access tokens for the message API.
type AccessVerifier interface {
	VerifyAccess(token string, now time.Time) (session.AccessClaims, error)
}

// Handler serves the direct-message history API.
//
// All routes require a valid access token in the X-Access-Token header.
type Handler struct {
	log      *slog.Logger
	store    Store
	verifier AccessVerifier
}

// NewHandler constructs a message API handler.
func NewHandler(log *slog.Logger, store Store, verifier AccessVerifier) (*Handler, error) {
	if store == nil || verifier == nil {
		return nil, errors.New("messages: nil dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, store: store, verifier: verifier}, nil
}

// Register wires message routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/api/messages", h.handleCollection)
	mux.HandleFunc("/api/messages/", h.handleItem)
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (session.AccessClaims, bool) {
	token := r.Header.Get("X-Access-Token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing access token")
		return session.AccessClaims{}, false
	}

	claims, err := h.verifier.VerifyAccess(token, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid access token")
		return session.AccessClaims{}, false
	}
	return claims, true
}

func (h *Handler) handleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleSend(w, r)
	case http.MethodGet:
		h.handleList(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or POST")
	}
}

type sendRequest struct {
	RecipientUserID string `json:"recipientUserId"`
	Username        string `json:"username"`
	Content         string `json:"content"`
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req sendRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.RecipientUserID == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "recipientUserId and content are required")
		return
	}

	msg, err := h.store.Save(r.Context(), SaveInput{
		SenderID:    claims.UserID,
		RecipientID: req.RecipientUserID,
		Username:    req.Username,
		Content:     req.Content,
	})
	if err != nil {
		h.log.Error("message save failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not store message")
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

type listResponse struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	// Without a peer the endpoint lists conversation summaries instead.
	peer := r.URL.Query().Get("peer")
	if peer == "" {
		h.handleConversations(w, r, claims.UserID)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	res, err := h.store.ListConversation(r.Context(), ListInput{
		UserID:  claims.UserID,
		PeerID:  peer,
		AfterID: r.URL.Query().Get("after"),
		Limit:   limit,
	})
	if err != nil {
		h.log.Error("message list failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not list messages")
		return
	}

	if res.Messages == nil {
		res.Messages = []Message{}
	}
	writeJSON(w, http.StatusOK, listResponse{Messages: res.Messages, HasMore: res.HasMore})
}

type conversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

func (h *Handler) handleConversations(w http.ResponseWriter, r *http.Request, userID string) {
	convs, err := h.store.ListConversations(r.Context(), userID)
	if err != nil {
		h.log.Error("conversation list failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not list conversations")
		return
	}
	if convs == nil {
		convs = []Conversation{}
	}
	writeJSON(w, http.StatusOK, conversationsResponse{Conversations: convs})
}

func (h *Handler) handleItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}

	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/messages/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not_found", "message not found")
		return
	}

	msg, err := h.store.GetByID(r.Context(), id)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) {
		writeError(w, http.StatusNotFound, "not_found", "message not found")
		return
	}
	if err != nil {
		h.log.Error("message get failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load message")
		return
	}

	// Only participants may read a message.
	if msg.SenderID != claims.UserID && msg.RecipientID != claims.UserID {
		writeError(w, http.StatusNotFound, "not_found", "message not found")
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: msg}})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer func() { _ = r.Body.Close() }()

	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}
