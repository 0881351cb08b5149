package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	myMiddleware "hobbyhub/internal/middleware"
	"hobbyhub/internal/realtime"
	"hobbyhub/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway is what the handler needs from the realtime layer.
type Gateway interface {
	Subscribe(ctx context.Context, key realtime.ChannelKey, conn realtime.Conn) error
	Unsubscribe(key realtime.ChannelKey, conn realtime.Conn)
}

type Handler struct {
	svc          *Service
	gateway      Gateway
	historyLimit int
	log          zerolog.Logger
}

func NewHandler(svc *Service, gateway Gateway, historyLimit int, log zerolog.Logger) *Handler {
	return &Handler{
		svc:          svc,
		gateway:      gateway,
		historyLimit: historyLimit,
		log:          log.With().Str("component", "chat_http").Logger(),
	}
}

// ServeWs is the group chat websocket endpoint. Membership is verified
// before the subscription is made; the realtime layer itself trusts that
// check. Every inbound frame is a chat message: commit first, broadcast
// second.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid group id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	member, err := h.svc.IsMember(r.Context(), groupID, userID)
	if err != nil || !member {
		// Same close code the policy uses everywhere: not a member, no room.
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "not a member"))
		conn.Close()
		return
	}

	client := ws.NewClient(conn, h.log)
	key := realtime.GroupChannel(groupID)

	if err := h.gateway.Subscribe(r.Context(), key, client); err != nil {
		h.log.Error().Err(err).Int64("group_id", groupID).Msg("subscribe failed")
		client.Close()
		return
	}

	go client.WritePump()

	// Replay recent history so the client starts with context.
	if msgs, err := h.svc.History(r.Context(), groupID, h.historyLimit); err == nil {
		for _, msg := range msgs {
			if payload, err := json.Marshal(msg); err == nil {
				client.Send(payload)
			}
		}
	} else {
		h.log.Warn().Err(err).Int64("group_id", groupID).Msg("history replay failed")
	}

	client.ReadPump(func(message []byte) {
		if _, err := h.svc.SendMessage(r.Context(), groupID, userID, string(message)); err != nil {
			h.log.Error().Err(err).Int64("group_id", groupID).Msg("send message failed")
		}
	})

	h.gateway.Unsubscribe(key, client)
	client.Close()
}

// GetHistory serves the bounded recent history of a group channel.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid group id", http.StatusBadRequest)
		return
	}

	member, err := h.svc.IsMember(r.Context(), groupID, userID)
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if !member {
		http.Error(w, "You are not a member of this group", http.StatusForbidden)
		return
	}

	msgs, err := h.svc.History(r.Context(), groupID, h.historyLimit)
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []*Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// GetConversations lists every channel the caller belongs to, groups and
// direct channels alike.
func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	convs, err := h.svc.Conversations(r.Context(), userID)
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if convs == nil {
		convs = []*Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

// StartDirect gets or creates the direct channel with the target user.
func (h *Handler) StartDirect(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	targetID, err := strconv.ParseInt(chi.URLParam(r, "targetID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	conv, err := h.svc.GetOrCreateDirect(r.Context(), userID, targetID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, conv)
	case errors.Is(err, ErrSelfChannel):
		http.Error(w, "Cannot message yourself", http.StatusBadRequest)
	default:
		h.log.Error().Err(err).Int64("target_id", targetID).Msg("start direct failed")
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
