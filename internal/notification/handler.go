package notification

import (
	"context"
	"net/http"

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
	gateway Gateway
	log     zerolog.Logger
}

func NewHandler(gateway Gateway, log zerolog.Logger) *Handler {
	return &Handler{
		gateway: gateway,
		log:     log.With().Str("component", "notifications").Logger(),
	}
}

// ServeWs attaches the caller to their personal notification stream. The
// stream is read-only from the client's side: inbound frames are drained so
// pings and pongs keep flowing, and otherwise ignored.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(conn, h.log)
	key := realtime.UserChannel(userID)

	if err := h.gateway.Subscribe(r.Context(), key, client); err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("subscribe failed")
		client.Close()
		return
	}
	h.log.Debug().Int64("user_id", userID).Msg("notification stream attached")

	go client.WritePump()
	client.ReadPump(func([]byte) {})

	h.gateway.Unsubscribe(key, client)
	client.Close()
	h.log.Debug().Int64("user_id", userID).Msg("notification stream detached")
}
