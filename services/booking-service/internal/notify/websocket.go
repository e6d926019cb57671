package notify

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/clinicazen/platform/libs/apperr"
	"github.com/clinicazen/platform/libs/auth"
	"github.com/clinicazen/platform/libs/httpx"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// StreamHandler upgrades authenticated requests to a websocket that
// receives the caller's notifications as JSON text frames.
type StreamHandler struct {
	broker   Broker
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler accepts upgrades from allowedOrigins; "*" or an empty
// list accepts any origin.
func NewStreamHandler(broker Broker, logger *slog.Logger, allowedOrigins []string) *StreamHandler {
	h := &StreamHandler{broker: broker, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), r.Host, allowedOrigins)
		},
	}
	return h
}

func originAllowed(origin, host string, allowed []string) bool {
	if origin == "" || len(allowed) == 0 || slices.Contains(allowed, "*") {
		return true
	}
	if slices.Contains(allowed, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, host)
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, h.logger, apperr.Unauthorized())
		return
	}
	ctx := r.Context()
	msgs, stop, err := h.broker.Subscribe(ctx, p.UserID)
	if err != nil {
		httpx.WriteError(ctx, w, h.logger, apperr.Unavailable("Las notificaciones en tiempo real no están disponibles.").Wrap(err))
		return
	}
	defer stop()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.DebugContext(ctx, "websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go readPump(conn, closed)
	h.writePump(conn, msgs, closed, p.UserID)
}

// readPump discards client frames and keeps the read deadline fresh.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHandler) writePump(conn *websocket.Conn, msgs <-chan []byte, closed <-chan struct{}, userID string) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case payload, ok := <-msgs:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Debug("websocket write failed", "err", err, "user_id", userID)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
