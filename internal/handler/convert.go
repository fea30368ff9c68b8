package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	appI18n "github.com/tamkeen-edu/tamkeen/internal/i18n"
	"github.com/tamkeen-edu/tamkeen/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

type convertResponse struct {
	Result  model.ConversionResult `json:"result"`
	Message string                 `json:"message"`
}

func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req model.ConversionRequest
	if !h.decode(w, r, &req) {
		return
	}
	surface := model.SurfaceFromContext(r.Context())
	res, err := h.dispatcher.Convert(r.Context(), surface, req)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convertResponse{Result: res, Message: convertedMessage(r, res)})
}

func convertedMessage(r *http.Request, res model.ConversionResult) string {
	ctx := r.Context()
	switch res.Kind {
	case model.ResultAudio:
		return appI18n.T(ctx, "Converted.visual")
	case model.ResultBraille:
		return appI18n.T(ctx, "Converted.braille")
	case model.ResultSignVideo:
		found := len(res.SignVideo.ResolvedWords)
		return appI18n.Td(ctx, "Converted.hearing", map[string]any{
			"Found": found,
			"Total": found + len(res.SignVideo.UnresolvedWords),
		})
	}
	return ""
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	surface := model.SurfaceFromContext(r.Context())
	stopped := h.dispatcher.Stop(surface)
	resp := map[string]any{
		"stopped": stopped,
		"status":  h.dispatcher.Status(surface),
	}
	if stopped {
		resp["message"] = appI18n.T(r.Context(), "PlaybackStopped")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	surface := model.SurfaceFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"status": h.dispatcher.Status(surface)})
}

// handleEvents streams the surface's conversion events over a websocket.
// The first message is the current audio status.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	surface := model.SurfaceFromContext(r.Context())
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "surface", surface, "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := h.dispatcher.Subscribe(surface)
	defer unsubscribe()
	h.metrics.StreamOpened()
	defer h.metrics.StreamClosed()
	slog.Debug("event stream opened", "surface", surface)

	closed := make(chan struct{})
	go func() {
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
	}()

	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}
	if err := write(map[string]any{"kind": "status", "status": h.dispatcher.Status(surface)}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := write(ev); err != nil {
				slog.Debug("event stream write failed", "surface", surface, "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			slog.Debug("event stream closed", "surface", surface)
			return
		case <-r.Context().Done():
			return
		}
	}
}
