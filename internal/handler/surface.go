package handler

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tamkeen-edu/tamkeen/internal/model"
)

const (
	surfaceHeader = "X-Surface-ID"
	surfaceCookie = "tamkeen"
	maxSurfaceLen = 64
)

// surfaceMiddleware identifies the UI surface a request belongs to. Clients
// may name it explicitly via header or query parameter; otherwise a signed
// cookie carries a generated id.
func (h *Handler) surfaceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		surface := r.Header.Get(surfaceHeader)
		if surface == "" {
			surface = r.URL.Query().Get("surface")
		}
		if surface == "" {
			var err error
			surface, err = h.cookieSurface(w, r)
			if err != nil {
				writeInternal(w, r, "failed to save surface cookie", err)
				return
			}
		}
		if len(surface) > maxSurfaceLen {
			writeBadRequest(w, r, map[string]string{"surface": "max"})
			return
		}
		ctx := model.ContextWithSurface(r.Context(), surface)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) cookieSurface(w http.ResponseWriter, r *http.Request) (string, error) {
	sess, err := h.cookies.Get(r, surfaceCookie)
	if err != nil {
		// A cookie signed with an old key decodes to a fresh session.
		slog.Debug("discarding unreadable surface cookie", "error", err)
	}
	if id, ok := sess.Values["surface"].(string); ok && id != "" {
		return id, nil
	}
	id := uuid.NewString()
	sess.Values["surface"] = id
	if err := sess.Save(r, w); err != nil {
		return "", err
	}
	return id, nil
}

func buildUpgrader(allowed []string) websocket.Upgrader {
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		origins[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(origins) == 0 {
				return true
			}
			return origins[r.Header.Get("Origin")]
		},
	}
}
