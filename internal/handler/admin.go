package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/tamkeen-edu/tamkeen/internal/i18n"
	"github.com/tamkeen-edu/tamkeen/internal/model"
	"github.com/tamkeen-edu/tamkeen/internal/store"
)

// signAssetsImportKey records the hash of the last sign table uploaded
// through the API.
const signAssetsImportKey = "api:sign-assets"

// requireAuth checks HTTP basic credentials against the users table.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			unauthorized(w, r)
			return
		}
		user, err := h.store.Authenticate(username, password)
		if err != nil {
			writeInternal(w, r, "failed to authenticate", err)
			return
		}
		if user == nil {
			slog.Warn("admin login failed", "username", username, "remote", r.RemoteAddr)
			unauthorized(w, r)
			return
		}
		ctx := model.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Basic realm="tamkeen", charset="UTF-8"`)
	writeErrorBody(w, http.StatusUnauthorized, errorBody{
		Kind:    kindUnauthorized,
		Message: appI18n.Error(r.Context(), kindUnauthorized),
	})
}

// requireRole returns middleware that checks the user has the given role.
func requireRole(role model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := model.UserFromContext(r.Context())
			if user == nil || user.Role != role {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) handleListSignAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.store.ListSignAssets()
	if err != nil {
		writeInternal(w, r, "failed to list sign assets", err)
		return
	}
	updated, err := h.store.SignAssetsUpdatedAt()
	if err != nil {
		writeInternal(w, r, "failed to read sign asset timestamp", err)
		return
	}
	resp := map[string]any{"assets": assets}
	if !updated.IsZero() {
		resp["updated_at"] = updated
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleImportSignAssets replaces the sign table with a JSON object of
// word to clip reference. Uploading the same document twice is a no-op.
func (h *Handler) handleImportSignAssets(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeBadRequest(w, r, map[string]string{"body": err.Error()})
		return
	}

	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])

	storedHash, err := h.store.GetImportedFileHash(signAssetsImportKey)
	if err != nil {
		writeInternal(w, r, "failed to check import status", err)
		return
	}
	if storedHash == hash {
		writeJSON(w, http.StatusOK, map[string]any{"changed": false})
		return
	}

	var words map[string]string
	if err := json.Unmarshal(data, &words); err != nil {
		writeBadRequest(w, r, map[string]string{"body": err.Error()})
		return
	}
	assets := make([]model.SignAsset, 0, len(words))
	for word, ref := range words {
		word, ref = strings.TrimSpace(word), strings.TrimSpace(ref)
		if word == "" || ref == "" {
			continue
		}
		assets = append(assets, model.SignAsset{Word: word, Ref: ref})
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Word < assets[j].Word })

	if err := h.store.ReplaceSignAssets(assets); err != nil {
		writeInternal(w, r, "failed to replace sign assets", err)
		return
	}
	if h.signs != nil {
		h.signs.Replace(words)
	}
	if err := h.store.SetImportedFileHash(signAssetsImportKey, hash); err != nil {
		slog.Error("failed to record import hash", "error", err)
	}

	user := model.UserFromContext(r.Context())
	slog.Info("sign assets imported", "count", len(assets), "by", user.Username)
	writeJSON(w, http.StatusOK, map[string]any{"changed": true, "count": len(assets)})
}

func (h *Handler) handleListConversions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	records, err := h.store.ListConversions(limit)
	if err != nil {
		writeInternal(w, r, "failed to list conversions", err)
		return
	}
	stats, err := h.store.ConversionStats()
	if err != nil {
		writeInternal(w, r, "failed to compute conversion stats", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversions": records, "stats": stats})
}

func (h *Handler) handleListQuizResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.store.ListQuizResults(queryInt(r, "limit", 100))
	if err != nil {
		writeInternal(w, r, "failed to list quiz results", err)
		return
	}
	total, err := h.store.QuizResultCount()
	if err != nil {
		writeInternal(w, r, "failed to count quiz results", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "results": results})
}

func (h *Handler) handleGetQuizResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "resultID")
	res, err := h.store.GetQuizResult(id)
	if err != nil {
		writeInternal(w, r, "failed to load quiz result", err)
		return
	}
	if res == nil {
		http.Error(w, "quiz result not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	export, err := h.store.ExportQuizResults()
	if err != nil {
		writeInternal(w, r, "failed to export quiz results", err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="quiz-results.json"`)
	writeJSON(w, http.StatusOK, export)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		writeInternal(w, r, "failed to list users", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

type createUserRequest struct {
	Username    string         `json:"username" validate:"required,max=64"`
	DisplayName string         `json:"display_name" validate:"max=128"`
	Password    string         `json:"password" validate:"required,min=8"`
	Role        model.UserRole `json:"role" validate:"required,oneof=admin viewer"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeInternal(w, r, "failed to hash password", err)
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	id, err := h.store.CreateUser(model.User{
		Username:     req.Username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         req.Role,
		Active:       true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			writeBadRequest(w, r, map[string]string{"username": "unique"})
			return
		}
		writeInternal(w, r, "failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "userID")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeBadRequest(w, r, map[string]string{"userID": "numeric"})
		return
	}

	if err := h.store.ToggleUserActive(id); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		writeInternal(w, r, "failed to toggle user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return min(v, 1000)
}
