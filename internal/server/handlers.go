package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/LuG3Zz/Blog/internal/server/middleware"
	"github.com/LuG3Zz/Blog/pkg/storage"
	"github.com/LuG3Zz/Blog/pkg/wire"
)

type adminNotificationRequest struct {
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Level       string   `json:"level"`
	TargetUsers []string `json:"target_users,omitempty"`
}

type notificationItem struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Level         string    `json:"level"`
	TargetUsers   []string  `json:"target_users,omitempty"`
	CreatedBy     string    `json:"created_by"`
	CreatedByName string    `json:"created_by_username"`
	CreatedAt     time.Time `json:"created_at"`
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleSendNotification delivers an operator-authored notification to
// specific users or to everyone, and records it in the history.
func (a *App) handleSendNotification(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())

	var req adminNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" || req.Content == "" {
		http.Error(w, "title and content are required", http.StatusBadRequest)
		return
	}
	if req.Level == "" {
		req.Level = "info"
	}

	adminName := reqMeta.Name
	if adminName == "" {
		adminName = "Administrator"
	}

	if _, err := a.store.InsertNotification(r.Context(), &storage.Notification{
		Title:         req.Title,
		Content:       req.Content,
		Level:         req.Level,
		TargetUsers:   req.TargetUsers,
		CreatedBy:     reqMeta.UserID,
		CreatedByName: adminName,
	}); err != nil {
		a.logger.Error("Failed to persist notification", slog.Any("error", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	envelope := wire.New(wire.TypeAdminNotification, wire.AdminNotificationPayload{
		Title:     req.Title,
		Content:   req.Content,
		Level:     req.Level,
		AdminID:   reqMeta.UserID,
		AdminName: adminName,
	})
	encoded, err := envelope.Encode()
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if len(req.TargetUsers) > 0 {
		sent := 0
		for _, userID := range req.TargetUsers {
			sent += a.broadcaster.SendToUser(userID, encoded)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"sent_count":   sent,
			"target_type":  "specific_users",
			"target_count": len(req.TargetUsers),
		})
		return
	}

	sent := a.broadcaster.Broadcast(encoded, "")
	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"sent_count":        sent,
		"target_type":       "all_users",
		"connections_count": a.registry.Stats().Connections,
	})
}

// handleListNotifications returns a page of notification history,
// newest first, optionally filtered by level.
func (a *App) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", 10)
	level := r.URL.Query().Get("level")

	items, total, err := a.store.ListNotifications(r.Context(), level, skip, limit)
	if err != nil {
		a.logger.Error("Failed to list notifications", slog.Any("error", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	out := make([]notificationItem, 0, len(items))
	for _, n := range items {
		out = append(out, notificationItem{
			ID:            n.ID,
			Title:         n.Title,
			Content:       n.Content,
			Level:         n.Level,
			TargetUsers:   n.TargetUsers,
			CreatedBy:     n.CreatedBy,
			CreatedByName: n.CreatedByName,
			CreatedAt:     n.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": out,
		"total": total,
	})
}

// handleStatus reports the registry counters.
func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	stats := a.registry.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"active_connections": stats.Connections,
		"active_users":       stats.Users,
		"active_ips":         stats.Origins,
		"active_admins":      stats.Privileged,
		"timestamp":          time.Now().Format(time.RFC3339),
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
