// Package router handles messages arriving on live websocket
// connections: heartbeats, operator notifications and everything it
// does not recognize.
package router

import (
	"context"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/LuG3Zz/Blog/pkg/presence"
	"github.com/LuG3Zz/Blog/pkg/storage"
	"github.com/LuG3Zz/Blog/pkg/transport"
	"github.com/LuG3Zz/Blog/pkg/wire"
)

// ConnMeta is the identity context of one connection, fixed at accept
// time.
type ConnMeta struct {
	ClientID string
	UserID   string
	Username string
	IsAdmin  bool
}

type MessageRouter struct {
	logger      *slog.Logger
	broadcaster *presence.Broadcaster
	history     *storage.Store
}

func NewMessageRouter(logger *slog.Logger, broadcaster *presence.Broadcaster, history *storage.Store) *MessageRouter {
	return &MessageRouter{
		logger:      logger.With(slog.String("component", "message_router")),
		broadcaster: broadcaster,
		history:     history,
	}
}

// HandlerFor returns the message callback for one connection. The
// connection's identity is baked in so inbound messages cannot claim a
// different sender.
func (r *MessageRouter) HandlerFor(meta ConnMeta) transport.MessageHandler {
	return func(ctx context.Context, clientID string, msg []byte) {
		if !gjson.ValidBytes(msg) {
			r.sendError(clientID, "invalid JSON", "")
			return
		}
		msgType := gjson.GetBytes(msg, "type").String()

		switch wire.Type(msgType) {
		case wire.TypePing:
			r.send(clientID, wire.New(wire.TypePong, struct{}{}))

		case wire.TypeAdminNotification:
			if !meta.IsAdmin {
				r.sendError(clientID, "unknown or unauthorized message type", msgType)
				return
			}
			r.handleAdminNotification(ctx, meta, msg)

		default:
			r.sendError(clientID, "unknown or unauthorized message type", msgType)
		}
	}
}

// handleAdminNotification fans an operator notice out to its targets
// (or everyone) and records it in the history store.
func (r *MessageRouter) handleAdminNotification(ctx context.Context, meta ConnMeta, msg []byte) {
	data := gjson.GetBytes(msg, "data")

	adminName := meta.Username
	if adminName == "" {
		adminName = "Administrator"
	}
	payload := wire.AdminNotificationPayload{
		Title:     data.Get("title").String(),
		Content:   data.Get("content").String(),
		Level:     data.Get("level").String(),
		AdminID:   meta.UserID,
		AdminName: adminName,
	}
	if payload.Title == "" {
		payload.Title = "Admin notification"
	}
	if payload.Level == "" {
		payload.Level = "info"
	}

	var targets []string
	for _, t := range data.Get("target_users").Array() {
		if id := t.String(); id != "" {
			targets = append(targets, id)
		}
	}

	if r.history != nil {
		_, err := r.history.InsertNotification(ctx, &storage.Notification{
			Title:         payload.Title,
			Content:       payload.Content,
			Level:         payload.Level,
			TargetUsers:   targets,
			CreatedBy:     meta.UserID,
			CreatedByName: adminName,
		})
		if err != nil {
			r.logger.Error("Failed to persist notification", slog.Any("error", err))
		}
	}

	encoded, err := wire.New(wire.TypeAdminNotification, payload).Encode()
	if err != nil {
		r.logger.Error("Failed to encode notification", slog.Any("error", err))
		return
	}

	if len(targets) > 0 {
		sent := 0
		for _, userID := range targets {
			sent += r.broadcaster.SendToUser(userID, encoded)
		}
		r.logger.Info("Notification sent to targeted users",
			slog.Int("targets", len(targets)), slog.Int("sent", sent))
		return
	}
	sent := r.broadcaster.Broadcast(encoded, "")
	r.logger.Info("Notification broadcast", slog.Int("sent", sent))
}

func (r *MessageRouter) send(clientID string, envelope wire.Envelope) {
	encoded, err := envelope.Encode()
	if err != nil {
		r.logger.Error("Failed to encode message", slog.Any("error", err))
		return
	}
	r.broadcaster.SendTo(clientID, encoded)
}

func (r *MessageRouter) sendError(clientID, message, receivedType string) {
	r.send(clientID, wire.New(wire.TypeError, wire.ErrorPayload{
		Message:      message,
		ReceivedType: receivedType,
	}))
}
