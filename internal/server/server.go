package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	wsrouter "github.com/LuG3Zz/Blog/internal/router"
	"github.com/LuG3Zz/Blog/internal/server/middleware"
	"github.com/LuG3Zz/Blog/pkg/config"
	"github.com/LuG3Zz/Blog/pkg/geo"
	"github.com/LuG3Zz/Blog/pkg/presence"
	"github.com/LuG3Zz/Blog/pkg/presence/registry"
	"github.com/LuG3Zz/Blog/pkg/storage"
	"github.com/LuG3Zz/Blog/pkg/transport"
	"github.com/LuG3Zz/Blog/pkg/wire"
)

type App struct {
	logger      *slog.Logger
	registry    presence.Registry
	coordinator *presence.Coordinator
	broadcaster *presence.Broadcaster
	msgRouter   *wsrouter.MessageRouter
	resolver    geo.Resolver
	store       *storage.Store
	config      *config.Config

	// usernames per live connection, kept for offline payloads; the
	// registry itself only knows identities.
	names sync.Map

	wg   sync.WaitGroup
	http *http.Server
	ctx  context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, store *storage.Store, resolver geo.Resolver) *App {
	reg := registry.NewInMemory(logger)
	coordinator := presence.NewCoordinator(logger, reg)
	broadcaster := presence.NewBroadcaster(logger, reg)
	msgRouter := wsrouter.NewMessageRouter(logger, broadcaster, store)

	app := &App{
		logger:      logger,
		registry:    reg,
		coordinator: coordinator,
		broadcaster: broadcaster,
		msgRouter:   msgRouter,
		resolver:    resolver,
		store:       store,
		config:      cfg,
		ctx:         rootCtx,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestMetadataMiddleware())
	r.Use(middleware.NewRequestLogger(logger))

	r.Method(http.MethodGet, "/ws", middleware.Chain(
		http.HandlerFunc(app.upgradeHandler),
		middleware.NewOptionalAuthMiddleware(logger, cfg.Server.Auth.JWTSecret),
		middleware.NewConnectionLimiter(
			logger,
			reg.ConnectionCount,
			reg.OriginCount,
			app.cycleConnection,
			cfg.Server.ConnectionLimit,
		),
	))

	r.Get("/healthz", app.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAdminAuthMiddleware(logger, cfg.Server.Auth.JWTSecret))
		r.Post("/admin/notifications", app.handleSendNotification)
		r.Get("/admin/notifications", app.handleListNotifications)
		r.Get("/ws/status", app.handleStatus)
	})

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}
	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.Addr),
		slog.String("userID", reqMeta.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		r.URL.Query().Get("client_id"),
		transport.ConnectionConfig(a.config.Transport),
		nil,
		nil,
		a.logger,
	)

	identity := presence.Anonymous
	if reqMeta.UserID != "" {
		identity = presence.User(reqMeta.UserID)
	}
	a.names.Store(conn.ID(), reqMeta.Name)

	// A reconnect reusing a live ClientID displaces the old registry
	// entry; the stale transport is closed after the new registration so
	// its close handler sees it no longer owns the entry.
	prev, displaced := a.registry.Handle(conn.ID())

	notify := a.coordinator.Connect(conn.ID(), conn, identity, reqMeta.Origin, reqMeta.IsAdmin)

	if displaced {
		if closer, ok := prev.(interface{ Close(error) }); ok {
			closer.Close(errors.New("displaced by reconnect"))
		}
	}

	conn.SetOnMessageHandler(a.msgRouter.HandlerFor(wsrouter.ConnMeta{
		ClientID: conn.ID(),
		UserID:   reqMeta.UserID,
		Username: reqMeta.Name,
		IsAdmin:  reqMeta.IsAdmin,
	}))
	conn.SetOnCloseHandler(func(clientID string, closeErr error) {
		a.handleConnectionClose(conn, clientID, closeErr)
	})
	conn.Run()

	// Welcome notice to the new connection, best effort.
	welcome := wire.New(wire.TypeSystemNotification, wire.SystemPayload{
		Message:     "connection established",
		ClientID:    conn.ID(),
		UserID:      reqMeta.UserID,
		IsAdmin:     reqMeta.IsAdmin,
		IPAddress:   reqMeta.Origin,
		IsAnonymous: identity.IsAnonymous(),
	})
	if encoded, err := welcome.Encode(); err == nil {
		a.broadcaster.SendTo(conn.ID(), encoded)
	}

	if notify {
		a.announcePresence(wire.TypeUserOnline, identity, reqMeta.Origin, reqMeta.IsAdmin, reqMeta.Name, conn.ID())
	}

	connLogger.Info("Connection fully established", slog.String("clientID", conn.ID()))
	<-conn.Done()
}

// handleConnectionClose runs when a transport connection dies for any
// reason. Unregistering twice is harmless, so this and the
// broadcaster's failed-send cleanup can race freely.
func (a *App) handleConnectionClose(conn presence.Sender, clientID string, err error) {
	// Only the connection that owns the registry entry may tear it
	// down: a displaced transport closing late must not evict its
	// replacement.
	if h, ok := a.registry.Handle(clientID); ok && h != conn {
		return
	}
	name := ""
	if v, ok := a.names.LoadAndDelete(clientID); ok {
		name, _ = v.(string)
	}

	info, notify := a.coordinator.Disconnect(clientID)
	if !notify {
		return
	}
	a.announcePresence(wire.TypeUserOffline, info.Identity, info.Origin, info.Privileged, name, "")
}

// announcePresence broadcasts an online/offline event with the display
// name composed from the resolved region.
func (a *App) announcePresence(t wire.Type, identity presence.Identity, origin string, isAdmin bool, username, exclude string) {
	region := a.resolver.Locate(a.ctx, origin)

	name := username
	if identity.IsAnonymous() {
		name = "Visitor"
	} else if name == "" {
		name = identity.UserID
	}

	payload := wire.PresencePayload{
		UserID:           identity.UserID,
		Username:         fmt.Sprintf("%s from %s", name, region),
		OriginalUsername: name,
		IPLocation:       region,
		IsAdmin:          isAdmin,
		IsAnonymous:      identity.IsAnonymous(),
	}
	encoded, err := wire.New(t, payload).Encode()
	if err != nil {
		a.logger.Error("Failed to encode presence event", slog.Any("error", err))
		return
	}
	sent := a.broadcaster.Broadcast(encoded, exclude)
	a.logger.Debug("Presence event broadcast",
		slog.String("type", string(t)),
		slog.String("origin", origin),
		slog.Int("sent", sent),
	)
}

// cycleConnection closes the oldest connection of a user to make room
// for a new one (connection limiter "cycle" mode).
func (a *App) cycleConnection(userID string) {
	clientID, ok := a.registry.OldestConnectionOf(userID)
	if !ok {
		return
	}
	handle, ok := a.registry.Handle(clientID)
	if !ok {
		return
	}
	if closer, ok := handle.(interface{ Close(error) }); ok {
		a.logger.Info("Cycling connection: closing oldest",
			slog.String("userID", userID), slog.String("clientID", clientID))
		closer.Close(errors.New("connection cycled by new connection"))
	}
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, clientID := range a.registry.AllClients() {
		if handle, ok := a.registry.Handle(clientID); ok {
			if closer, ok := handle.(interface{ Close(error) }); ok {
				closer.Close(errors.New("graceful shutdown"))
			}
		}
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
