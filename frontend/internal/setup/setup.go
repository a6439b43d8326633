package setup

import (
	"context"
	"errors"
	"fmt"

	"github.com/wavoo-crm/crmchat/frontend/internal/apiclient"
	"github.com/wavoo-crm/crmchat/frontend/internal/composer"
	"github.com/wavoo-crm/crmchat/frontend/internal/conversation"
	"github.com/wavoo-crm/crmchat/frontend/internal/metrics"
	"github.com/wavoo-crm/crmchat/frontend/internal/notify"
	"github.com/wavoo-crm/crmchat/frontend/internal/presence"
	"github.com/wavoo-crm/crmchat/frontend/internal/session"
	"github.com/wavoo-crm/crmchat/frontend/internal/storage/fs"
	"github.com/wavoo-crm/crmchat/frontend/internal/transport"
	"github.com/wavoo-crm/crmchat/shared/config"
	"github.com/wavoo-crm/crmchat/shared/domain"
	"github.com/wavoo-crm/crmchat/shared/logger"
)

// Dependencies is everything one process needs. The socket is built here,
// once, and only the session connects or disconnects it.
type Dependencies struct {
	Public     config.Public
	API        *apiclient.APIClient
	Socket     *transport.Handle
	Session    *session.Manager
	State      *fs.Storage
	CancelFunc context.CancelFunc

	ctx context.Context
}

func SetupDependencies(cfg *config.Config) (*Dependencies, error) {
	ctx, cancel := context.WithCancel(context.Background())

	state, err := fs.New(cfg.Public.StateDir)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize state storage: %w", err)
	}

	socket, err := transport.New(transport.Options{
		URL:          cfg.Public.SocketURL,
		Path:         cfg.Public.SocketPath,
		ReconnectMin: cfg.Public.ReconnectMin,
		ReconnectMax: cfg.Public.ReconnectMax,
		EmitBuffer:   cfg.Public.EmitBuffer,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize socket: %w", err)
	}

	creds := &session.Credentials{}
	apiClient := apiclient.New(cfg.Public.APIBaseURL, cfg.Public.HTTPTimeout, creds)
	sess := session.New(apiClient, socket, state, creds)

	return &Dependencies{
		Public:     cfg.Public,
		API:        apiClient,
		Socket:     socket,
		Session:    sess,
		State:      state,
		CancelFunc: cancel,
		ctx:        ctx,
	}, nil
}

// Close stops background work and tears the socket down. The stored session
// is left in place for the next run.
func (d *Dependencies) Close() {
	d.CancelFunc()
	d.Socket.Close()
}

// Chat is an open conversation with its composer.
type Chat struct {
	Store    *conversation.Store
	Composer *composer.Composer
	subs     *transport.Group
}

func (c *Chat) Close() {
	c.subs.Close()
	c.Store.Close()
}

// OpenChat loads the conversation and starts applying pushed messages to it.
// Pushes are attached before the history fetch so nothing arriving during
// the load is lost. onChange, when set, also sees the load itself.
//
// A failed history fetch still returns the open chat, empty but live,
// together with the error for the caller to show.
func (d *Dependencies) OpenChat(ctx context.Context, contactID domain.ID, mic composer.Microphone, onChange func(conversation.Change)) (*Chat, error) {
	store := conversation.New(d.API)
	subs := store.Listen(d.Socket)
	if onChange != nil {
		subs.Add(store.OnChange(onChange))
	}
	err := store.Load(ctx, contactID)
	if err != nil && store.State() != conversation.StateLoaded {
		subs.Close()
		return nil, err
	}
	return &Chat{
		Store:    store,
		Composer: composer.New(store, d.API, mic, d.Public.MaxUploadBytes),
		subs:     subs,
	}, err
}

func (d *Dependencies) NewTracker(tenantID domain.ID, watch ...domain.ID) *presence.Tracker {
	tracker := presence.New(d.Socket, presence.Options{
		TenantID:     tenantID,
		PollInterval: d.Public.StatusPollInterval,
		Cache:        d.State,
		Watch:        watch,
	})
	tracker.Start(d.ctx)
	return tracker
}

func (d *Dependencies) NewFeed() *notify.Feed {
	feed := notify.NewFeed(d.API)
	feed.Listen(d.Socket)
	return feed
}

// StartDebugServer serves /metrics and /healthz when metrics_addr is set.
func (d *Dependencies) StartDebugServer(health metrics.HealthFunc) {
	if d.Public.MetricsAddr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(d.ctx, d.Public.MetricsAddr, health); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.Error("debug server stopped", "component", "setup", "error", err)
		}
	}()
}
