// Package presence tracks socket connectivity, the tenant's WhatsApp link
// status and the online state of watched peers.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wavoo-crm/crmchat/frontend/internal/storage/fs"
	"github.com/wavoo-crm/crmchat/frontend/internal/transport"
	"github.com/wavoo-crm/crmchat/shared/api"
	"github.com/wavoo-crm/crmchat/shared/domain"
	"github.com/wavoo-crm/crmchat/shared/logger"
)

// StatusCache persists the last-known channel status between runs.
type StatusCache interface {
	Save(key string, v any) error
	Load(key string, v any) error
	Delete(key string) error
}

type Options struct {
	TenantID domain.ID
	// PollInterval > 0 re-requests the status periodically in case a push
	// was missed.
	PollInterval time.Duration
	Cache        StatusCache
	Watch        []domain.ID
}

type EventKind string

const (
	EventConnection EventKind = "connection"
	EventStatus     EventKind = "status"
	EventPresence   EventKind = "presence"
)

// Event tells observers which part of the tracked state changed.
type Event struct {
	Kind      EventKind
	Connected bool
	Status    domain.StatusSnapshot
	Presence  domain.Presence
}

type Tracker struct {
	src    transport.EventSource
	tenant domain.ID
	poll   time.Duration
	cache  StatusCache
	log    *slog.Logger

	mu        sync.RWMutex
	connected bool
	status    domain.StatusSnapshot
	watched   map[string]bool
	peers     map[string]domain.Presence
	observers []func(Event)

	subs    transport.Group
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func New(src transport.EventSource, opts Options) *Tracker {
	t := &Tracker{
		src:     src,
		tenant:  opts.TenantID,
		poll:    opts.PollInterval,
		cache:   opts.Cache,
		log:     logger.Component("presence").With("tenant_id", opts.TenantID.String()),
		status:  domain.LoadingSnapshot(),
		watched: make(map[string]bool),
		peers:   make(map[string]domain.Presence),
	}
	for _, id := range opts.Watch {
		t.watchLocked(id)
	}
	t.restoreCache()
	return t
}

func (t *Tracker) cacheKey() string {
	return "status-" + t.tenant.String()
}

// restoreCache seeds the snapshot from disk. A cached error state is thrown
// away so the tracker starts from loading instead of a stale error.
func (t *Tracker) restoreCache() {
	if t.cache == nil || t.tenant == "" {
		return
	}
	var cached domain.StatusSnapshot
	if err := t.cache.Load(t.cacheKey(), &cached); err != nil {
		if !errors.Is(err, fs.ErrNotFound) {
			t.log.Warn("ignoring unreadable status cache", "error", err)
		}
		return
	}
	if cached.State == "" || cached.IsError() {
		if err := t.cache.Delete(t.cacheKey()); err != nil {
			t.log.Warn("failed to discard status cache", "error", err)
		}
		return
	}
	t.status = cached
}

// Start attaches the listeners, joins the tenant room and starts the poller.
// Calling it twice has no effect.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.connected = t.src.Connected()
	t.mu.Unlock()

	t.subs.Add(
		t.src.On(api.EventConnect, func(json.RawMessage) { t.onConnect() }),
		transport.Subscribe(t.src, api.EventDisconnect, func(reason string) { t.onDisconnect(reason) }),
		transport.Subscribe(t.src, api.EventChannelStatus, t.onStatus),
		transport.Subscribe(t.src, api.EventUserStatusChange, t.onPresenceChange),
		transport.Subscribe(t.src, api.EventUserIdle, t.onIdle),
	)

	if t.src.Connected() {
		t.join()
	}

	if t.poll > 0 && t.tenant != "" {
		pollCtx, cancel := context.WithCancel(ctx)
		t.cancel = cancel
		t.startPolling(pollCtx)
	}
}

// Close detaches every listener and stops the poller.
func (t *Tracker) Close() {
	t.subs.Close()
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
}

func (t *Tracker) join() {
	if t.tenant == "" {
		return
	}
	req := api.JoinRequest{TenantID: t.tenant}
	if err := t.src.Emit(api.EventJoin, req); err != nil {
		t.log.Warn("failed to join tenant room", "error", err)
	}
}

// Refresh asks the server for the current channel status.
func (t *Tracker) Refresh() error {
	return t.src.Emit(api.EventRequestStatus, api.JoinRequest{TenantID: t.tenant})
}

func (t *Tracker) startPolling(ctx context.Context) {
	ticker := time.NewTicker(t.poll)
	t.log.Info("started status polling", "interval", t.poll)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !t.src.Connected() {
					continue
				}
				if err := t.Refresh(); err != nil {
					t.log.Error("status refresh failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (t *Tracker) onConnect() {
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	t.join()
	t.notify(Event{Kind: EventConnection, Connected: true})
}

func (t *Tracker) onDisconnect(reason string) {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	t.log.Debug("socket disconnected", "reason", reason)
	t.notify(Event{Kind: EventConnection, Connected: false})
}

func (t *Tracker) onStatus(snap domain.StatusSnapshot) {
	if snap.TenantID.String() != t.tenant.String() {
		return
	}
	t.mu.Lock()
	t.status = snap
	t.mu.Unlock()

	if t.cache != nil && !snap.IsError() && snap.State != "" {
		if err := t.cache.Save(t.cacheKey(), snap); err != nil {
			t.log.Warn("failed to cache status", "error", err)
		}
	}
	t.notify(Event{Kind: EventStatus, Status: snap})
}

func (t *Tracker) onPresenceChange(change domain.PresenceChange) {
	p := domain.Presence{UserID: change.UserID, State: domain.PresenceOffline, LastSeen: change.LastSeen}
	if change.IsOnline {
		p.State = domain.PresenceOnline
	}
	t.setPresence(p)
}

func (t *Tracker) onIdle(change domain.IdleChange) {
	t.mu.RLock()
	p, ok := t.peers[change.UserID.String()]
	t.mu.RUnlock()
	if !ok {
		p = domain.Presence{UserID: change.UserID}
	}
	p.State = domain.PresenceIdle
	t.setPresence(p)
}

func (t *Tracker) setPresence(p domain.Presence) {
	key := p.UserID.String()
	t.mu.Lock()
	if !t.watched[key] {
		t.mu.Unlock()
		return
	}
	t.peers[key] = p
	t.mu.Unlock()
	t.notify(Event{Kind: EventPresence, Presence: p})
}

// Watch starts tracking a peer. Its state is offline until a push arrives.
func (t *Tracker) Watch(ids ...domain.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		t.watchLocked(id)
	}
}

func (t *Tracker) watchLocked(id domain.ID) {
	key := id.String()
	if key == "" || t.watched[key] {
		return
	}
	t.watched[key] = true
	t.peers[key] = domain.Presence{UserID: id, State: domain.PresenceOffline}
}

func (t *Tracker) Unwatch(id domain.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.watched, id.String())
	delete(t.peers, id.String())
}

// OnChange registers an observer. Observers run on the dispatcher goroutine.
func (t *Tracker) OnChange(fn func(Event)) {
	t.mu.Lock()
	t.observers = append(t.observers, fn)
	t.mu.Unlock()
}

func (t *Tracker) notify(e Event) {
	t.mu.RLock()
	list := append([]func(Event){}, t.observers...)
	t.mu.RUnlock()
	for _, fn := range list {
		fn(e)
	}
}

func (t *Tracker) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

func (t *Tracker) Status() domain.StatusSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func (t *Tracker) Presence(id domain.ID) (domain.Presence, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[id.String()]
	return p, ok
}

// Peers returns the tracked peers in no particular order.
func (t *Tracker) Peers() []domain.Presence {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Presence, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p)
	}
	return out
}
