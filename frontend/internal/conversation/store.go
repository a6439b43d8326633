// Package conversation keeps the message list of the open conversation and
// reconciles optimistic sends with the messages the server confirms.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wavoo-crm/crmchat/frontend/internal/metrics"
	"github.com/wavoo-crm/crmchat/frontend/internal/transport"
	"github.com/wavoo-crm/crmchat/shared/api"
	"github.com/wavoo-crm/crmchat/shared/domain"
	internal_errors "github.com/wavoo-crm/crmchat/shared/errors"
	"github.com/wavoo-crm/crmchat/shared/logger"
)

type State int

const (
	StateEmpty State = iota
	StateLoading
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return "empty"
	}
}

// Outcome says what AppendIncoming did with a message.
type Outcome string

const (
	Ignored    Outcome = metrics.OutcomeIgnored
	Duplicate  Outcome = metrics.OutcomeDuplicate
	Reconciled Outcome = metrics.OutcomeReconciled
	Appended   Outcome = metrics.OutcomeAppended
	Buffered   Outcome = metrics.OutcomeBuffered
)

type ChangeKind string

const (
	ChangeReset      ChangeKind = "reset"
	ChangeLoaded     ChangeKind = "loaded"
	ChangePending    ChangeKind = "pending"
	ChangeAppended   ChangeKind = "appended"
	ChangeReconciled ChangeKind = "reconciled"
	ChangeAck        ChangeKind = "ack"
	ChangeDeleted    ChangeKind = "deleted"
)

// Change is delivered to observers after every mutation. ScrollToNewest asks
// the view to move to the end of the list.
type Change struct {
	Kind           ChangeKind
	ContactID      domain.ID
	Index          int
	ScrollToNewest bool
}

type Fetcher interface {
	ListMessages(ctx context.Context, contactID domain.ID) ([]domain.Message, error)
}

type observer struct {
	id uint64
	fn func(Change)
}

// Store owns the message list. All mutations are serialized; observers run
// after the lock is released, on the goroutine that caused the change.
type Store struct {
	fetcher Fetcher
	log     *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	state     State
	contactID domain.ID
	gen       uint64
	messages  []domain.Message
	// messages pushed while the history fetch is in flight
	early []domain.Message

	obsMu     sync.Mutex
	nextObsID uint64
	observers []observer
}

func New(fetcher Fetcher) *Store {
	return &Store{
		fetcher: fetcher,
		log:     logger.Component("conversation"),
		now:     time.Now,
	}
}

// Load makes contactID the active conversation and replaces the list with its
// history. A response that arrives after another Load has started is dropped
// and ErrStaleConversation returned.
func (s *Store) Load(ctx context.Context, contactID domain.ID) error {
	if contactID == "" {
		return internal_errors.ErrNoConversation
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.contactID = contactID
	s.state = StateLoading
	s.messages = nil
	s.early = nil
	s.mu.Unlock()
	s.updatePendingGauge()
	s.notify(Change{Kind: ChangeReset, ContactID: contactID})

	history, err := s.fetcher.ListMessages(ctx, contactID)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.log.Debug("discarding stale history", "contact_id", contactID)
		return internal_errors.ErrStaleConversation
	}
	s.messages = make([]domain.Message, 0, len(history)+len(s.early))
	s.messages = append(s.messages, history...)
	for _, m := range s.early {
		if s.indexOfID(m.ID) < 0 {
			s.messages = append(s.messages, m)
		}
	}
	s.early = nil
	s.state = StateLoaded
	count := len(s.messages)
	s.mu.Unlock()

	s.updatePendingGauge()
	s.notify(Change{Kind: ChangeLoaded, ContactID: contactID, Index: count - 1, ScrollToNewest: true})

	if err != nil {
		return fmt.Errorf("failed to load conversation %s: %w", contactID, err)
	}
	s.log.Debug("conversation loaded", "contact_id", contactID, "messages", count)
	return nil
}

// Close clears the active conversation. Later pushes are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	s.gen++
	contactID := s.contactID
	s.contactID = ""
	s.state = StateEmpty
	s.messages = nil
	s.early = nil
	s.mu.Unlock()
	s.updatePendingGauge()
	s.notify(Change{Kind: ChangeReset, ContactID: contactID})
}

// AppendIncoming applies a message pushed by the server.
func (s *Store) AppendIncoming(msg domain.Message) Outcome {
	outcome, change := s.appendIncoming(msg)
	metrics.IncomingMessagesTotal.WithLabelValues(string(outcome)).Inc()
	if change != nil {
		s.updatePendingGauge()
		s.notify(*change)
	}
	return outcome
}

func (s *Store) appendIncoming(msg domain.Message) (Outcome, *Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateEmpty || msg.ContactID.String() != s.contactID.String() {
		return Ignored, nil
	}
	msg.Pending = false

	if s.state == StateLoading {
		for _, m := range s.early {
			if m.ID == msg.ID {
				return Duplicate, nil
			}
		}
		s.early = append(s.early, msg)
		return Buffered, nil
	}

	if s.indexOfID(msg.ID) >= 0 {
		return Duplicate, nil
	}
	for i, m := range s.messages {
		if m.Pending && m.SameSend(msg) {
			s.messages[i] = msg
			return Reconciled, &Change{Kind: ChangeReconciled, ContactID: s.contactID, Index: i, ScrollToNewest: true}
		}
	}
	s.messages = append(s.messages, msg)
	return Appended, &Change{Kind: ChangeAppended, ContactID: s.contactID, Index: len(s.messages) - 1, ScrollToNewest: true}
}

// AddPending appends an optimistic outgoing message. It must be called
// before the send request is issued.
func (s *Store) AddPending(body string, kind domain.Kind, meta domain.MessageMeta) (domain.Message, error) {
	s.mu.Lock()
	if s.state != StateLoaded {
		s.mu.Unlock()
		return domain.Message{}, internal_errors.ErrNoConversation
	}
	ref := uuid.NewString()
	meta.ClientRef = ref
	msg := domain.Message{
		ID:        domain.ID(domain.TempIDPrefix + ref),
		ContactID: s.contactID,
		Direction: domain.DirectionOut,
		Type:      kind,
		Body:      body,
		Meta:      meta,
		CreatedAt: s.now(),
		Pending:   true,
	}
	s.messages = append(s.messages, msg)
	change := Change{Kind: ChangePending, ContactID: s.contactID, Index: len(s.messages) - 1, ScrollToNewest: true}
	s.mu.Unlock()

	s.updatePendingGauge()
	s.notify(change)
	return msg, nil
}

// Confirm reconciles a pending entry with the message returned by the send
// request. If the push echo already replaced it this is a no-op.
func (s *Store) Confirm(tempID domain.ID, confirmed domain.Message) Outcome {
	s.mu.Lock()
	if s.state != StateLoaded || confirmed.ContactID.String() != s.contactID.String() {
		s.mu.Unlock()
		return Ignored
	}
	if s.indexOfID(confirmed.ID) >= 0 {
		s.mu.Unlock()
		return Duplicate
	}
	i := s.indexOfID(tempID)
	if i < 0 || !s.messages[i].Pending {
		s.mu.Unlock()
		return Ignored
	}
	confirmed.Pending = false
	s.messages[i] = confirmed
	change := Change{Kind: ChangeReconciled, ContactID: s.contactID, Index: i, ScrollToNewest: true}
	s.mu.Unlock()

	s.updatePendingGauge()
	s.notify(change)
	return Reconciled
}

// ApplyAck raises the delivery level of a message. Acks never go backwards.
func (s *Store) ApplyAck(update domain.AckUpdate) bool {
	s.mu.Lock()
	if s.state != StateLoaded {
		s.mu.Unlock()
		return false
	}
	if update.ContactID != "" && update.ContactID.String() != s.contactID.String() {
		s.mu.Unlock()
		return false
	}
	i := s.indexOfID(update.MessageID)
	if i < 0 || s.messages[i].Meta.Ack >= update.Ack {
		s.mu.Unlock()
		return false
	}
	s.messages[i].Meta.Ack = update.Ack
	change := Change{Kind: ChangeAck, ContactID: s.contactID, Index: i}
	s.mu.Unlock()

	s.notify(change)
	return true
}

// MarkDeleted soft-deletes a message in place.
func (s *Store) MarkDeleted(id domain.ID, forEveryone bool) bool {
	s.mu.Lock()
	i := s.indexOfID(id)
	if s.state != StateLoaded || i < 0 {
		s.mu.Unlock()
		return false
	}
	s.messages[i].Deleted = true
	s.messages[i].DeletedForEveryone = s.messages[i].DeletedForEveryone || forEveryone
	change := Change{Kind: ChangeDeleted, ContactID: s.contactID, Index: i}
	s.mu.Unlock()

	s.notify(change)
	return true
}

// Listen feeds pushed messages and acks into the store until the returned
// group is closed.
func (s *Store) Listen(src transport.EventSource) *transport.Group {
	g := &transport.Group{}
	g.Add(
		transport.Subscribe(src, api.EventMessageNew, func(m domain.Message) {
			s.AppendIncoming(m)
		}),
		transport.Subscribe(src, api.EventMessageAck, func(u domain.AckUpdate) {
			s.ApplyAck(u)
		}),
	)
	return g
}

// OnChange registers an observer. Observers run in registration order.
func (s *Store) OnChange(fn func(Change)) *transport.Subscription {
	s.obsMu.Lock()
	s.nextObsID++
	id := s.nextObsID
	s.observers = append(s.observers, observer{id: id, fn: fn})
	s.obsMu.Unlock()

	return transport.NewSubscription(func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	})
}

func (s *Store) notify(c Change) {
	s.obsMu.Lock()
	list := append([]observer(nil), s.observers...)
	s.obsMu.Unlock()
	for _, o := range list {
		o.fn(c)
	}
}

// Messages returns a copy of the list in arrival order.
func (s *Store) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.messages...)
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) ContactID() domain.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contactID
}

func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

func (s *Store) pendingLocked() int {
	n := 0
	for _, m := range s.messages {
		if m.Pending {
			n++
		}
	}
	return n
}

func (s *Store) updatePendingGauge() {
	metrics.PendingMessages.Set(float64(s.PendingCount()))
}

func (s *Store) indexOfID(id domain.ID) int {
	if id == "" {
		return -1
	}
	for i, m := range s.messages {
		if m.ID.String() == id.String() {
			return i
		}
	}
	return -1
}
