package domain

import "time"

// ChannelState is the WhatsApp link state reported by the server.
type ChannelState string

const (
	StateLoading       ChannelState = "loading"
	StateInitializing  ChannelState = "initializing"
	StateScan          ChannelState = "scan"
	StateConnected     ChannelState = "connected"
	StateReady         ChannelState = "ready"
	StateError         ChannelState = "error"
	StateNotConfigured ChannelState = "not_configured"
)

func (s ChannelState) Known() bool {
	switch s {
	case StateLoading, StateInitializing, StateScan, StateConnected, StateReady, StateError, StateNotConfigured:
		return true
	}
	return false
}

// Linked reports whether messages can flow through the channel.
func (s ChannelState) Linked() bool {
	return s == StateConnected || s == StateReady
}

// StatusSnapshot is replaced whole on every status push.
type StatusSnapshot struct {
	TenantID ID           `json:"tenantId,omitempty"`
	State    ChannelState `json:"state"`
	QR       string       `json:"qr,omitempty"`
	Ready    bool         `json:"ready,omitempty"`
}

// IsError treats unrecognized states as errors, like the error badge does.
func (s StatusSnapshot) IsError() bool {
	return s.State == StateError || (s.State != "" && !s.State.Known())
}

func LoadingSnapshot() StatusSnapshot {
	return StatusSnapshot{State: StateLoading}
}

type PresenceState string

const (
	PresenceOnline  PresenceState = "online"
	PresenceIdle    PresenceState = "idle"
	PresenceOffline PresenceState = "offline"
)

type Presence struct {
	UserID   ID
	State    PresenceState
	LastSeen *time.Time
}

// PresenceChange is the payload of user:status_change.
type PresenceChange struct {
	UserID   ID         `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// IdleChange is the payload of user:idle.
type IdleChange struct {
	UserID ID `json:"userId"`
}

// ForceLogout is the payload of force_logout.
type ForceLogout struct {
	Message string `json:"message"`
}
