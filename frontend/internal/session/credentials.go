package session

import "sync"

// Credentials holds the bearer tokens the REST client attaches. It is shared
// between the session manager, which writes it, and the API client.
type Credentials struct {
	mu         sync.RWMutex
	token      string
	superToken string
}

func (c *Credentials) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Credentials) SuperToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.superToken
}

func (c *Credentials) set(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Credentials) setSuper(token string) {
	c.mu.Lock()
	c.superToken = token
	c.mu.Unlock()
}
