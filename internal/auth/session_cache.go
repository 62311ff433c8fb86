package auth

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// SessionCache keeps recently validated sessions in memory so most
// requests skip the database.
type SessionCache struct {
	lru *expirable.LRU[string, *Session]
}

func NewSessionCache(size int, ttl time.Duration) *SessionCache {
	if size <= 0 {
		size = 1024
	}
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &SessionCache{lru: expirable.NewLRU[string, *Session](size, nil, ttl)}
}

func (c *SessionCache) Get(token string) (*Session, bool) {
	s, ok := c.lru.Get(token)
	if !ok {
		return nil, false
	}
	if time.Now().After(s.ExpiresAt) {
		c.lru.Remove(token)
		return nil, false
	}
	return s, true
}

func (c *SessionCache) Set(session *Session) {
	if session == nil {
		return
	}
	c.lru.Add(session.Token, session)
}

func (c *SessionCache) Delete(token string) {
	c.lru.Remove(token)
}

func (c *SessionCache) DeleteByUserID(userID string) {
	for _, token := range c.lru.Keys() {
		if s, ok := c.lru.Peek(token); ok && s.UserID == userID {
			c.lru.Remove(token)
		}
	}
}

func (c *SessionCache) Len() int {
	return c.lru.Len()
}
