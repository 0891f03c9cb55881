package session

import (
	"sync/atomic"
	"time"

	"github.com/yousuf/loopviz/internal/visualizer"
)

// Context represents a session context with its associated resources
type Context struct {
	SessionID  string
	Controller *visualizer.Controller

	lastAccessed atomic.Int64
}

// NewContext creates a new session context
func NewContext(sessionID string, controller *visualizer.Controller) *Context {
	c := &Context{
		SessionID:  sessionID,
		Controller: controller,
	}
	c.UpdateLastAccessed()
	return c
}

// UpdateLastAccessed marks the session as used now
func (c *Context) UpdateLastAccessed() {
	c.lastAccessed.Store(time.Now().UnixNano())
}

// LastAccessed returns when the session was last used
func (c *Context) LastAccessed() time.Time {
	return time.Unix(0, c.lastAccessed.Load())
}

// Close stops the session's current run
func (c *Context) Close() {
	c.Controller.Stop()
}
