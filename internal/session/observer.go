package session

import (
	"example.com/fitnessclient/internal/auth"
	"example.com/fitnessclient/internal/events"
)

// Observer receives every session transition together with the credential active after it.
type Observer interface {
	SessionChanged(tr events.SessionTransition, cred *auth.Credential)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(tr events.SessionTransition, cred *auth.Credential)

func (f ObserverFunc) SessionChanged(tr events.SessionTransition, cred *auth.Credential) {
	f(tr, cred)
}

// Subscribe registers o and returns a function that removes it.
func (c *Controller) Subscribe(o Observer) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextObsID++
	id := c.nextObsID
	c.observers = append(c.observers, observerEntry{id: id, observer: o})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, entry := range c.observers {
			if entry.id == id {
				c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

type delivery struct {
	transitions []events.SessionTransition
	cred        *auth.Credential
	observers   []Observer
}

// publish must be called with c.mu held; it queues transitions, releases c.mu and
// delivers them in order outside the state lock.
func (c *Controller) publish(transitions []events.SessionTransition) {
	if len(transitions) > 0 {
		var cred *auth.Credential
		if c.cred != nil {
			copied := *c.cred
			cred = &copied
		}
		observers := make([]Observer, len(c.observers))
		for i, entry := range c.observers {
			observers[i] = entry.observer
		}
		c.pending = append(c.pending, delivery{transitions: transitions, cred: cred, observers: observers})
	}
	c.mu.Unlock()
	c.flush()
}

// flush drains queued deliveries. c.mu is only held to take the queue, never while
// waiting on notifyMu, so observers can read State and Credential.
func (c *Controller) flush() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	for {
		c.mu.Lock()
		batch := c.pending
		c.pending = nil
		c.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, d := range batch {
			for _, tr := range d.transitions {
				for _, o := range d.observers {
					o.SessionChanged(tr, d.cred)
				}
			}
		}
	}
}
