package main

import (
	"sync"

	"github.com/google/uuid"
)

// Registry owns the set of live sessions. It is constructed once per process
// and handed to the HTTP layer; sessions remove themselves from it when every
// seat has been retired.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session

	cfg      *Config
	reporter resultReporter
}

func newRegistry(cfg *Config, reporter resultReporter) *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		cfg:      cfg,
		reporter: reporter,
	}
}

// place resolves which session an arriving connection belongs to and queues
// the join onto that session's loop: identity match first (reconnect), then
// any session with exactly one seat taken (matchmaking), else a new session.
// Matchmaking is first-available, not fairness-weighted.
func (reg *Registry) place(c *Client, name string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	sess := reg.matchLocked(c.playerID)
	if sess == nil {
		sess = reg.createLocked()
	}

	c.session.Store(sess)
	sess.reserve()
	if !sess.offer(joinCmd{client: c, name: name}) {
		// The target's inbox is saturated, which means its loop is wedged
		// or gone. Seat the player in a fresh session instead of losing
		// the join.
		delete(reg.sessions, sess.id)
		sess = reg.createLocked()
		c.session.Store(sess)
		sess.reserve()
		sess.offer(joinCmd{client: c, name: name})
	}
}

func (reg *Registry) matchLocked(playerID string) *session {
	for _, s := range reg.sessions {
		if s.hasIdentity(playerID) {
			return s
		}
	}
	// Occupancy includes joins still queued for a session's loop, so two
	// players arriving back-to-back pair up instead of each opening a
	// session of their own.
	for _, s := range reg.sessions {
		if s.occupancy() == 1 {
			return s
		}
	}
	return nil
}

// create registers and starts an empty session; used by migration.
func (reg *Registry) create() *session {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return reg.createLocked()
}

func (reg *Registry) createLocked() *session {
	s := newSession(uuid.NewString(), reg)
	reg.sessions[s.id] = s
	go s.run()

	logf(reg.cfg, "GAMES: Created session %s", s.id)

	return s
}

func (reg *Registry) remove(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	delete(reg.sessions, id)
}

// counts reports live sessions and connected players, for the home page.
func (reg *Registry) counts() (sessions, players int) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for _, s := range reg.sessions {
		sessions++
		players += s.connectedCount()
	}
	return sessions, players
}
