package main

import (
	"strconv"
	"sync"
	"time"
)

// Commands consumed by a session's run loop. Connection pumps, the registry,
// and timers all talk to a session exclusively through these, so every slot
// and GameState mutation happens on the loop goroutine.
type joinCmd struct {
	client *Client
	name   string // preferred display name, may be empty
}

type closedCmd struct {
	client *Client
}

type keyCmd struct {
	client *Client
	key    string
	down   bool
}

// Timer commands carry the generation captured at schedule time; the loop
// discards them if the game has since moved on.
type startCmd struct {
	gen uint64
}

type serveCmd struct {
	gen uint64
	dir int
}

// playerSlot is one seat in a session, bound to a player identity across
// reconnects. playerNumber never changes once assigned, and removed never
// reverts except through an explicit reconnect.
type playerSlot struct {
	playerID         string
	displayName      string
	client           *Client
	playerNumber     int
	connected        bool
	removed          bool
	lastDisconnectAt time.Time

	upHeld   bool
	downHeld bool

	// waitNotified marks that the opponent has already been told to wait
	// for this seat, so the notice is sent once per disconnect episode.
	waitNotified bool
}

// direction maps independent up/down key state to a movement input, so
// holding both keys cancels out.
func (slot *playerSlot) direction() int {
	d := 0
	if slot.upHeld {
		d--
	}
	if slot.downHeld {
		d++
	}
	return d
}

// session pairs up to two players with one running game. A single goroutine
// (run) owns all mutable state; mu only covers the slot metadata the registry
// reads for matchmaking.
type session struct {
	id       string
	registry *Registry
	cfg      *Config

	inbox chan any

	mu    sync.RWMutex
	slots []*playerSlot

	// pending counts joins queued onto the inbox but not yet seated by the
	// loop. The registry matches on it so the seat is taken the moment a
	// join is placed, not when the loop gets scheduled.
	pending int

	state      *GameState
	lastUpdate time.Time
	startedAt  time.Time
	migrated   bool
}

func newSession(id string, reg *Registry) *session {
	return &session{
		id:       id,
		registry: reg,
		cfg:      reg.cfg,
		inbox:    make(chan any, 256),
	}
}

// offer queues a command without ever blocking the caller. Input dropped
// against a full inbox is recovered by later ticks; joins are retried by the
// registry.
func (s *session) offer(cmd any) bool {
	select {
	case s.inbox <- cmd:
		return true
	default:
		return false
	}
}

func (s *session) hasIdentity(playerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, slot := range s.slots {
		if slot.playerID == playerID {
			return true
		}
	}
	return false
}

func (s *session) connectedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, slot := range s.slots {
		if slot.connected && !slot.removed {
			count++
		}
	}
	return count
}

// reserve marks one queued join. Paired with the release the loop performs
// when it seats the join.
func (s *session) reserve() {
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()
}

func (s *session) release() {
	s.mu.Lock()
	if s.pending > 0 {
		s.pending--
	}
	s.mu.Unlock()
}

// occupancy is how many seats the registry should consider taken: connected
// slots plus joins still waiting in the inbox.
func (s *session) occupancy() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.pending
	for _, slot := range s.slots {
		if slot.connected && !slot.removed {
			count++
		}
	}
	return count
}

// run is the session's scheduler loop: it serializes connection events with
// a fixed-rate tick until the session prunes itself.
func (s *session) run() {
	defer func() {
		if r := recover(); r != nil {
			logf(s.cfg, "GAMES: Session %s crashed: %v", s.id, r)
			s.registry.remove(s.id)
		}
	}()

	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.tickRate))
	defer ticker.Stop()

	for {
		select {
		case cmd := <-s.inbox:
			s.handle(cmd)
		case now := <-ticker.C:
			if s.tick(now) {
				s.drainInbox()
				return
			}
		}
	}
}

// drainInbox reroutes joins that raced into a session between its removal
// from the registry and its loop exiting. Everything else in flight is stale.
func (s *session) drainInbox() {
	for {
		select {
		case cmd := <-s.inbox:
			if join, ok := cmd.(joinCmd); ok {
				s.registry.place(join.client, join.name)
			}
		default:
			return
		}
	}
}

func (s *session) handle(cmd any) {
	switch c := cmd.(type) {
	case joinCmd:
		s.release()
		if slot := s.slotByID(c.client.playerID); slot != nil {
			s.reconnectPlayer(slot, c.client, c.name)
		} else {
			s.addNewPlayer(c.client, c.name)
		}
	case closedCmd:
		s.handleClosed(c.client)
	case keyCmd:
		s.handleKey(c)
	case startCmd:
		if s.state != nil && s.state.gen == c.gen {
			startGame(s.cfg, s.state)
			now := time.Now()
			s.lastUpdate = now
			// The match clock runs from the first serve, not from the
			// warm-up countdown.
			s.startedAt = now
			s.broadcastState()
		}
	case serveCmd:
		if s.state != nil && s.state.gen == c.gen {
			serveBall(s.cfg, s.state, c.dir)
		}
	}
}

// addNewPlayer seats a new identity: the first player waits, the second
// completes the pairing and arms the warm-up countdown.
func (s *session) addNewPlayer(c *Client, name string) {
	s.compactSlots()

	if len(s.slots) >= 2 {
		s.rejectFull(c)
		return
	}

	number := 1
	for _, slot := range s.slots {
		if slot.playerNumber == 1 {
			number = 2
		}
	}

	if name == "" {
		name = "Player " + strconv.Itoa(number)
	}

	slot := &playerSlot{
		playerID:     c.playerID,
		displayName:  name,
		client:       c,
		playerNumber: number,
		connected:    true,
	}

	s.mu.Lock()
	s.slots = append(s.slots, slot)
	s.mu.Unlock()

	logf(s.cfg, "GAMES: Player %q joined session %s as player %d", slot.displayName, s.id, number)

	s.sendTo(slot, configMessage(s.cfg))

	if len(s.slots) == 1 {
		s.sendTo(slot, WaitingMessage{
			Type:      "waiting",
			Message:   "Waiting for an opponent to join.",
			Players:   1,
			PlayerID:  slot.playerID,
			SessionID: s.id,
		})
		return
	}

	for _, seat := range s.slots {
		other := s.otherSlot(seat)
		s.sendTo(seat, ReadyMessage{
			Type:      "ready",
			Message:   "Opponent found. Get ready!",
			Players:   2,
			PlayerID:  seat.playerID,
			SessionID: s.id,
			You:       seat.displayName,
			Opponent:  other.displayName,
		})
	}

	now := time.Now()
	s.state = newGameState(s.cfg)
	s.migrated = false
	s.lastUpdate = now
	s.startedAt = now
	for _, seat := range s.slots {
		s.state.players[seat.playerNumber].Direction = seat.direction()
	}

	s.broadcastState()

	gen := s.state.gen
	time.AfterFunc(s.cfg.warmupDelay, func() {
		s.offer(startCmd{gen: gen})
	})
}

// reconnectPlayer rebinds a seat to a fresh connection, restoring the
// original playerNumber.
func (s *session) reconnectPlayer(slot *playerSlot, c *Client, name string) {
	old := slot.client

	s.mu.Lock()
	slot.client = c
	slot.connected = true
	slot.removed = false
	slot.lastDisconnectAt = time.Time{}
	slot.waitNotified = false
	slot.upHeld = false
	slot.downHeld = false
	if name != "" {
		slot.displayName = name
	}
	s.mu.Unlock()

	if old != nil && old != c {
		old.shutdown()
	}
	if s.state != nil {
		s.state.players[slot.playerNumber].Direction = 0
	}

	logf(s.cfg, "GAMES: Player %q reconnected to session %s", slot.displayName, s.id)

	s.sendTo(slot, configMessage(s.cfg))

	other := s.otherSlot(slot)
	if other == nil || !other.connected || other.removed || s.state == nil {
		s.sendTo(slot, WaitingMessage{
			Type:      "waiting",
			Message:   "Waiting for your opponent.",
			Players:   s.seatCount(),
			PlayerID:  slot.playerID,
			SessionID: s.id,
		})
		return
	}

	snapshot := snapshotState(s.state)
	for _, seat := range []*playerSlot{slot, other} {
		s.sendTo(seat, ReconnectedMessage{
			Type:      "reconnected",
			Message:   slot.displayName + " reconnected.",
			Players:   s.seatCount(),
			PlayerID:  seat.playerID,
			SessionID: s.id,
			You:       seat.displayName,
			Opponent:  s.otherSlot(seat).displayName,
			State:     snapshot,
		})
	}
}

// rejectFull turns away a third identity: explicit error, then close.
func (s *session) rejectFull(c *Client) {
	logf(s.cfg, "GAMES: Rejected extra player %q from full session %s", c.playerID, s.id)
	c.trySend(ErrorMessage{
		Type:    "error",
		Message: "This session already has two players.",
	})
	c.shutdown()
}

func (s *session) handleClosed(c *Client) {
	slot := s.slotByClient(c)
	if slot == nil || !slot.connected {
		return
	}

	s.mu.Lock()
	slot.connected = false
	slot.lastDisconnectAt = time.Now()
	slot.upHeld = false
	slot.downHeld = false
	s.mu.Unlock()

	if s.state != nil {
		s.state.players[slot.playerNumber].Direction = 0
	}

	logf(s.cfg, "GAMES: Player %q disconnected from session %s", slot.displayName, s.id)
}

func (s *session) handleKey(cmd keyCmd) {
	slot := s.slotByClient(cmd.client)
	if slot == nil {
		return
	}

	switch cmd.key {
	case "ArrowUp":
		slot.upHeld = cmd.down
	case "ArrowDown":
		slot.downHeld = cmd.down
	default:
		return
	}

	if s.state != nil {
		s.state.players[slot.playerNumber].Direction = slot.direction()
	}
}

// tick runs the per-session scheduler steps in order. It returns true once
// the session has pruned itself from the registry.
func (s *session) tick(now time.Time) bool {
	s.markTimeouts(now)

	if s.allRemoved() {
		s.registry.remove(s.id)
		logf(s.cfg, "GAMES: Pruned session %s", s.id)
		return true
	}

	s.notifyWaiting()

	if s.state == nil {
		return false
	}

	if s.anyDisconnected() {
		pauseGame(s.state)
		s.broadcastState()
		return false
	}

	if s.state.phase == phasePaused {
		// Everyone is back; restart the clock so the simulation does not
		// leap over the paused interval.
		resumeGame(s.state)
		s.lastUpdate = now
		s.broadcastState()
		return false
	}

	elapsed := now.Sub(s.lastUpdate).Seconds()
	s.lastUpdate = now

	outcome := updateGame(s.cfg, s.state, elapsed)

	s.broadcastState()

	if outcome.ServeDir != 0 {
		gen, dir := s.state.gen, outcome.ServeDir
		time.AfterFunc(s.cfg.serveDelay, func() {
			s.offer(serveCmd{gen: gen, dir: dir})
		})
	}

	if outcome.Ended {
		s.finishGame()
	}

	return false
}

// markTimeouts retires seats whose grace period ran out. Losing a seat under
// a live game forfeits it to the remaining player.
func (s *session) markTimeouts(now time.Time) {
	for _, slot := range s.slots {
		if slot.connected || slot.removed {
			continue
		}
		if now.Sub(slot.lastDisconnectAt) < s.cfg.gracePeriod {
			continue
		}

		s.mu.Lock()
		slot.removed = true
		s.mu.Unlock()

		logf(s.cfg, "GAMES: Player %q timed out of session %s", slot.displayName, s.id)

		other := s.otherSlot(slot)
		if s.state != nil && !s.state.ended() &&
			other != nil && other.connected && !other.removed {
			endGame(s.state, other.playerNumber)
			s.broadcastState()
			s.finishGame()
		}
	}
}

func (s *session) notifyWaiting() {
	for _, slot := range s.slots {
		if slot.connected || slot.removed || slot.waitNotified {
			continue
		}
		other := s.otherSlot(slot)
		if other == nil || !other.connected || other.removed {
			continue
		}

		slot.waitNotified = true
		s.sendTo(other, WaitForRecMessage{
			Type:    "waitForRec",
			Message: slot.displayName + " disconnected. Waiting for them to reconnect.",
		})
	}
}

// finishGame runs the end-of-game consequences exactly once per end event:
// result reporting and migration into a new session. The new session starts
// from a fresh GameState, so there is nothing to reset in place.
func (s *session) finishGame() {
	if s.migrated {
		return
	}
	s.migrated = true

	s.reportResult()
	s.migrate()
}

// migrate carries every still-connected seat into a brand-new session so a
// rematch starts without a fresh network handshake, then retires this one.
func (s *session) migrate() {
	var movers []*playerSlot
	for _, slot := range s.slots {
		if slot.connected && !slot.removed {
			movers = append(movers, slot)
		}
	}

	if len(movers) > 0 {
		next := s.registry.create()
		for _, slot := range movers {
			c := slot.client
			c.session.Store(next)
			next.reserve()
			next.offer(joinCmd{client: c, name: slot.displayName})
		}
		logf(s.cfg, "GAMES: Moved %d player(s) from session %s to %s", len(movers), s.id, next.id)
	}

	s.mu.Lock()
	for _, slot := range s.slots {
		slot.connected = false
		slot.removed = true
	}
	s.mu.Unlock()
}

func (s *session) reportResult() {
	result := MatchResult{
		SessionID: s.id,
		Winner:    s.state.winner,
		Duration:  time.Since(s.startedAt).Seconds(),
		EndedAt:   time.Now(),
	}
	for _, slot := range s.slots {
		score := 0
		if p, ok := s.state.players[slot.playerNumber]; ok {
			score = p.Score
		}
		result.Players = append(result.Players, MatchPlayer{
			PlayerID:    slot.playerID,
			DisplayName: slot.displayName,
			Number:      slot.playerNumber,
			Score:       score,
		})
	}

	s.registry.reporter.report(result)
}

// broadcastState fans the current snapshot out to every reachable seat.
func (s *session) broadcastState() {
	if s.state == nil {
		return
	}

	msg := StateMessage{Type: "state", State: snapshotState(s.state)}
	for _, slot := range s.slots {
		if slot.connected && !slot.removed {
			s.sendTo(slot, msg)
		}
	}
}

// sendTo queues a message for one seat. A send that cannot be queued demotes
// the seat to disconnected; the timeout check acts on it on a later tick.
func (s *session) sendTo(slot *playerSlot, msg any) {
	if slot.client == nil || !slot.connected {
		return
	}
	if !slot.client.trySend(msg) {
		s.mu.Lock()
		slot.connected = false
		slot.lastDisconnectAt = time.Now()
		s.mu.Unlock()
	}
}

func (s *session) slotByID(playerID string) *playerSlot {
	for _, slot := range s.slots {
		if slot.playerID == playerID {
			return slot
		}
	}
	return nil
}

func (s *session) slotByClient(c *Client) *playerSlot {
	for _, slot := range s.slots {
		if slot.client == c {
			return slot
		}
	}
	return nil
}

func (s *session) otherSlot(slot *playerSlot) *playerSlot {
	for _, other := range s.slots {
		if other != slot {
			return other
		}
	}
	return nil
}

func (s *session) seatCount() int {
	count := 0
	for _, slot := range s.slots {
		if !slot.removed {
			count++
		}
	}
	return count
}

func (s *session) anyDisconnected() bool {
	for _, slot := range s.slots {
		if !slot.removed && !slot.connected {
			return true
		}
	}
	return false
}

func (s *session) allRemoved() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.slots) == 0 {
		return false
	}
	for _, slot := range s.slots {
		if !slot.removed {
			return false
		}
	}
	return true
}

// compactSlots drops retired seats so a fresh identity can take the seat
// without the session ever holding more than two.
func (s *session) compactSlots() {
	s.mu.Lock()
	defer s.mu.Unlock()

	dst := s.slots[:0]
	for _, slot := range s.slots {
		if !slot.removed {
			dst = append(dst, slot)
		}
	}
	s.slots = dst
}
