package main

import (
	"math"
	"math/rand"
)

// gamePhase is the explicit lifecycle of one game. Valid transitions:
// new → running (first serve), running ↔ paused (connectivity), running or
// paused → ended (win or forfeit). A GameState is never reused after ending;
// migration replaces it with a fresh one in a new session.
type gamePhase int

const (
	phaseNew gamePhase = iota
	phaseRunning
	phasePaused
	phaseEnded
)

const (
	// These constants define the observable gameplay feel and are part of
	// the behavior contract; tune speeds and dimensions via flags instead.
	maxServeAngle    = math.Pi / 3 // serve departs within ±60° of horizontal
	maxBounceAngle   = math.Pi / 4 // paddle bounce within ±45° of horizontal
	spinInfluence    = 0.1         // fraction of paddle velocity imparted on bounce
	maxVerticalRatio = 0.8         // vertical speed cap, as a fraction of ball speed
)

// PaddleState is one player's paddle: vertical center position, current
// movement input, and score.
type PaddleState struct {
	Position  float64 `json:"position"`
	Direction int     `json:"direction"`
	Score     int     `json:"score"`
}

type Ball struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Dx     float64 `json:"dx"`
	Dy     float64 `json:"dy"`
	Radius float64 `json:"radius"`
}

// GameState is the authoritative simulation snapshot for one game. Player 1
// defends the left goal, player 2 the right. It is only ever mutated on the
// owning session's goroutine, so it carries no lock.
type GameState struct {
	phase   gamePhase
	players map[int]*PaddleState
	ball    Ball
	winner  int

	// gen increments on every lifecycle transition. Delayed actions capture
	// it when scheduled and are discarded at fire time if it has moved on.
	gen uint64
}

func newGameState(cfg *Config) *GameState {
	centerY := cfg.fieldHeight / 2

	return &GameState{
		players: map[int]*PaddleState{
			1: {Position: centerY},
			2: {Position: centerY},
		},
		ball: Ball{
			X:      cfg.fieldWidth / 2,
			Y:      centerY,
			Radius: cfg.ballRadius,
		},
	}
}

func (st *GameState) started() bool {
	return st.phase == phaseRunning || st.phase == phasePaused
}

func (st *GameState) initialized() bool {
	return st.phase != phaseNew
}

func (st *GameState) ended() bool {
	return st.phase == phaseEnded
}

// Outcome reports what a single update produced, so the caller can schedule
// the follow-up behavior (re-serve, end-of-game handling) that the engine
// itself never does.
type Outcome struct {
	ScoredBy int // player that scored this update, 0 if none
	ServeDir int // horizontal sign of the pending re-serve, 0 if none
	Ended    bool
}

// startGame launches the first serve toward a uniformly random side. Calling
// it on an ended or already-running game is a no-op.
func startGame(cfg *Config, st *GameState) {
	if st.phase != phaseNew {
		return
	}

	st.phase = phaseRunning
	st.gen++

	dir := 1
	if rand.Intn(2) == 0 {
		dir = -1
	}
	launchBall(cfg, st, dir)
}

// serveBall re-launches the ball from center after a point. The session loop
// validates the generation token before calling this.
func serveBall(cfg *Config, st *GameState, dir int) {
	if st.phase == phaseEnded {
		return
	}
	launchBall(cfg, st, dir)
}

func launchBall(cfg *Config, st *GameState, dir int) {
	angle := (rand.Float64()*2 - 1) * maxServeAngle

	st.ball.X = cfg.fieldWidth / 2
	st.ball.Y = cfg.fieldHeight / 2
	st.ball.Dx = float64(dir) * cfg.ballSpeed * math.Cos(angle)
	st.ball.Dy = cfg.ballSpeed * math.Sin(angle)
}

func pauseGame(st *GameState) {
	if st.phase == phaseRunning {
		st.phase = phasePaused
	}
}

func resumeGame(st *GameState) {
	if st.phase == phasePaused {
		st.phase = phaseRunning
	}
}

// updateGame advances the simulation by elapsed seconds. An ended game is
// left untouched; the caller still broadcasts the final state.
func updateGame(cfg *Config, st *GameState, elapsed float64) Outcome {
	if st.phase == phaseEnded {
		return Outcome{}
	}

	// Paddles respond to input even before the first serve.
	half := cfg.paddleHeight / 2
	for _, p := range st.players {
		p.Position += cfg.paddleSpeed * float64(p.Direction) * elapsed
		if p.Position < half {
			p.Position = half
		}
		if p.Position > cfg.fieldHeight-half {
			p.Position = cfg.fieldHeight - half
		}
	}

	if st.phase != phaseRunning {
		return Outcome{}
	}

	st.ball.X += st.ball.Dx * elapsed
	st.ball.Y += st.ball.Dy * elapsed

	// Reflect off the top and bottom walls, clamping position so the ball
	// can never escape vertically.
	if st.ball.Y-st.ball.Radius < 0 {
		st.ball.Y = st.ball.Radius
		st.ball.Dy = math.Abs(st.ball.Dy)
	}
	if st.ball.Y+st.ball.Radius > cfg.fieldHeight {
		st.ball.Y = cfg.fieldHeight - st.ball.Radius
		st.ball.Dy = -math.Abs(st.ball.Dy)
	}

	collidePaddles(cfg, st)

	return checkScore(cfg, st)
}

// collidePaddles tests the ball against each paddle's front edge, but only
// while the ball is moving toward that paddle, so a bounce is never applied
// twice.
func collidePaddles(cfg *Config, st *GameState) {
	b := &st.ball
	half := cfg.paddleHeight / 2

	p1 := st.players[1]
	front := cfg.paddleWidth
	if b.Dx < 0 && b.X-b.Radius <= front && b.X+b.Radius >= 0 &&
		b.Y+b.Radius >= p1.Position-half && b.Y-b.Radius <= p1.Position+half {
		bounceOffPaddle(cfg, b, p1, 1)
		b.X = front + b.Radius
	}

	p2 := st.players[2]
	front = cfg.fieldWidth - cfg.paddleWidth
	if b.Dx > 0 && b.X+b.Radius >= front && b.X-b.Radius <= cfg.fieldWidth &&
		b.Y+b.Radius >= p2.Position-half && b.Y-b.Radius <= p2.Position+half {
		bounceOffPaddle(cfg, b, p2, -1)
		b.X = front - b.Radius
	}
}

// bounceOffPaddle reflects the ball horizontally and recomputes its vertical
// velocity from the impact offset, plus a spin contribution from the paddle's
// own movement.
func bounceOffPaddle(cfg *Config, b *Ball, p *PaddleState, dir int) {
	offset := (b.Y - p.Position) / (cfg.paddleHeight / 2)
	if offset > 1 {
		offset = 1
	}
	if offset < -1 {
		offset = -1
	}

	angle := offset * maxBounceAngle
	dy := cfg.ballSpeed*math.Sin(angle) + spinInfluence*float64(p.Direction)*cfg.paddleSpeed

	limit := maxVerticalRatio * cfg.ballSpeed
	if dy > limit {
		dy = limit
	}
	if dy < -limit {
		dy = -limit
	}

	b.Dx = float64(dir) * cfg.ballSpeed * math.Cos(angle)
	b.Dy = dy
}

// checkScore awards a point once the ball has fully left the field. The ball
// is parked at center with zero velocity until the delayed re-serve, unless
// the point ended the game.
func checkScore(cfg *Config, st *GameState) Outcome {
	b := &st.ball

	var scorer, serveDir int
	switch {
	case b.X+b.Radius < 0:
		scorer, serveDir = 2, 1
	case b.X-b.Radius > cfg.fieldWidth:
		scorer, serveDir = 1, -1
	default:
		return Outcome{}
	}

	st.players[scorer].Score++

	if checkGameEnd(cfg, st) {
		return Outcome{ScoredBy: scorer, Ended: true}
	}

	b.X = cfg.fieldWidth / 2
	b.Y = cfg.fieldHeight / 2
	b.Dx = 0
	b.Dy = 0

	return Outcome{ScoredBy: scorer, ServeDir: serveDir}
}

func checkGameEnd(cfg *Config, st *GameState) bool {
	for n, p := range st.players {
		if p.Score >= cfg.winningScore {
			endGame(st, n)
			return true
		}
	}
	return false
}

// endGame finishes the game immediately, for both regular wins and forfeits.
func endGame(st *GameState, winner int) {
	if st.phase == phaseEnded {
		return
	}

	st.phase = phaseEnded
	st.winner = winner
	st.ball.Dx = 0
	st.ball.Dy = 0
	st.gen++
}
