package main

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		fieldWidth:   150,
		fieldHeight:  70,
		paddleWidth:  2,
		paddleHeight: 14,
		ballRadius:   2,
		paddleSpeed:  60,
		ballSpeed:    75,
		winningScore: 11,
		warmupDelay:  3 * time.Second,
		serveDelay:   time.Second,
		gracePeriod:  5 * time.Second,
		tickRate:     144,
	}
}

func speed(b Ball) float64 {
	return math.Hypot(b.Dx, b.Dy)
}

func TestNewGameState(t *testing.T) {
	cfg := testConfig()
	st := newGameState(cfg)

	assert.Equal(t, phaseNew, st.phase)
	assert.False(t, st.initialized())
	assert.False(t, st.started())
	assert.Equal(t, cfg.fieldWidth/2, st.ball.X)
	assert.Equal(t, cfg.fieldHeight/2, st.ball.Y)
	assert.Zero(t, st.ball.Dx)
	assert.Zero(t, st.ball.Dy)
	require.Len(t, st.players, 2)
	for _, p := range st.players {
		assert.Equal(t, cfg.fieldHeight/2, p.Position)
		assert.Zero(t, p.Score)
	}
}

func TestStartGameServesWithinAngleLimit(t *testing.T) {
	cfg := testConfig()

	for i := 0; i < 50; i++ {
		st := newGameState(cfg)
		startGame(cfg, st)

		require.Equal(t, phaseRunning, st.phase)
		assert.InDelta(t, cfg.ballSpeed, speed(st.ball), 1e-9)
		assert.NotZero(t, st.ball.Dx)
		assert.LessOrEqual(t, math.Abs(st.ball.Dy), cfg.ballSpeed*math.Sin(maxServeAngle)+1e-9)
	}
}

func TestStartGameIsNoOpUnlessNew(t *testing.T) {
	cfg := testConfig()
	st := newGameState(cfg)

	startGame(cfg, st)
	gen := st.gen
	ball := st.ball

	startGame(cfg, st)
	assert.Equal(t, gen, st.gen)
	assert.Equal(t, ball, st.ball)

	endGame(st, 1)
	startGame(cfg, st)
	assert.True(t, st.ended())
}

func TestServeBallIgnoresEndedGame(t *testing.T) {
	cfg := testConfig()
	st := newGameState(cfg)
	endGame(st, 2)

	serveBall(cfg, st, 1)
	assert.Zero(t, st.ball.Dx)
	assert.Zero(t, st.ball.Dy)
}

func TestPaddlesClampToField(t *testing.T) {
	cfg := testConfig()
	st := newGameState(cfg)
	half := cfg.paddleHeight / 2

	st.players[1].Direction = -1
	st.players[2].Direction = 1
	updateGame(cfg, st, 10)

	assert.Equal(t, half, st.players[1].Position)
	assert.Equal(t, cfg.fieldHeight-half, st.players[2].Position)
}

func TestPaddlesMoveBeforeFirstServe(t *testing.T) {
	cfg := testConfig()
	st := newGameState(cfg)

	st.players[1].Direction = 1
	updateGame(cfg, st, 0.1)

	assert.Equal(t, cfg.fieldHeight/2+cfg.paddleSpeed*0.1, st.players[1].Position)
	// The ball must not move until the first serve.
	assert.Equal(t, cfg.fieldWidth/2, st.ball.X)
}

func TestWallBounceClampsPosition(t *testing.T) {
	cfg := testConfig()
	st := newGameState(cfg)
	st.phase = phaseRunning

	st.ball = Ball{X: 75, Y: 3, Dx: 0, Dy: -100, Radius: cfg.ballRadius}
	updateGame(cfg, st, 0.1)

	assert.Equal(t, cfg.ballRadius, st.ball.Y)
	assert.Greater(t, st.ball.Dy, 0.0)

	st.ball = Ball{X: 75, Y: cfg.fieldHeight - 3, Dx: 0, Dy: 100, Radius: cfg.ballRadius}
	updateGame(cfg, st, 0.1)

	assert.Equal(t, cfg.fieldHeight-cfg.ballRadius, st.ball.Y)
	assert.Less(t, st.ball.Dy, 0.0)
}

func TestPaddleBounceAngleFromOffset(t *testing.T) {
	cfg := testConfig()

	testCases := []struct {
		name      string
		ballY     float64
		paddleY   float64
		direction int
		wantDy    func(dy float64) bool
	}{
		{
			name:    "center hit goes straight back",
			ballY:   35,
			paddleY: 35,
			wantDy:  func(dy float64) bool { return math.Abs(dy) < 1e-9 },
		},
		{
			name:    "hit below center deflects downward",
			ballY:   40,
			paddleY: 35,
			wantDy:  func(dy float64) bool { return dy > 0 },
		},
		{
			name:    "hit above center deflects upward",
			ballY:   30,
			paddleY: 35,
			wantDy:  func(dy float64) bool { return dy < 0 },
		},
		{
			name:      "moving paddle adds spin",
			ballY:     35,
			paddleY:   35,
			direction: 1,
			wantDy:    func(dy float64) bool { return dy > 0 },
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			st := newGameState(cfg)
			st.phase = phaseRunning
			st.players[1].Position = tc.paddleY
			st.players[1].Direction = 0
			st.ball = Ball{X: cfg.paddleWidth + cfg.ballRadius + 0.5, Y: tc.ballY, Dx: -cfg.ballSpeed, Dy: 0, Radius: cfg.ballRadius}

			b := &st.ball
			p := st.players[1]
			p.Direction = tc.direction
			bounceOffPaddle(cfg, b, p, 1)

			assert.Greater(t, b.Dx, 0.0)
			assert.True(t, tc.wantDy(b.Dy), "unexpected Dy %f", b.Dy)
		})
	}
}

func TestBounceVerticalSpeedIsCapped(t *testing.T) {
	cfg := testConfig()
	st := newGameState(cfg)
	p := st.players[1]
	p.Position = 35
	p.Direction = 1

	// Edge hit plus maximum spin must still respect the vertical cap.
	b := &Ball{X: 4, Y: p.Position + cfg.paddleHeight, Radius: cfg.ballRadius}
	bounceOffPaddle(cfg, b, p, 1)

	assert.LessOrEqual(t, math.Abs(b.Dy), maxVerticalRatio*cfg.ballSpeed+1e-9)
}

func TestCollisionOnlyWhileApproaching(t *testing.T) {
	cfg := testConfig()
	st := newGameState(cfg)
	st.phase = phaseRunning

	// Ball overlapping the left paddle but already moving away must not
	// bounce a second time.
	st.players[1].Position = 35
	st.ball = Ball{X: cfg.paddleWidth + cfg.ballRadius, Y: 35, Dx: 50, Dy: 0, Radius: cfg.ballRadius}
	collidePaddles(cfg, st)

	assert.Greater(t, st.ball.Dx, 0.0)
	assert.InDelta(t, 50, st.ball.Dx, 1e-9)
}

func TestScoreOnLeftExit(t *testing.T) {
	cfg := testConfig()
	st := newGameState(cfg)
	st.phase = phaseRunning

	// Ball fully past the left edge: player 2 scores and the next serve
	// heads right.
	st.ball = Ball{X: -4, Y: 35, Dx: -50, Dy: 0, Radius: cfg.ballRadius}
	outcome := updateGame(cfg, st, 0.001)

	assert.Equal(t, 2, outcome.ScoredBy)
	assert.Equal(t, 1, outcome.ServeDir)
	assert.False(t, outcome.Ended)
	assert.Equal(t, 1, st.players[2].Score)
	assert.Equal(t, 0, st.players[1].Score)

	// Ball parks at center, stationary, until the delayed re-serve.
	assert.Equal(t, cfg.fieldWidth/2, st.ball.X)
	assert.Equal(t, cfg.fieldHeight/2, st.ball.Y)
	assert.Zero(t, st.ball.Dx)
	assert.Zero(t, st.ball.Dy)
}

func TestScoreOnRightExit(t *testing.T) {
	cfg := testConfig()
	st := newGameState(cfg)
	st.phase = phaseRunning

	st.ball = Ball{X: cfg.fieldWidth + 4, Y: 35, Dx: 50, Dy: 0, Radius: cfg.ballRadius}
	outcome := updateGame(cfg, st, 0.001)

	assert.Equal(t, 1, outcome.ScoredBy)
	assert.Equal(t, -1, outcome.ServeDir)
	assert.Equal(t, 1, st.players[1].Score)
}

func TestNoScoreWhilePartiallyOut(t *testing.T) {
	cfg := testConfig()
	st := newGameState(cfg)
	st.phase = phaseRunning

	// Center past the edge but still overlapping the field: play on.
	st.ball = Ball{X: -1, Y: 35, Dx: -50, Dy: 0, Radius: cfg.ballRadius}
	outcome := checkScore(cfg, st)

	assert.Zero(t, outcome.ScoredBy)
	assert.Zero(t, st.players[2].Score)
}

func TestGameEndsAtWinningScore(t *testing.T) {
	cfg := testConfig()
	st := newGameState(cfg)
	st.phase = phaseRunning
	st.players[1].Score = cfg.winningScore - 1

	st.ball = Ball{X: cfg.fieldWidth + 4, Y: 35, Dx: 50, Dy: 0, Radius: cfg.ballRadius}
	outcome := updateGame(cfg, st, 0.001)

	assert.Equal(t, 1, outcome.ScoredBy)
	assert.True(t, outcome.Ended)
	assert.Zero(t, outcome.ServeDir)
	assert.True(t, st.ended())
	assert.Equal(t, 1, st.winner)
	assert.Zero(t, st.ball.Dx)
	assert.Zero(t, st.ball.Dy)

	// Further updates leave a finished game untouched.
	before := st.ball
	st.players[1].Direction = 1
	updateGame(cfg, st, 1)
	assert.Equal(t, before, st.ball)
}

func TestPauseAndResume(t *testing.T) {
	cfg := testConfig()
	st := newGameState(cfg)

	// Pausing only applies to a running game.
	pauseGame(st)
	assert.Equal(t, phaseNew, st.phase)

	startGame(cfg, st)
	pauseGame(st)
	assert.Equal(t, phasePaused, st.phase)
	assert.True(t, st.started())

	// A paused game still accepts paddle movement but freezes the ball.
	ball := st.ball
	st.players[1].Direction = 1
	updateGame(cfg, st, 0.1)
	assert.Equal(t, ball, st.ball)
	assert.Greater(t, st.players[1].Position, cfg.fieldHeight/2)

	resumeGame(st)
	assert.Equal(t, phaseRunning, st.phase)
}

func TestSnapshotDerivesLifecycleFlags(t *testing.T) {
	cfg := testConfig()
	st := newGameState(cfg)

	snap := snapshotState(st)
	assert.False(t, snap.GameInitialized)
	assert.False(t, snap.GameStarted)
	assert.False(t, snap.GameEnded)
	assert.False(t, snap.Paused)

	startGame(cfg, st)
	snap = snapshotState(st)
	assert.True(t, snap.GameInitialized)
	assert.True(t, snap.GameStarted)
	assert.False(t, snap.Paused)

	pauseGame(st)
	snap = snapshotState(st)
	assert.True(t, snap.GameStarted)
	assert.True(t, snap.Paused)

	endGame(st, 2)
	snap = snapshotState(st)
	assert.True(t, snap.GameEnded)
	assert.False(t, snap.GameStarted)
	assert.Equal(t, 2, snap.Winner)
}
