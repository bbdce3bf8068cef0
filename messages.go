package main

// Messages coming from clients
type ClientMessage struct {
	Type string `json:"type"`          // "keydown", "keyup", "clientDisconnecting"
	Key  string `json:"key,omitempty"` // "ArrowUp" or "ArrowDown"
}

// ConfigMessage tells a freshly connected client the field geometry and
// gameplay constants it needs to render and predict.
type ConfigMessage struct {
	Type         string  `json:"type"` // "config"
	FieldWidth   float64 `json:"fieldWidth"`
	FieldHeight  float64 `json:"fieldHeight"`
	PaddleWidth  float64 `json:"paddleWidth"`
	PaddleHeight float64 `json:"paddleHeight"`
	BallRadius   float64 `json:"ballRadius"`
	PaddleSpeed  float64 `json:"paddleSpeed"`
	BallSpeed    float64 `json:"ballSpeed"`
	WinningScore int     `json:"winningScore"`
}

// StateSnapshot is the wire form of a GameState. The lifecycle booleans are
// derived from the internal phase enum; they never disagree with each other.
type StateSnapshot struct {
	Players         map[int]PaddleState `json:"players"`
	Ball            Ball                `json:"ball"`
	GameStarted     bool                `json:"gameStarted"`
	GameInitialized bool                `json:"gameInitialized"`
	GameEnded       bool                `json:"gameEnded"`
	Paused          bool                `json:"paused"`
	Winner          int                 `json:"winner,omitempty"`
}

type StateMessage struct {
	Type  string        `json:"type"` // "state"
	State StateSnapshot `json:"state"`
}

// WaitingMessage is sent to a lone player until an opponent arrives.
type WaitingMessage struct {
	Type      string `json:"type"` // "waiting"
	Message   string `json:"message"`
	Players   int    `json:"players"`
	PlayerID  string `json:"playerId"`
	SessionID string `json:"sessionId"`
}

// ReadyMessage is sent to both players once the session is full.
type ReadyMessage struct {
	Type      string `json:"type"` // "ready"
	Message   string `json:"message"`
	Players   int    `json:"players"`
	PlayerID  string `json:"playerId"`
	SessionID string `json:"sessionId"`
	You       string `json:"you"`      // own display name
	Opponent  string `json:"opponent"` // opponent display name
}

// ReconnectedMessage is a ReadyMessage plus the current game state, so a
// returning client can resume rendering immediately.
type ReconnectedMessage struct {
	Type      string        `json:"type"` // "reconnected"
	Message   string        `json:"message"`
	Players   int           `json:"players"`
	PlayerID  string        `json:"playerId"`
	SessionID string        `json:"sessionId"`
	You       string        `json:"you"`
	Opponent  string        `json:"opponent"`
	State     StateSnapshot `json:"state"`
}

// WaitForRecMessage tells the remaining player their opponent dropped and the
// seat is being held open.
type WaitForRecMessage struct {
	Type    string `json:"type"` // "waitForRec"
	Message string `json:"message"`
}

// ErrorMessage precedes a forced close.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

func snapshotState(st *GameState) StateSnapshot {
	players := make(map[int]PaddleState, len(st.players))
	for n, p := range st.players {
		players[n] = *p
	}

	return StateSnapshot{
		Players:         players,
		Ball:            st.ball,
		GameStarted:     st.started(),
		GameInitialized: st.initialized(),
		GameEnded:       st.ended(),
		Paused:          st.phase == phasePaused,
		Winner:          st.winner,
	}
}

func configMessage(cfg *Config) ConfigMessage {
	return ConfigMessage{
		Type:         "config",
		FieldWidth:   cfg.fieldWidth,
		FieldHeight:  cfg.fieldHeight,
		PaddleWidth:  cfg.paddleWidth,
		PaddleHeight: cfg.paddleHeight,
		BallRadius:   cfg.ballRadius,
		PaddleSpeed:  cfg.paddleSpeed,
		BallSpeed:    cfg.ballSpeed,
		WinningScore: cfg.winningScore,
	}
}
