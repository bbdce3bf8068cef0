package main

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

const resultsSubject = "pongbox.results"

// MatchResult is the record handed to the external match-results store when
// a game finishes, whether by reaching the winning score or by forfeit.
type MatchResult struct {
	SessionID string        `json:"sessionId"`
	Winner    int           `json:"winner"`
	Players   []MatchPlayer `json:"players"`
	Duration  float64       `json:"durationSeconds"`
	EndedAt   time.Time     `json:"endedAt"`
}

type MatchPlayer struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Number      int    `json:"number"`
	Score       int    `json:"score"`
}

type resultReporter interface {
	report(result MatchResult)
	shutdown()
}

// logReporter is the stand-in when no NATS server is configured.
type logReporter struct {
	cfg *Config
}

func (l *logReporter) report(result MatchResult) {
	logf(l.cfg, "RESULTS: Session %s won by player %d", result.SessionID, result.Winner)
}

func (l *logReporter) shutdown() {}

// natsReporter publishes finished games for the match-results store to
// consume. Publishing is fire-and-forget; a results outage never affects
// running games.
type natsReporter struct {
	cfg *Config
	nc  *nats.Conn
}

func newResultReporter(cfg *Config) (resultReporter, error) {
	if cfg.natsURL == "" {
		return &logReporter{cfg: cfg}, nil
	}

	nc, err := nats.Connect(cfg.natsURL,
		nats.Name("pongbox"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}

	logf(cfg, "RESULTS: Publishing match results to %s", cfg.natsURL)

	return &natsReporter{cfg: cfg, nc: nc}, nil
}

func (n *natsReporter) report(result MatchResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		logf(n.cfg, "RESULTS: Marshal failed: %v", err)
		return
	}

	if err := n.nc.Publish(resultsSubject, payload); err != nil {
		logf(n.cfg, "RESULTS: Publish failed: %v", err)
		return
	}

	logf(n.cfg, "RESULTS: Session %s won by player %d", result.SessionID, result.Winner)
}

func (n *natsReporter) shutdown() {
	_ = n.nc.Drain()
}
