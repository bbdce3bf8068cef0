package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind    string
	natsURL string
	port    int
	prefix  string
	profile bool
	tlsCert string
	tlsKey  string
	verbose bool
	version bool

	// Gameplay tunables. These define the observable feel of the game and
	// are exposed as flags rather than baked into the engine.
	fieldWidth   float64
	fieldHeight  float64
	paddleWidth  float64
	paddleHeight float64
	ballRadius   float64
	paddleSpeed  float64
	ballSpeed    float64
	winningScore int
	warmupDelay  time.Duration
	serveDelay   time.Duration
	gracePeriod  time.Duration
	tickRate     int
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.tickRate < 1 || c.tickRate > 1000 {
		return fmt.Errorf("invalid tick rate (must be between 1-1000 inclusive): %d", c.tickRate)
	}
	if c.winningScore < 1 {
		return fmt.Errorf("invalid winning score (must be at least 1): %d", c.winningScore)
	}
	if c.fieldWidth <= 2*c.paddleWidth+2*c.ballRadius {
		return fmt.Errorf("field width %.1f too small for paddles and ball", c.fieldWidth)
	}
	if c.fieldHeight <= c.paddleHeight || c.fieldHeight <= 2*c.ballRadius {
		return fmt.Errorf("field height %.1f too small for paddles and ball", c.fieldHeight)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("PONGBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "pongbox",
		Short:         "An authoritative real-time two-player Pong server, playable in the browser.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: PONGBOX_BIND)")
	fs.StringVar(&cfg.natsURL, "nats-url", "", "NATS server to publish match results to, empty to disable (env: PONGBOX_NATS_URL)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: PONGBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: PONGBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: PONGBOX_PROFILE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: PONGBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: PONGBOX_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: PONGBOX_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: PONGBOX_VERSION)")

	fs.Float64Var(&cfg.fieldWidth, "field-width", 150, "playing field width, in world units (env: PONGBOX_FIELD_WIDTH)")
	fs.Float64Var(&cfg.fieldHeight, "field-height", 70, "playing field height, in world units (env: PONGBOX_FIELD_HEIGHT)")
	fs.Float64Var(&cfg.paddleWidth, "paddle-width", 2, "paddle width (env: PONGBOX_PADDLE_WIDTH)")
	fs.Float64Var(&cfg.paddleHeight, "paddle-height", 14, "paddle height (env: PONGBOX_PADDLE_HEIGHT)")
	fs.Float64Var(&cfg.ballRadius, "ball-radius", 2, "ball radius (env: PONGBOX_BALL_RADIUS)")
	fs.Float64Var(&cfg.paddleSpeed, "paddle-speed", 60, "paddle speed, in units per second (env: PONGBOX_PADDLE_SPEED)")
	fs.Float64Var(&cfg.ballSpeed, "ball-speed", 75, "nominal ball speed, in units per second (env: PONGBOX_BALL_SPEED)")
	fs.IntVar(&cfg.winningScore, "winning-score", 11, "score at which a game ends (env: PONGBOX_WINNING_SCORE)")
	fs.DurationVar(&cfg.warmupDelay, "warmup-delay", 3*time.Second, "countdown between both players joining and the first serve (env: PONGBOX_WARMUP_DELAY)")
	fs.DurationVar(&cfg.serveDelay, "serve-delay", time.Second, "pause between a point being scored and the next serve (env: PONGBOX_SERVE_DELAY)")
	fs.DurationVar(&cfg.gracePeriod, "grace-period", 5*time.Second, "time a disconnected player's seat is held open for reconnection (env: PONGBOX_GRACE_PERIOD)")
	fs.IntVar(&cfg.tickRate, "tick-rate", 144, "simulation ticks per second (env: PONGBOX_TICK_RATE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("pongbox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
