package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"raydium-sniper-bot/internal/position"
	"raydium-sniper-bot/internal/raydium"
	"raydium-sniper-bot/internal/safety"
	"raydium-sniper-bot/internal/sniper"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Config configures the NATS publisher.
type Config struct {
	URL           string
	SubjectPrefix string
	Name          string
}

// Publisher sends bot events to NATS as JSON. Publishing is fire and
// forget: failures are logged and never block trading.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	log    logrus.FieldLogger
	now    func() time.Time
}

// Connect dials NATS with endless reconnects.
func Connect(cfg Config, log logrus.FieldLogger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "raybot"
	}
	if cfg.Name == "" {
		cfg.Name = "raydium-sniper-bot"
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(5 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("⚠️ NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("🔄 NATS reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.WithFields(logrus.Fields{
		"url":    cfg.URL,
		"prefix": cfg.SubjectPrefix,
	}).Info("✅ Connected to NATS")

	return &Publisher{nc: nc, prefix: cfg.SubjectPrefix, log: log, now: time.Now}, nil
}

// Subject returns the full subject for an event kind.
func (p *Publisher) Subject(kind string) string {
	return p.prefix + "." + kind
}

// Ready reports whether the connection is up.
func (p *Publisher) Ready() bool {
	return p.nc != nil && p.nc.Status() == nats.CONNECTED
}

// PoolMessage is published for every decoded pool.
type PoolMessage struct {
	Event      string    `json:"event"`
	Pool       string    `json:"pool"`
	BaseMint   string    `json:"base_mint"`
	QuoteMint  string    `json:"quote_mint"`
	Variant    string    `json:"variant"`
	Signature  string    `json:"signature"`
	Slot       uint64    `json:"slot"`
	SOLPair    bool      `json:"sol_pair"`
	DetectedAt time.Time `json:"detected_at"`
}

// VerdictMessage is published after every safety evaluation.
type VerdictMessage struct {
	Event     string   `json:"event"`
	Pool      string   `json:"pool"`
	Token     string   `json:"token"`
	Accepted  bool     `json:"accepted"`
	Reasons   []string `json:"reasons"`
	Warnings  []string `json:"warnings,omitempty"`
	RiskScore string   `json:"risk_score,omitempty"`
}

// TradeMessage is published for buys and sells.
type TradeMessage struct {
	Event     string `json:"event"`
	Side      string `json:"side"`
	Token     string `json:"token"`
	Pool      string `json:"pool,omitempty"`
	Signature string `json:"signature,omitempty"`
	AmountIn  uint64 `json:"amount_in"`
	AmountOut uint64 `json:"amount_out"`
	Price     string `json:"price,omitempty"`
	PnLPct    string `json:"pnl_pct,omitempty"`
	Reason    string `json:"reason,omitempty"`
	HeldFor   string `json:"held_for,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	DryRun    bool   `json:"dry_run,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PoolDetected publishes a decoded pool.
func (p *Publisher) PoolDetected(ev raydium.PoolEvent) {
	p.publish("pool", PoolMessage{
		Event:      "pool_detected",
		Pool:       ev.PoolAddress.String(),
		BaseMint:   ev.BaseMint.String(),
		QuoteMint:  ev.QuoteMint.String(),
		Variant:    ev.Variant.String(),
		Signature:  ev.Raw.Signature,
		Slot:       ev.Raw.Slot,
		SOLPair:    ev.IsSOLPair(),
		DetectedAt: p.now().UTC(),
	})
}

// Verdict publishes a safety verdict.
func (p *Publisher) Verdict(ev raydium.PoolEvent, v safety.Verdict) {
	msg := VerdictMessage{
		Event:    "verdict",
		Pool:     ev.PoolAddress.String(),
		Token:    ev.TokenMint().String(),
		Accepted: v.Accepted,
		Reasons:  v.Reasons,
		Warnings: v.Warnings,
	}
	if msg.Reasons == nil {
		msg.Reasons = []string{}
	}
	if v.RiskScore != nil {
		msg.RiskScore = v.RiskScore.String()
	}
	p.publish("verdict", msg)
}

// Trade publishes a buy outcome.
func (p *Publisher) Trade(ev sniper.TradeEvent) {
	msg := TradeMessage{
		Event:     "buy",
		Side:      "buy",
		Token:     ev.Pool.TokenMint().String(),
		Pool:      ev.Pool.PoolAddress.String(),
		Signature: ev.Fill.Signature,
		AmountIn:  ev.Fill.AmountIn,
		AmountOut: ev.Fill.AmountOut,
		Attempts:  ev.Attempts,
		DryRun:    ev.Fill.DryRun,
	}
	if ev.Err != nil {
		msg.Event = "buy_failed"
		msg.Error = ev.Err.Error()
	} else {
		msg.Price = ev.Position.EntryPrice.String()
	}
	p.publish("trade", msg)
}

// Exit publishes a confirmed sell.
func (p *Publisher) Exit(ev position.ExitEvent) {
	p.publish("trade", TradeMessage{
		Event:     "sell",
		Side:      "sell",
		Token:     ev.Position.TokenMint.String(),
		Pool:      ev.Position.PoolAddress.String(),
		Signature: ev.Fill.Signature,
		AmountIn:  ev.Fill.AmountIn,
		AmountOut: ev.Fill.AmountOut,
		Price:     ev.Price.String(),
		PnLPct:    ev.PnLPct.StringFixed(2),
		Reason:    string(ev.Reason),
		HeldFor:   ev.HeldFor.Truncate(time.Second).String(),
		DryRun:    ev.Fill.DryRun,
	})
}

// SellFailure publishes a sell that did not confirm.
func (p *Publisher) SellFailure(f position.SellFailure) {
	event := "sell_failed"
	if f.Stuck {
		event = "position_stuck"
	}
	msg := TradeMessage{
		Event:    event,
		Side:     "sell",
		Token:    f.Position.TokenMint.String(),
		Pool:     f.Position.PoolAddress.String(),
		Reason:   string(f.Reason),
		Attempts: f.Attempts,
	}
	if f.Err != nil {
		msg.Error = f.Err.Error()
	}
	p.publish("alert", msg)
}

func (p *Publisher) publish(kind string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		p.log.WithError(err).WithField("kind", kind).Error("Failed to encode notification")
		return
	}
	subject := p.Subject(kind)
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.WithError(err).WithField("subject", subject).Warn("⚠️ Failed to publish notification")
	}
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p.nc == nil || p.nc.IsClosed() {
		return nil
	}
	if err := p.nc.FlushTimeout(2 * time.Second); err != nil {
		p.log.WithError(err).Warn("⚠️ NATS flush before close failed")
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	p.log.Info("NATS connection closed gracefully")
	return nil
}
