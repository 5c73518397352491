// internal/sniper/listener.go
package sniper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"raydium-sniper-bot/internal/client"
	"raydium-sniper-bot/internal/raydium"

	"github.com/sirupsen/logrus"
)

// LogSubscriber delivers logsSubscribe notifications.
type LogSubscriber interface {
	SubscribeLogs(programID, commitment string, handler client.LogsHandler) (int, error)
}

// TransactionFetcher loads the full transaction for a signature.
type TransactionFetcher interface {
	GetTransaction(ctx context.Context, signature string) (raydium.Transaction, error)
}

// ListenerConfig tunes the detection stream.
type ListenerConfig struct {
	Commitment      string
	QueueSize       int
	FetchQueueSize  int
	FetchTimeout    time.Duration
	FetchAttempts   int
	FetchRetryDelay time.Duration
	DedupeSize      int
}

// Listener turns program log notifications into classifier input. CPMM
// pool-inits are fully described by their ray_log, so they go straight to
// the queue; V4 needs the instruction accounts, so hinted V4 signatures are
// fetched over RPC by a single worker to keep arrival order.
type Listener struct {
	ws      LogSubscriber
	fetcher TransactionFetcher
	cfg     ListenerConfig
	stats   *Stats
	logger  logrus.FieldLogger

	out   chan raydium.Transaction
	fetch chan pendingFetch
	seen  *recentSet
}

type pendingFetch struct {
	signature string
	slot      uint64
	seenAt    time.Time
}

// NewListener creates a listener. fetcher may be nil, in which case V4
// pools are not detected.
func NewListener(ws LogSubscriber, fetcher TransactionFetcher, cfg ListenerConfig, stats *Stats, logger logrus.FieldLogger) *Listener {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.FetchQueueSize <= 0 {
		cfg.FetchQueueSize = cfg.QueueSize
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	if cfg.FetchAttempts <= 0 {
		cfg.FetchAttempts = 3
	}
	if cfg.FetchRetryDelay <= 0 {
		cfg.FetchRetryDelay = 400 * time.Millisecond
	}
	if cfg.DedupeSize <= 0 {
		cfg.DedupeSize = 4096
	}
	if stats == nil {
		stats = NewStats()
	}

	return &Listener{
		ws:      ws,
		fetcher: fetcher,
		cfg:     cfg,
		stats:   stats,
		logger:  logger,
		out:     make(chan raydium.Transaction, cfg.QueueSize),
		fetch:   make(chan pendingFetch, cfg.FetchQueueSize),
		seen:    newRecentSet(cfg.DedupeSize),
	}
}

// Start subscribes to both Raydium programs.
func (l *Listener) Start() error {
	programs := []struct {
		name string
		id   string
	}{
		{"amm_v4", raydium.AmmV4ProgramID.String()},
		{"cpmm", raydium.CPMMProgramID.String()},
	}

	for _, p := range programs {
		if p.name == "amm_v4" && l.fetcher == nil {
			l.logger.Warn("⚠️ No transaction fetcher configured, AMM V4 pools will not be detected")
			continue
		}
		id, err := l.ws.SubscribeLogs(p.id, l.cfg.Commitment, l.handle)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s logs: %w", p.name, err)
		}
		l.logger.WithFields(logrus.Fields{
			"program":    p.name,
			"program_id": p.id,
			"request_id": id,
		}).Info("📡 Subscribed to program logs")
	}
	return nil
}

// Transactions is the detection queue.
func (l *Listener) Transactions() <-chan raydium.Transaction {
	return l.out
}

// Run fetches hinted V4 transactions until ctx is done.
func (l *Listener) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-l.fetch:
			tx, err := l.fetchTransaction(ctx, p.signature)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.stats.FetchErrors.Add(1)
				l.logger.WithError(err).WithField("signature", p.signature).Warn("❌ Failed to fetch pool-init transaction")
				continue
			}
			if tx.Slot == 0 {
				tx.Slot = p.slot
			}
			l.logger.WithFields(logrus.Fields{
				"signature": p.signature,
				"fetch_ms":  time.Since(p.seenAt).Milliseconds(),
			}).Debug("Fetched V4 transaction")
			l.enqueue(tx)
		}
	}
}

func (l *Listener) fetchTransaction(ctx context.Context, signature string) (raydium.Transaction, error) {
	var lastErr error
	for attempt := 1; attempt <= l.cfg.FetchAttempts; attempt++ {
		fetchCtx, cancel := context.WithTimeout(ctx, l.cfg.FetchTimeout)
		tx, err := l.fetcher.GetTransaction(fetchCtx, signature)
		cancel()
		if err == nil {
			return tx, nil
		}
		lastErr = err
		// The node may not serve the transaction yet right after the notification.
		if !errors.Is(err, client.ErrAccountNotFound) || attempt == l.cfg.FetchAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return raydium.Transaction{}, ctx.Err()
		case <-time.After(l.cfg.FetchRetryDelay):
		}
	}
	return raydium.Transaction{}, lastErr
}

// handle runs on the websocket read goroutine and must not block.
func (l *Listener) handle(n client.LogsNotification) {
	l.stats.Received.Add(1)
	v := n.Result.Value

	if v.Err != nil {
		l.logger.WithField("signature", v.Signature).Debug("Skipping failed transaction")
		return
	}
	// A transaction touching both programs arrives once per subscription.
	if !l.seen.add(v.Signature) {
		return
	}

	switch {
	case l.fetcher != nil && raydium.V4InitHint(v.Logs):
		select {
		case l.fetch <- pendingFetch{signature: v.Signature, slot: n.Result.Context.Slot, seenAt: time.Now()}:
		default:
			l.stats.Dropped.Add(1)
			l.logger.WithField("signature", v.Signature).Warn("⚠️ Fetch queue full, dropping V4 candidate")
		}
	case raydium.InvokesProgram(v.Logs, raydium.CPMMProgramID):
		// Swaps and deposits emit ray_log too; only forward what might be an init.
		if _, err := raydium.DecodeCPMM(v.Logs); raydium.IsNotApplicable(err) {
			return
		}
		l.enqueue(raydium.Transaction{
			Signature: v.Signature,
			Slot:      n.Result.Context.Slot,
			Logs:      v.Logs,
		})
	}
}

func (l *Listener) enqueue(tx raydium.Transaction) {
	select {
	case l.out <- tx:
		l.stats.Forwarded.Add(1)
	default:
		l.stats.Dropped.Add(1)
		l.logger.WithFields(logrus.Fields{
			"signature":  tx.Signature,
			"queue_size": cap(l.out),
		}).Warn("⚠️ Detection queue full, dropping transaction")
	}
}

// recentSet remembers the last n keys.
type recentSet struct {
	mu    sync.Mutex
	keys  map[string]struct{}
	order []string
	next  int
}

func newRecentSet(n int) *recentSet {
	return &recentSet{keys: make(map[string]struct{}, n), order: make([]string, n)}
}

// add reports whether key was not already present.
func (r *recentSet) add(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[key]; ok {
		return false
	}
	if old := r.order[r.next]; old != "" {
		delete(r.keys, old)
	}
	r.order[r.next] = key
	r.next = (r.next + 1) % len(r.order)
	r.keys[key] = struct{}{}
	return true
}
