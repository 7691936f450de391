package sync

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/marksync/internal/logging"
)

// Pinger checks that the server answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor polls reachability and starts a sync on every offline to online
// transition. The first successful probe counts as such a transition.
type Monitor struct {
	pinger   Pinger
	coord    *Coordinator
	interval time.Duration
	timeout  time.Duration
	log      logging.Logger

	known  bool
	online bool
}

func NewMonitor(p Pinger, coord *Coordinator, interval time.Duration, log logging.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Monitor{pinger: p, coord: coord, interval: interval, timeout: 5 * time.Second, log: log}
}

// Check probes once, updates the Coordinator and reports whether the state
// flipped to online.
func (m *Monitor) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.pinger.Ping(pctx)
	cancel()

	online := err == nil
	wasOnline, known := m.online, m.known
	m.online, m.known = online, true
	m.coord.SetOnline(online)

	if known && wasOnline == online {
		return false
	}
	if online {
		m.log.Info(ctx, "server reachable")
		return true
	}
	m.log.Warn(ctx, "server unreachable", "err", err)
	return false
}

// Run polls until ctx is done, syncing on each transition to online.
func (m *Monitor) Run(ctx context.Context) error {
	t := time.NewTicker(m.interval)
	defer t.Stop()

	for {
		if m.Check(ctx) {
			m.trigger(ctx)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func (m *Monitor) trigger(ctx context.Context) {
	err := m.coord.Sync(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrSyncInProgress):
		m.log.Debug(ctx, "sync already running")
	default:
		m.log.Warn(ctx, "triggered sync failed", "err", err)
	}
}
