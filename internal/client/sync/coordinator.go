package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/marksync/internal/client/client"
	"github.com/dmitrijs2005/marksync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/marksync/internal/client/storage"
	"github.com/dmitrijs2005/marksync/internal/logging"
)

const (
	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries   = 3
	BackoffBase  = 5 * time.Second
	eventBufSize = 32
)

// Authenticator reports whether a usable token exists.
type Authenticator interface {
	Authenticated(ctx context.Context) bool
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func defaultBackoff() retry.Backoff {
	return retry.WithMaxRetries(MaxRetries, retry.NewExponential(BackoffBase))
}

// Coordinator runs sync cycles one at a time.
type Coordinator struct {
	store    *storage.Store
	auth     Authenticator
	fetcher  *Fetcher
	repairer *Repairer
	uploader *Uploader
	log      logging.Logger

	sleep   Sleeper
	backoff func() retry.Backoff
	now     func() time.Time

	online  atomic.Bool
	running atomic.Bool

	mu         gosync.Mutex
	state      State
	lastErr    string
	lastSyncAt time.Time
	lastResult *Result

	subMu  gosync.Mutex
	subs   map[int]chan Event
	nextID int
}

type CoordinatorOption func(*Coordinator)

func WithSleeper(s Sleeper) CoordinatorOption {
	return func(c *Coordinator) { c.sleep = s }
}

func WithBackoff(f func() retry.Backoff) CoordinatorOption {
	return func(c *Coordinator) { c.backoff = f }
}

func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Store  *storage.Store
	Client client.Client
	Auth   Authenticator
	Cipher Cipher
	Log    logging.Logger

	UploaderOptions []UploaderOption
}

// NewCoordinator wires the download, repair and upload pipeline.
func NewCoordinator(d Deps, opts ...CoordinatorOption) *Coordinator {
	log := d.Log
	if log == nil {
		log = logging.Nop()
	}
	rec := NewReconciler(d.Cipher, log.With("component", "reconciler"))
	c := &Coordinator{
		store:    d.Store,
		auth:     d.Auth,
		fetcher:  NewFetcher(d.Client, d.Store, rec, log.With("component", "fetcher")),
		repairer: NewRepairer(d.Store, d.Cipher, log.With("component", "repair")),
		uploader: NewUploader(d.Client, d.Store, rec, d.Cipher, log.With("component", "uploader"), d.UploaderOptions...),
		log:      log.With("component", "coordinator"),
		sleep:    sleepCtx,
		backoff:  defaultBackoff,
		now:      time.Now,
		state:    StateIdle,
		subs:     map[int]chan Event{},
	}
	c.online.Store(true)
	for _, o := range opts {
		o(c)
	}
	return c
}

// Subscribe returns a channel of events and a function that cancels the
// subscription. Slow subscribers miss events rather than block the sync.
func (c *Coordinator) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBufSize)
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once gosync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
			close(ch)
		})
	}
}

func (c *Coordinator) publish(e Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.publish(Event{Type: EventStateChanged, State: s})
}

// SetOnline records reachability; Sync refuses to start while offline.
func (c *Coordinator) SetOnline(v bool) { c.online.Store(v) }

func (c *Coordinator) Online() bool { return c.online.Load() }

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:      c.state,
		InProgress: c.running.Load(),
		LastSyncAt: c.lastSyncAt,
		LastError:  c.lastErr,
		LastResult: c.lastResult,
	}
}

// LastSyncAt returns the last successful cycle time, loading it from the
// store when this process has not synced yet.
func (c *Coordinator) LastSyncAt(ctx context.Context) time.Time {
	c.mu.Lock()
	t := c.lastSyncAt
	c.mu.Unlock()
	if !t.IsZero() || c.store == nil {
		return t
	}
	v, err := c.store.Repos().Metadata.Get(ctx, metadata.KeyLastSyncAt)
	if err != nil || len(v) == 0 {
		return time.Time{}
	}
	t, _ = time.Parse(time.RFC3339Nano, string(v))
	return t
}

// begin applies the entry guard and claims the single sync slot.
func (c *Coordinator) begin(ctx context.Context) error {
	if c.store == nil {
		return ErrNotConfigured
	}
	if c.auth == nil || !c.auth.Authenticated(ctx) {
		return client.ErrNotAuthenticated
	}
	if !c.online.Load() {
		return ErrOffline
	}
	if !c.running.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	return nil
}

// Sync runs one full cycle with retries. A concurrent call returns
// ErrSyncInProgress without doing anything. Cancellation returns the
// Coordinator to idle and yields nil.
func (c *Coordinator) Sync(ctx context.Context) error {
	if err := c.begin(ctx); err != nil {
		return err
	}
	defer c.running.Store(false)
	return c.run(ctx, c.cycle)
}

// ForceFullSync drops the cursor so the next download fetches everything,
// then syncs. Local records are kept.
func (c *Coordinator) ForceFullSync(ctx context.Context) error {
	if err := c.begin(ctx); err != nil {
		return err
	}
	defer c.running.Store(false)

	if err := c.store.Repos().Metadata.Delete(ctx, metadata.KeySyncCursor); err != nil {
		return c.fail(ctx, fmt.Errorf("clear cursor: %w", err))
	}
	c.log.Info(ctx, "cursor cleared, forcing full sync")
	return c.run(ctx, c.cycle)
}

// Reset deletes every local record, queued delete and the cursor, then
// downloads everything once. The token and the encryption salt survive.
func (c *Coordinator) Reset(ctx context.Context) error {
	if err := c.begin(ctx); err != nil {
		return err
	}
	defer c.running.Store(false)

	if err := c.store.ClearSyncData(ctx); err != nil {
		return c.fail(ctx, fmt.Errorf("reset local store: %w", err))
	}
	c.log.Info(ctx, "local store reset")
	return c.run(ctx, c.download)
}

type step func(ctx context.Context) (*Result, error)

func (c *Coordinator) run(ctx context.Context, fn step) error {
	start := c.now()
	b := c.backoff()

	for attempt := 1; ; attempt++ {
		c.setState(StateSyncing)

		res, err := fn(ctx)
		if err == nil {
			res.Attempts = attempt
			res.Duration = c.now().Sub(start)
			c.succeed(ctx, res)
			return nil
		}

		kind := Classify(err)
		if kind == KindCancelled {
			c.log.Debug(ctx, "sync cancelled")
			c.setState(StateIdle)
			return nil
		}
		if !Retryable(err) {
			return c.fail(ctx, err)
		}

		delay, stop := b.Next()
		if stop {
			return c.fail(ctx, err)
		}

		c.log.Warn(ctx, "sync attempt failed, retrying", "attempt", attempt, "kind", kind, "delay", delay, "err", err)
		c.mu.Lock()
		c.state = StateRetrying
		c.mu.Unlock()
		c.publish(Event{Type: EventRetrying, State: StateRetrying, Attempt: attempt, Delay: delay, Err: err})

		if err := c.sleep(ctx, delay); err != nil {
			c.setState(StateIdle)
			return nil
		}
	}
}

func (c *Coordinator) succeed(ctx context.Context, res *Result) {
	now := c.now()
	if err := c.store.Repos().Metadata.Set(ctx, metadata.KeyLastSyncAt, []byte(now.UTC().Format(time.RFC3339Nano))); err != nil {
		c.log.Warn(ctx, "failed to record last sync time", "err", err)
	}

	c.mu.Lock()
	c.state = StateIdle
	c.lastErr = ""
	c.lastSyncAt = now
	c.lastResult = res
	c.mu.Unlock()

	c.log.Info(ctx, "sync completed", "attempts", res.Attempts, "elapsed", res.Duration,
		"downloaded", res.Download.Bookmarks+res.Download.Categories,
		"uploaded", res.Upload.Bookmarks+res.Upload.Categories)
	c.publish(Event{Type: EventStateChanged, State: StateIdle})
	c.publish(Event{Type: EventCompleted, State: StateIdle, Result: res})
}

func (c *Coordinator) fail(ctx context.Context, err error) error {
	c.mu.Lock()
	c.state = StateError
	c.lastErr = err.Error()
	c.mu.Unlock()

	c.log.Error(ctx, "sync failed", "kind", Classify(err), "err", err)
	c.publish(Event{Type: EventStateChanged, State: StateError, Err: err})
	c.publish(Event{Type: EventFailed, State: StateError, Err: err})
	return err
}

// cycle is download, repair, upload.
func (c *Coordinator) cycle(ctx context.Context) (*Result, error) {
	res, err := c.download(ctx)
	if err != nil {
		return nil, err
	}

	c.setState(StateUploading)
	up, err := c.uploader.Upload(ctx)
	if err != nil {
		return nil, err
	}
	res.Upload = up
	return res, nil
}

func (c *Coordinator) download(ctx context.Context) (*Result, error) {
	c.setState(StateDownloading)
	down, err := c.fetcher.Download(ctx)
	if err != nil {
		return nil, err
	}

	c.setState(StateRepairing)
	rep := c.repairer.Run(ctx)
	return &Result{Download: down, Repair: rep}, nil
}
