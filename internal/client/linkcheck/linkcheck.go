// Package linkcheck probes the URLs of saved bookmarks and reports which
// ones no longer answer. It reads through a read-only snapshot connection so
// a running sync never waits on it.
package linkcheck

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/marksync/internal/client/storage"
	"github.com/dmitrijs2005/marksync/internal/logging"
	"github.com/dmitrijs2005/marksync/internal/netx"
)

const (
	defaultWorkers = 8
	defaultTimeout = 10 * time.Second
)

// Result is the outcome for one bookmark.
type Result struct {
	BookmarkID string
	Title      string
	URL        string
	Status     int
	Method     string
	Err        error
	Elapsed    time.Duration
}

// OK reports a 2xx or 3xx answer.
func (r Result) OK() bool {
	return r.Err == nil && r.Status >= 200 && r.Status < 400
}

type Checker struct {
	store   *storage.Store
	http    *http.Client
	workers int
	timeout time.Duration
	log     logging.Logger
}

type Option func(*Checker)

func WithHTTPClient(c *http.Client) Option {
	return func(ch *Checker) { ch.http = c }
}

func WithWorkers(n int) Option {
	return func(ch *Checker) {
		if n > 0 {
			ch.workers = n
		}
	}
}

// WithTimeout bounds each probe.
func WithTimeout(d time.Duration) Option {
	return func(ch *Checker) {
		if d > 0 {
			ch.timeout = d
		}
	}
}

func New(store *storage.Store, log logging.Logger, opts ...Option) *Checker {
	if log == nil {
		log = logging.Nop()
	}
	c := &Checker{
		store:   store,
		http:    &http.Client{},
		workers: defaultWorkers,
		timeout: defaultTimeout,
		log:     log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run checks every bookmark that has a URL. Results keep the bookmark
// listing order.
func (c *Checker) Run(ctx context.Context) ([]Result, error) {
	snap, err := c.store.OpenSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer snap.Close()

	list, err := snap.Repos.Bookmarks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}

	results := make([]Result, 0, len(list))
	for _, b := range list {
		if b.URL == "" {
			continue
		}
		results = append(results, Result{BookmarkID: b.ID, Title: b.Title, URL: b.URL})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i := range results {
		g.Go(func() error {
			c.check(gctx, &results[i])
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	broken := 0
	for _, r := range results {
		if !r.OK() {
			broken++
		}
	}
	c.log.Info(ctx, "link check finished", "checked", len(results), "broken", broken)
	return results, nil
}

func (c *Checker) check(ctx context.Context, r *Result) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	r.Status, r.Method, r.Err = netx.Probe(ctx, c.http, r.URL)
	r.Elapsed = time.Since(start)
	if !r.OK() {
		c.log.Debug(ctx, "link broken", "bookmark", r.BookmarkID, "url", r.URL, "status", r.Status, "err", r.Err)
	}
}

// Watch runs a check every interval until ctx is done, handing each report
// to fn.
func (c *Checker) Watch(ctx context.Context, interval time.Duration, fn func([]Result)) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		res, err := c.Run(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			c.log.Warn(ctx, "link check failed", "err", err)
		default:
			fn(res)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
