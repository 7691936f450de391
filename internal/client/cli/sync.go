package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/marksync/internal/client/client"
	"github.com/dmitrijs2005/marksync/internal/client/linkcheck"
	"github.com/dmitrijs2005/marksync/internal/client/sync"
)

func explain(err error) error {
	if errors.Is(err, client.ErrNotAuthenticated) {
		return fmt.Errorf("%w (run `marksync login`)", err)
	}
	if errors.Is(err, sync.ErrOffline) {
		return fmt.Errorf("%w (check --server and your connection)", err)
	}
	return err
}

func (a *App) printResult(res *sync.Result) {
	if res == nil {
		return
	}
	d, u := res.Download, res.Upload
	a.printf("Downloaded %d bookmarks, %d categories, %d deletions", d.Bookmarks, d.Categories, d.Deleted)
	if d.FullSync {
		a.printf(" (full)")
	}
	a.printf("\nUploaded %d bookmarks, %d categories, %d deletions, %d media", u.Bookmarks, u.Categories, u.RemoteDeletes, u.MediaUploaded)
	if u.MediaFailed > 0 {
		a.printf(" (%d media failed)", u.MediaFailed)
	}
	a.printf("\n")
	if r := res.Repair; r.Orphans > 0 || r.Decrypted > 0 {
		a.printf("Repaired %d orphaned bookmarks, decrypted %d records\n", r.Orphans, r.Decrypted)
	}
	a.printf("Done in %s after %d attempt(s)\n", res.Duration.Round(time.Millisecond), res.Attempts)
}

func (a *App) runSync(ctx context.Context, fn func(context.Context) error) error {
	if err := a.unlock(ctx); err != nil {
		return err
	}
	sync.NewMonitor(a.client, a.coord, a.cfg.OnlineCheckInterval, a.log.With("component", "monitor")).Check(ctx)

	events, cancel := a.coord.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if ev.Type == sync.EventRetrying {
				a.printf("Attempt %d failed: %v; retrying in %s\n", ev.Attempt, ev.Err, ev.Delay)
			}
		}
	}()

	err := fn(ctx)
	cancel()
	<-done
	if err != nil {
		return explain(err)
	}
	st := a.coord.Status()
	if st.State == sync.StateIdle && st.LastResult != nil && ctx.Err() == nil {
		a.printResult(st.LastResult)
	}
	return nil
}

func newSyncCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download remote changes, then upload local ones",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = e.withApp(func(ctx context.Context, a *App, _ []string) error {
		return a.runSync(ctx, a.coord.Sync)
	})
	return cmd
}

func newFullSyncCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "full-sync",
		Short: "Fetch everything from the server, keeping local records",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = e.withApp(func(ctx context.Context, a *App, _ []string) error {
		return a.runSync(ctx, a.coord.ForceFullSync)
	})
	return cmd
}

func newResetCmd(e *env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard local data, including unsynced changes, and download the server copy",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = e.withApp(func(ctx context.Context, a *App, _ []string) error {
		if !yes {
			answer, err := GetSimpleText(a.in, "This deletes every local bookmark, including unsynced changes. Type 'yes' to continue", a.out)
			if err != nil {
				return err
			}
			if !strings.EqualFold(answer, "yes") {
				a.printf("Aborted\n")
				return nil
			}
		}
		return a.runSync(ctx, a.coord.Reset)
	})
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newStatusCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show login, sync and local store state",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = e.withApp(func(ctx context.Context, a *App, _ []string) error {
		repos := a.store.Repos()

		switch info, err := a.tokens.Info(ctx); {
		case errors.Is(err, client.ErrNotAuthenticated):
			a.printf("Account:     not logged in\n")
		case err != nil:
			return err
		case !a.tokens.Authenticated(ctx):
			a.printf("Account:     token expired %s\n", humanize.Time(info.ExpiresAt))
		case info.ExpiresAt.IsZero():
			a.printf("Account:     logged in\n")
		default:
			a.printf("Account:     %s (token expires %s)\n", orDash(info.Subject), humanize.Time(info.ExpiresAt))
		}
		a.printf("Server:      %s\n", a.cfg.ServerURL)

		if last := a.coord.LastSyncAt(ctx); last.IsZero() {
			a.printf("Last sync:   never\n")
		} else {
			a.printf("Last sync:   %s\n", humanize.Time(last))
		}

		nb, err := repos.Bookmarks.Count(ctx)
		if err != nil {
			return err
		}
		nc, err := repos.Categories.Count(ctx)
		if err != nil {
			return err
		}
		db, err := repos.Bookmarks.ListDirty(ctx)
		if err != nil {
			return err
		}
		dc, err := repos.Categories.ListDirty(ctx)
		if err != nil {
			return err
		}
		dels, err := repos.Deletions.List(ctx)
		if err != nil {
			return err
		}
		a.printf("Bookmarks:   %s (%d unsynced)\n", humanize.Comma(int64(nb)), len(db))
		a.printf("Categories:  %s (%d unsynced)\n", humanize.Comma(int64(nc)), len(dc))
		a.printf("Deletes:     %d queued\n", len(dels))

		enc, err := a.keys.Configured(ctx)
		if err != nil {
			return err
		}
		a.printf("Encryption:  %s\n", map[bool]string{true: "passphrase set", false: "off"}[enc])

		if st, err := os.Stat(a.store.Path()); err == nil {
			a.printf("Database:    %s (%s)\n", a.store.Path(), humanize.Bytes(uint64(st.Size())))
		}
		return nil
	})
	return cmd
}

func newWatchCmd(e *env) *cobra.Command {
	var links bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stay running and sync whenever the server becomes reachable",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = e.withApp(func(ctx context.Context, a *App, _ []string) error {
		if err := a.unlock(ctx); err != nil {
			return err
		}
		if !a.tokens.Authenticated(ctx) {
			return explain(client.ErrNotAuthenticated)
		}

		events, cancel := a.coord.Subscribe()
		defer cancel()

		mon := sync.NewMonitor(a.client, a.coord, a.cfg.OnlineCheckInterval, a.log.With("component", "monitor"))
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return mon.Run(gctx) })
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					a.printEvent(ev)
				}
			}
		})
		if links {
			g.Go(func() error {
				return a.links.Watch(gctx, a.cfg.LinkCheckInterval, func(res []linkcheck.Result) {
					a.printLinks(res, true)
				})
			})
		}
		a.printf("Watching %s (every %s), press Ctrl+C to stop\n", a.cfg.ServerURL, a.cfg.OnlineCheckInterval)
		return g.Wait()
	})
	cmd.Flags().BoolVar(&links, "links", false, "also check bookmark links periodically")
	return cmd
}

func (a *App) printEvent(ev sync.Event) {
	stamp := time.Now().Format(time.TimeOnly)
	switch ev.Type {
	case sync.EventCompleted:
		a.printf("%s sync completed\n", stamp)
		a.printResult(ev.Result)
	case sync.EventFailed:
		a.printf("%s sync failed: %v\n", stamp, ev.Err)
	case sync.EventRetrying:
		a.printf("%s attempt %d failed, retrying in %s\n", stamp, ev.Attempt, ev.Delay)
	}
}
