package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/marksync/internal/buildinfo"
	"github.com/dmitrijs2005/marksync/internal/client/config"
)

// Streams are the standard streams of a CLI run.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// env lazily builds the App once flags are parsed.
type env struct {
	streams Streams
	envFile string
	app     *App
}

func (e *env) open(cmd *cobra.Command) error {
	if e.app != nil {
		return nil
	}
	cfg, err := config.Load(config.Options{
		File:    config.ConfigFile(cmd.Flags()),
		EnvFile: e.envFile,
		Flags:   cmd.Flags(),
	})
	if err != nil {
		return err
	}
	app, err := NewApp(cmd.Context(), cfg, e.streams.In, e.streams.Out)
	if err != nil {
		return err
	}
	e.app = app
	return nil
}

func (e *env) close() error {
	if e.app == nil {
		return nil
	}
	err := e.app.Close()
	e.app = nil
	return err
}

// withApp adapts a handler that needs the App into a cobra RunE.
func (e *env) withApp(fn func(ctx context.Context, a *App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := e.open(cmd); err != nil {
			return err
		}
		return fn(cmd.Context(), e.app, args)
	}
}

func newRootCommand(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "marksync",
		Short:         "Offline-first bookmark client that syncs with a bookmark server",
		Version:       buildinfo.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(e.streams.In)
	root.SetOut(e.streams.Out)
	root.SetErr(e.streams.Err)
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newLoginCmd(e),
		newLogoutCmd(e),
		newSyncCmd(e),
		newFullSyncCmd(e),
		newResetCmd(e),
		newStatusCmd(e),
		newWatchCmd(e),
		newAddCmd(e),
		newAddCategoryCmd(e),
		newAttachCmd(e),
		newListCmd(e),
		newCategoriesCmd(e),
		newDeleteCmd(e),
		newLinksCmd(e),
	)
	return root
}

// Run executes the command line args and releases everything it opened.
func Run(ctx context.Context, args []string, s Streams) error {
	e := &env{streams: s, envFile: ".env"}
	root := newRootCommand(e)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if cerr := e.close(); err == nil {
		err = cerr
	}
	return err
}
