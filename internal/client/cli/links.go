package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/marksync/internal/client/linkcheck"
)

func newLinksCmd(e *env) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "links",
		Short: "Check bookmark URLs and report the broken ones",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = e.withApp(func(ctx context.Context, a *App, _ []string) error {
		res, err := a.links.Run(ctx)
		if err != nil {
			return err
		}
		a.printLinks(res, !all)
		return nil
	})
	cmd.Flags().BoolVar(&all, "all", false, "also list working links")
	return cmd
}

func (a *App) printLinks(res []linkcheck.Result, brokenOnly bool) {
	var rows [][]string
	broken := 0
	for _, r := range res {
		if !r.OK() {
			broken++
		} else if brokenOnly {
			continue
		}
		status := fmt.Sprint(r.Status)
		if r.Err != nil {
			status = "error: " + r.Err.Error()
		}
		rows = append(rows, []string{r.BookmarkID, status, r.URL})
	}
	printTable(a.out, []string{"ID", "STATUS", "URL"}, rows)
	a.printf("%d checked, %d broken\n", len(res), broken)
}
