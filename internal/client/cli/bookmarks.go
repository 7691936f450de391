package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/marksync/internal/client/models"
	"github.com/dmitrijs2005/marksync/internal/client/services"
)

func newAddCmd(e *env) *cobra.Command {
	var in services.BookmarkInput
	cmd := &cobra.Command{
		Use:   "add [url]",
		Short: "Save a bookmark locally; it is uploaded on the next sync",
		Args:  cobra.MaximumNArgs(1),
	}
	cmd.RunE = e.withApp(func(ctx context.Context, a *App, args []string) error {
		if len(args) == 1 {
			in.URL = args[0]
		}
		b, err := a.library.AddBookmark(ctx, in)
		if err != nil {
			return err
		}
		a.printf("Added %s\n", b.ID)
		return nil
	})
	f := cmd.Flags()
	f.StringVarP(&in.Title, "title", "t", "", "title")
	f.StringVarP(&in.Note, "note", "n", "", "note")
	f.StringSliceVar(&in.Tags, "tag", nil, "tag (repeatable or comma separated)")
	f.StringVar(&in.CategoryID, "category", "", "category id")
	f.BoolVar(&in.IsFavorite, "favorite", false, "mark as favorite")
	f.BoolVar(&in.IsRead, "read", false, "mark as read")
	return cmd
}

func newAddCategoryCmd(e *env) *cobra.Command {
	var in services.CategoryInput
	cmd := &cobra.Command{
		Use:   "add-category <name>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = e.withApp(func(ctx context.Context, a *App, args []string) error {
		in.Name = args[0]
		c, err := a.library.AddCategory(ctx, in)
		if err != nil {
			return err
		}
		a.printf("Added category %s\n", c.ID)
		return nil
	})
	cmd.Flags().StringVar(&in.Icon, "icon", "", "icon name")
	cmd.Flags().StringVar(&in.Color, "color", "", "color, e.g. #ff8800")
	cmd.Flags().IntVar(&in.Order, "order", 0, "sort position")
	return cmd
}

func newAttachCmd(e *env) *cobra.Command {
	var (
		images []string
		file   string
	)
	cmd := &cobra.Command{
		Use:   "attach <bookmark-id>",
		Short: "Attach images or a document; they are uploaded on the next sync",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = e.withApp(func(ctx context.Context, a *App, args []string) error {
		if len(images) == 0 && file == "" {
			return fmt.Errorf("nothing to attach: use --image or --file")
		}
		if len(images) > 0 {
			if err := a.library.AttachImages(ctx, args[0], images...); err != nil {
				return err
			}
		}
		if file != "" {
			if err := a.library.AttachFile(ctx, args[0], file); err != nil {
				return err
			}
		}
		a.printf("Attached to %s\n", args[0])
		return nil
	})
	cmd.Flags().StringArrayVar(&images, "image", nil, "image path (repeatable)")
	cmd.Flags().StringVar(&file, "file", "", "document path")
	return cmd
}

func flags(b *models.Bookmark) string {
	var sb strings.Builder
	for _, f := range []struct {
		on bool
		c  byte
	}{{b.Dirty, '*'}, {b.IsFavorite, 'F'}, {b.IsRead, 'R'}, {b.HasPendingMedia(), 'M'}} {
		if f.on {
			sb.WriteByte(f.c)
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}

func newListCmd(e *env) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bookmarks (flags: * unsynced, F favorite, R read, M media pending)",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = e.withApp(func(ctx context.Context, a *App, _ []string) error {
		list, err := a.library.Bookmarks(ctx, category)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(list))
		for _, b := range list {
			rows = append(rows, []string{b.ID, flags(b), b.Title, b.URL, strings.Join(b.Tags, ","), humanize.Time(b.UpdatedAt)})
		}
		printTable(a.out, []string{"ID", "FLAGS", "TITLE", "URL", "TAGS", "UPDATED"}, rows)
		a.printf("%d bookmark(s)\n", len(list))
		return nil
	})
	cmd.Flags().StringVar(&category, "category", "", "only bookmarks in this category")
	return cmd
}

func newCategoriesCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List categories",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = e.withApp(func(ctx context.Context, a *App, _ []string) error {
		cats, err := a.library.Categories(ctx)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(cats))
		for _, c := range cats {
			rows = append(rows, []string{c.ID, c.Name, strconv.Itoa(c.BookmarkCount), strconv.FormatBool(c.Synced && !c.Dirty)})
		}
		printTable(a.out, []string{"ID", "NAME", "BOOKMARKS", "SYNCED"}, rows)
		return nil
	})
	return cmd
}

func newDeleteCmd(e *env) *cobra.Command {
	var category bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a bookmark, or a category with --category",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = e.withApp(func(ctx context.Context, a *App, args []string) error {
		var err error
		if category {
			err = a.library.DeleteCategory(ctx, args[0])
		} else {
			err = a.library.DeleteBookmark(ctx, args[0])
		}
		if err != nil {
			return err
		}
		a.printf("Deleted %s\n", args[0])
		return nil
	})
	cmd.Flags().BoolVar(&category, "category", false, "the id is a category")
	return cmd
}
