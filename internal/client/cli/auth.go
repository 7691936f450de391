package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newLoginCmd(e *env) *cobra.Command {
	var (
		token   string
		encrypt bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the API token issued by the bookmark server",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = e.withApp(func(ctx context.Context, a *App, _ []string) error {
		if token == "" {
			raw, err := GetSecret(a.in, "API token", a.out)
			if err != nil {
				return err
			}
			token = strings.TrimSpace(string(raw))
			wipe(raw)
		}
		if err := a.tokens.Save(ctx, token); err != nil {
			return err
		}

		info, err := a.tokens.Info(ctx)
		if err != nil {
			return err
		}
		switch {
		case info.Opaque || info.ExpiresAt.IsZero():
			a.printf("Logged in\n")
		default:
			a.printf("Logged in as %s, token expires %s\n", orDash(info.Subject), humanize.Time(info.ExpiresAt))
		}

		if encrypt {
			if err := a.setPassphrase(ctx); err != nil {
				return fmt.Errorf("enable encryption: %w", err)
			}
			a.printf("Encryption enabled\n")
		}
		return nil
	})
	cmd.Flags().StringVar(&token, "token", "", "API token (prompted when omitted)")
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "set a passphrase and encrypt synced fields")
	return cmd
}

func newLogoutCmd(e *env) *cobra.Command {
	var forgetKey bool
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored API token",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = e.withApp(func(ctx context.Context, a *App, _ []string) error {
		if err := a.tokens.Clear(ctx); err != nil {
			return err
		}
		if forgetKey {
			if err := a.keys.Forget(ctx); err != nil {
				return err
			}
		}
		a.printf("Logged out\n")
		return nil
	})
	cmd.Flags().BoolVar(&forgetKey, "forget-key", false, "also drop the encryption salt and verifier")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
