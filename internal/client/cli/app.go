package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/marksync/internal/client/auth"
	"github.com/dmitrijs2005/marksync/internal/client/client"
	"github.com/dmitrijs2005/marksync/internal/client/config"
	"github.com/dmitrijs2005/marksync/internal/client/linkcheck"
	"github.com/dmitrijs2005/marksync/internal/client/media"
	"github.com/dmitrijs2005/marksync/internal/client/services"
	"github.com/dmitrijs2005/marksync/internal/client/storage"
	"github.com/dmitrijs2005/marksync/internal/client/sync"
	"github.com/dmitrijs2005/marksync/internal/cryptox"
	"github.com/dmitrijs2005/marksync/internal/logging"
)

// EnvPassphrase supplies the encryption passphrase without a prompt.
const EnvPassphrase = "MARKSYNC_PASSPHRASE"

// App owns every long-lived collaborator of a CLI invocation.
type App struct {
	cfg       *config.Config
	log       logging.Logger
	logCloser io.Closer

	store   *storage.Store
	tokens  *auth.Store
	cipher  *cryptox.FieldCipher
	keys    *services.Keys
	client  *client.HTTPClient
	library *services.Library
	coord   *sync.Coordinator
	links   *linkcheck.Checker

	in  *bufio.Reader
	out io.Writer
}

// NewApp opens the store and wires the engine. Close releases it.
func NewApp(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) (*App, error) {
	log, closer := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, MaxSizeMB: 10, MaxBackups: 3})

	store, err := storage.Open(ctx, cfg.DatabasePath)
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	cipher, err := cryptox.NewFieldCipher(nil)
	if err != nil {
		_ = store.Close()
		_ = closer.Close()
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		log:       log,
		logCloser: closer,
		store:     store,
		tokens:    auth.NewStore(store.Repos().Metadata),
		cipher:    cipher,
		keys:      services.NewKeys(store.Repos().Metadata, cipher),
		in:        bufio.NewReader(in),
		out:       out,
	}
	a.client = client.NewHTTPClient(cfg.ServerURL, a.tokens,
		client.WithTimeout(cfg.RequestTimeout),
		client.WithLogger(log.With("component", "client")))
	a.library = services.NewLibrary(store, cfg.Source, log.With("component", "library"))
	a.links = linkcheck.New(store, log.With("component", "linkcheck"), linkcheck.WithWorkers(cfg.LinkCheckWorkers))

	uploader, err := a.mediaUploader(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.coord = sync.NewCoordinator(sync.Deps{
		Store:  store,
		Client: a.client,
		Auth:   a.tokens,
		Cipher: cipher,
		Log:    log,
		UploaderOptions: []sync.UploaderOption{
			sync.WithMediaUploader(uploader),
			sync.WithMediaWorkers(cfg.MediaWorkers),
		},
	})
	return a, nil
}

func (a *App) mediaUploader(ctx context.Context) (media.Uploader, error) {
	if a.cfg.MediaBackend != config.MediaS3 {
		return media.NewServerUploader(a.client), nil
	}
	s3cfg := a.cfg.S3
	u, err := media.NewS3Uploader(ctx, media.S3Config{
		Region:        s3cfg.Region,
		Endpoint:      s3cfg.Endpoint,
		Bucket:        s3cfg.Bucket,
		AccessKey:     s3cfg.AccessKey,
		SecretKey:     s3cfg.SecretKey,
		PublicBaseURL: s3cfg.PublicBaseURL,
		Prefix:        s3cfg.Prefix,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("s3 media backend: %w", err)
	}
	return u, nil
}

// Close releases the store and the log file.
func (a *App) Close() error {
	a.keys.Lock()
	err := a.store.Close()
	if cerr := a.logCloser.Close(); err == nil {
		err = cerr
	}
	return err
}

// unlock installs the encryption key when a passphrase was set for this
// store. It reads MARKSYNC_PASSPHRASE or prompts on a terminal; without
// either, sync runs in plaintext mode.
func (a *App) unlock(ctx context.Context) error {
	configured, err := a.keys.Configured(ctx)
	if err != nil || !configured {
		return err
	}

	if v := os.Getenv(EnvPassphrase); v != "" {
		return a.keys.Unlock(ctx, []byte(v))
	}
	if !isTerminal(int(os.Stdin.Fd())) {
		a.log.Warn(ctx, "encryption passphrase not provided, syncing without a key")
		return nil
	}
	pw, err := GetSecret(a.in, "Passphrase", a.out)
	if err != nil {
		return err
	}
	defer wipe(pw)
	return a.keys.Unlock(ctx, pw)
}

// setPassphrase enables encryption for this store.
func (a *App) setPassphrase(ctx context.Context) error {
	pw, err := GetSecret(a.in, "New passphrase", a.out)
	if err != nil {
		return err
	}
	defer wipe(pw)
	if len(pw) == 0 {
		return errors.New("empty passphrase")
	}
	return a.keys.Unlock(ctx, pw)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
