package cmds

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-go-golems/waifu-coder/pkg/chat"
	"github.com/go-go-golems/waifu-coder/pkg/config"
	"github.com/go-go-golems/waifu-coder/pkg/conversation"
	"github.com/go-go-golems/waifu-coder/pkg/events"
	"github.com/go-go-golems/waifu-coder/pkg/fallback"
	"github.com/go-go-golems/waifu-coder/pkg/llm"
	"github.com/go-go-golems/waifu-coder/pkg/personas"
	"github.com/go-go-golems/waifu-coder/pkg/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// App wires the engine for one CLI invocation.
type App struct {
	Store     store.Store
	Bus       *events.Bus
	Config    *config.Manager
	Registry  *personas.Registry
	Log       *conversation.Log
	Fallbacks *fallback.Generator
	Chat      *chat.Orchestrator

	cancel context.CancelFunc
	eg     *errgroup.Group
}

func defaultStorePath(backend store.Backend) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "could not find user config dir")
	}
	dir = filepath.Join(dir, "waifu-coder")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "could not create %s", dir)
	}
	if backend == store.BackendYAML {
		return filepath.Join(dir, "waifu.yaml"), nil
	}
	return filepath.Join(dir, "waifu.db"), nil
}

// OpenApp builds the App from viper settings. Events are printed to stderr
// until Close is called.
func OpenApp(ctx context.Context) (*App, error) {
	boot := config.FromViper(viper.GetViper())

	path := boot.StorePath
	if path == "" && boot.StoreBackend != store.BackendMemory {
		var err error
		path, err = defaultStorePath(boot.StoreBackend)
		if err != nil {
			return nil, err
		}
	}
	s, err := store.Open(boot.StoreBackend, path)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("backend", string(boot.StoreBackend)).Str("path", path).Msg("Opened store")

	app := &App{Store: s}
	if err := app.wire(ctx, boot); err != nil {
		_ = s.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context, boot config.Settings) error {
	var err error
	a.Config, err = config.Load(ctx, a.Store, viper.GetViper())
	if err != nil {
		return err
	}

	catalog := personas.DefaultCatalog()
	if boot.CatalogPath != "" {
		catalog, err = personas.LoadCatalogFile(boot.CatalogPath)
		if err != nil {
			return err
		}
	}

	a.Bus = events.NewBus(events.WithLogger(events.NewWatermill(log.Logger)))
	subCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	ch, err := a.Bus.Subscribe(subCtx)
	if err != nil {
		return err
	}
	printer := events.PrinterFunc(os.Stderr, viper.GetBool("events"))
	a.eg, _ = errgroup.WithContext(subCtx)
	a.eg.Go(func() error {
		return events.Drain(subCtx, ch, printer)
	})

	a.Log, err = conversation.NewLog(ctx, a.Store)
	if err != nil {
		return err
	}
	a.Registry, err = personas.NewRegistry(ctx, a.Store,
		personas.WithCatalog(catalog),
		personas.WithEmitter(a.Bus),
		personas.WithHistoryDeleter(a.Log),
	)
	if err != nil {
		return err
	}
	a.Fallbacks, err = fallback.New()
	if err != nil {
		return err
	}

	var confirmer chat.Confirmer = NewTerminalConfirmer()
	if viper.GetBool("yes") {
		confirmer = chat.AlwaysConfirm
	}
	a.Chat = chat.New(a.Registry, a.Log, llm.NewClient(a.Config), a.Fallbacks, a.Config,
		chat.WithEmitter(a.Bus),
		chat.WithConfirmer(confirmer),
	)
	return nil
}

// Close flushes pending events and closes the store.
func (a *App) Close() error {
	var ret error
	if a.Bus != nil {
		if err := a.Bus.Close(); err != nil {
			ret = err
		}
	}
	if a.eg != nil {
		if err := a.eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			log.Debug().Err(err).Msg("Event printer stopped")
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.Store.Close(); err != nil && ret == nil {
		ret = err
	}
	return ret
}

func withApp(ctx context.Context, f func(app *App) error) error {
	app, err := OpenApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Warn().Err(err).Msg("Could not close app")
		}
	}()
	return f(app)
}
