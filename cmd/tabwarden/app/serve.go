package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tabwarden/tabwarden/internal/api"
	"github.com/tabwarden/tabwarden/internal/auth"
	"github.com/tabwarden/tabwarden/internal/config"
	"github.com/tabwarden/tabwarden/internal/host"
	"github.com/tabwarden/tabwarden/internal/host/cdp"
	"github.com/tabwarden/tabwarden/internal/host/inmemory"
	"github.com/tabwarden/tabwarden/internal/httpclient"
	"github.com/tabwarden/tabwarden/internal/items"
	"github.com/tabwarden/tabwarden/internal/orchestrator"
	"github.com/tabwarden/tabwarden/internal/reconcile"
	"github.com/tabwarden/tabwarden/internal/settings"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sync daemon",
	Long: `Start the sync daemon: connect to the browser host, reconcile the
container on a timer and expose the local HTTP control surface.

The daemon requires a configuration file (--config) that specifies:
- The item source (html dashboard, api endpoint, or local file)
- The browser host (cdp devtools endpoint or the in-process host)
- The container kind and the credential cookie to watch

See examples/ directory for a sample configuration.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverRequestTimeout   = 10 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 15 * time.Second // Must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout      = 60 * time.Second
)

func init() {
	serveCmd.Flags().String("address", "", "Address to listen on (overrides the configuration file)")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Error marking config flag as required", "error", err)
	}
}

// hosts bundles the adapters the selected browser host provides. Bookmarks is
// nil when the host cannot expose a bookmark tree.
type hosts struct {
	tabs      host.TabHost
	bookmarks host.BookmarkHost
	cookies   host.CookieReader
	close     func()
}

func buildHosts(ctx context.Context, cfg *config.Config) (*hosts, error) {
	switch cfg.Host.Type {
	case config.HostTypeInMemory:
		tabs := inmemory.NewTabHost()
		bookmarks := inmemory.NewBookmarkHost()
		cookies := inmemory.NewCookieReader()
		return &hosts{
			tabs:      tabs,
			bookmarks: bookmarks,
			cookies:   cookies,
			close: func() {
				tabs.Close()
				cookies.Close()
			},
		}, nil

	case config.HostTypeCDP:
		tabs, err := cdp.NewTabHost(ctx, cfg.Host.DevtoolsURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to devtools endpoint: %w", err)
		}
		cookies := cdp.NewCookieReader(tabs)
		// The DevTools protocol exposes no bookmark tree, so flat-folder
		// containers are unavailable over cdp.
		return &hosts{
			tabs:    tabs,
			cookies: cookies,
			close: func() {
				cookies.Close()
				tabs.Close()
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported host type: %s", cfg.Host.Type)
	}
}

func buildStrategy(cfg *config.Config, h *hosts) (reconcile.Reconciler, error) {
	switch cfg.ContainerKind {
	case config.ContainerKindGroupedTabs:
		pattern, err := regexp.Compile(cfg.ItemURLPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid itemURLPattern: %w", err)
		}
		return reconcile.NewGroupedTabs(h.tabs, pattern), nil

	case config.ContainerKindFlatFolder:
		if h.bookmarks == nil {
			return nil, fmt.Errorf("flat-folder containers require a host with a bookmark tree (host type %s has none)", cfg.Host.Type)
		}
		return reconcile.NewFlatFolder(h.bookmarks), nil

	default:
		return nil, fmt.Errorf("invalid containerKind: %s", cfg.ContainerKind)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := config.Load(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	address := cfg.ListenAddress
	if flagAddr, _ := cmd.Flags().GetString("address"); flagAddr != "" {
		address = flagAddr
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	h, err := buildHosts(ctx, cfg)
	if err != nil {
		return err
	}
	defer h.close()

	strategy, err := buildStrategy(cfg, h)
	if err != nil {
		return err
	}

	oracle := auth.NewCookieOracle(h.cookies, cfg.Auth.Domain, cfg.Auth.CookieName, cfg.Auth.CookieValue)
	store := settings.NewFileStore(cfg.DataDir)

	source, err := items.NewSource(cfg.Source, httpclient.NewDefaultClient(0))
	if err != nil {
		return fmt.Errorf("failed to create item source: %w", err)
	}

	orch := orchestrator.New(source, oracle, store, strategy, orchestrator.NewTickerScheduler())
	if err := orch.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize orchestrator: %w", err)
	}
	defer orch.Shutdown()

	// Background watchers: container membership drift and the credential
	// cookie. Auth transitions are passive, the next scheduled round
	// observes the new state on its own.
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	if grouped, ok := strategy.(*reconcile.GroupedTabsReconciler); ok {
		go grouped.Watch(watchCtx)
	}
	go oracle.Watch(watchCtx, func(bool) {})

	router := api.NewServer(oracle, store, orch,
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			api.LoggingMiddleware,
		),
	)

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("Server listening", "address", address, "containerKind", cfg.ContainerKind)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		slog.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}
	slog.Info("Server shutdown complete")
	return nil
}
