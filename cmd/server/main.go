// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/voicequeue/internal/api/connect"
	"github.com/osa030/voicequeue/internal/app/catalog"
	"github.com/osa030/voicequeue/internal/app/filter"
	"github.com/osa030/voicequeue/internal/app/notification"
	"github.com/osa030/voicequeue/internal/app/playback"
	"github.com/osa030/voicequeue/internal/app/resolve"
	"github.com/osa030/voicequeue/internal/app/session"
	"github.com/osa030/voicequeue/internal/infra/config"
	"github.com/osa030/voicequeue/internal/infra/library"
	"github.com/osa030/voicequeue/internal/infra/logger"
	"github.com/osa030/voicequeue/internal/infra/simplayer"
	"github.com/osa030/voicequeue/internal/infra/spotify"
)

var (
	app        = kingpin.New("voicequeue-server", "voicequeue playback server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	listeners  = app.Flag("listeners", "Initial listener count of each simulated voice room").Default("1").Int()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	// start command (default)
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config from %s: %v", *configPath, err)
	}

	if err := logger.Init(logger.NewConfig(*logfile, *verbose, cfg.Log)); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	zlog.Info().Msgf("Config loaded from %s", *configPath)

	// Run server (defer ensures shutdown hook is called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	defer executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	ctx := context.Background()

	// Primary catalog
	var (
		lib      *library.Library
		libCat   catalog.Library
		searcher resolve.Searcher
	)
	if cfg.Library.Path != "" {
		var err error
		lib, err = library.Load(cfg.Library.Path)
		if err != nil {
			return errors.Wrap(err, "failed to load library")
		}
		libCat, searcher = lib, lib
		zlog.Info().Msgf("Library loaded: path=%s tracks=%d", cfg.Library.Path, lib.Len())
	} else {
		zlog.Warn().Msg("Library not configured, alternate tracks cannot be matched")
	}

	// Alternate catalog
	var alternate catalog.Alternate
	if cfg.Spotify.Enabled() {
		spotifyClient, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return errors.Wrap(err, "failed to create Spotify client")
		}
		alternate = spotifyClient
		zlog.Info().Msgf("Spotify enabled: market=%s", cfg.Spotify.Market)
	}

	resolver, err := resolve.NewFromConfig(cfg, searcher)
	if err != nil {
		return errors.Wrap(err, "failed to create resolver")
	}

	filters, err := filter.NewChainFromConfig(cfg.Filters)
	if err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	notifications := notification.NewManager(cfg.Playback.AnnounceTimeout)
	defer notifications.Close()

	gateway := &simGateway{
		sim:           simplayer.NewGateway(playback.WallClock{Resolution: cfg.Playback.TimerResolution}, *listeners),
		notifications: notifications,
		formatter:     notification.NewFormatter(cfg.Messages),
	}

	sessionMgr := session.NewManager(cfg, session.Deps{
		Gateway:  gateway,
		Resolver: resolver,
		Filters:  filters,
	})

	adminService := apiconnect.NewAdminService(
		sessionMgr,
		catalog.New(libCat, alternate),
		notifications,
		gateway,
		cfg,
	)

	mux := http.NewServeMux()
	adminPath, adminHandler := apiconnect.NewAdminServiceHandler(
		adminService,
		connect.WithInterceptors(apiconnect.NewAdminAuthInterceptor(cfg)),
	)
	mux.Handle(adminPath, adminHandler)

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close sessions first so their final announcements reach watchers
	if err := sessionMgr.Close(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to close sessions: %v", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	for _, name := range filter.Names() {
		f, _ := filter.New(name)
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// sh -c allows redirection and pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
