// Command gamecore starts the game session server.
//
// It supports these commands:
//  1. "serve" (default) – runs the HTTP server exposing REST API, WebSocket, and an /mcp HTTP endpoint
//  2. "mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//  3. "validate" – checks every game definition in the config directory
//  4. "version" – prints version information
//
// Flags control host/port, config directory, session persistence, debug
// logging, and optional ngrok tunneling for easy external access during
// development. Every flag defaults to its environment variable (see
// internal/settings), and a .env file is read when present.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/gamecore/api"
	"github.com/wricardo/gamecore/game/config"
	"github.com/wricardo/gamecore/game/service"
	"github.com/wricardo/gamecore/game/session"
	"github.com/wricardo/gamecore/internal/settings"
	"github.com/wricardo/gamecore/transport/mcp"
	"github.com/wricardo/gamecore/transport/websocket"
	"github.com/wricardo/gamecore/validate"
)

// Version information
const (
	Version = "3.0.0"
	AppName = "Game Core Server"
)

// DefaultExternalAPI is where the mcp command looks for a running server
const DefaultExternalAPI = "http://localhost:8080"

func main() {
	s, err := settings.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load settings: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand(s).Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newCommand builds the command tree. Flag defaults come from s.
func newCommand(s *settings.Settings) *cli.Command {
	return &cli.Command{
		Name:    "gamecore",
		Usage:   "Turn-based game session server with REST, WebSocket and MCP interfaces",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: s.Host, Usage: "HTTP server host"},
			&cli.IntFlag{Name: "port", Value: s.Port, Usage: "HTTP server port"},
			&cli.StringFlag{Name: "config-dir", Value: s.ConfigDir, Usage: "Directory containing game definitions"},
			&cli.StringFlag{Name: "persistence", Value: s.Persistence, Usage: "Session storage: file, sqlite or memory"},
			&cli.StringFlag{Name: "sessions-dir", Value: s.SessionsDir, Usage: "Directory for file persistence"},
			&cli.StringFlag{Name: "sqlite-path", Value: s.SQLitePath, Usage: "Database file for sqlite persistence"},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging"},
			&cli.BoolFlag{Name: "ngrok", Value: s.NgrokEnabled, Usage: "Enable ngrok tunnel"},
			&cli.StringFlag{Name: "ngrok-auth", Value: s.NgrokAuthToken, Usage: "Ngrok auth token (or use NGROK_AUTHTOKEN env var)"},
			&cli.StringFlag{Name: "ngrok-domain", Value: s.NgrokDomain, Usage: "Custom ngrok domain (optional)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runServe(ctx, cmd, s)
		},
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"server", "http"},
				Usage:   "Run HTTP server with API, WebSocket, and MCP endpoint",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runServe(ctx, cmd, s)
				},
			},
			{
				Name:    "mcp",
				Aliases: []string{"stdio-mcp", "mcp-stdio"},
				Usage:   "Run MCP stdio server, reusing a running API or starting an internal one",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "api-url", Value: DefaultExternalAPI, Usage: "External API to reuse when reachable"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runStdioMCP(ctx, cmd, s)
				},
			},
			{
				Name:  "validate",
				Usage: "Validate every game definition in the config directory",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runValidate(cmd, s)
				},
			},
			{
				Name:  "version",
				Usage: "Show version information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Fprintf(cmd.Root().Writer, "%s v%s\n", AppName, Version)
					return nil
				},
			},
		},
	}
}

// resolveSettings applies command line flags on top of the environment
func resolveSettings(cmd *cli.Command, base *settings.Settings) (*settings.Settings, error) {
	s := *base
	s.Host = cmd.String("host")
	s.Port = int(cmd.Int("port"))
	s.ConfigDir = cmd.String("config-dir")
	s.Persistence = strings.ToLower(cmd.String("persistence"))
	s.SessionsDir = cmd.String("sessions-dir")
	s.SQLitePath = cmd.String("sqlite-path")
	s.NgrokEnabled = cmd.Bool("ngrok")
	s.NgrokAuthToken = cmd.String("ngrok-auth")
	s.NgrokDomain = cmd.String("ngrok-domain")
	if cmd.Bool("debug") {
		s.LogLevel = "debug"
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// services is the wired application: definitions, sessions, the game
// service and the WebSocket hub that broadcasts its snapshots.
type services struct {
	settings    *settings.Settings
	logger      *slog.Logger
	configs     *config.Manager
	sessions    *session.Manager
	persistence session.SessionPersistence
	closer      io.Closer
	hub         *websocket.Hub
	game        service.GameService
}

// initializeServices wires definitions, session storage, the game service and
// the hub, and restores persisted sessions.
func initializeServices(s *settings.Settings, logger *slog.Logger) (*services, error) {
	configs, err := config.NewManager(s.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	svc := &services{settings: s, logger: logger, configs: configs}

	switch s.Persistence {
	case settings.PersistenceFile:
		fp, err := session.NewFilePersistence(s.SessionsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create session persistence: %w", err)
		}
		svc.persistence = fp
	case settings.PersistenceSQLite:
		sp, err := session.OpenSQLite(s.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open session database: %w", err)
		}
		svc.persistence = sp
		svc.closer = sp
	}

	if svc.persistence != nil {
		svc.sessions = session.NewManagerWithPersistence(configs, svc.persistence, session.WithLogger(logger))
		if err := svc.sessions.LoadPersistedSessions(); err != nil {
			logger.Warn("failed to load persisted sessions", "error", err)
		}
	} else {
		svc.sessions = session.NewManager(configs, session.WithLogger(logger))
	}

	svc.hub = websocket.NewHub(websocket.WithLogger(logger))
	svc.game = service.NewGameService(svc.sessions, configs,
		service.WithPublisher(svc.hub),
		service.WithLogger(logger),
	)
	svc.hub.SetActionSink(svc.game)

	logger.Info("services initialized",
		"config_dir", s.ConfigDir,
		"definitions", configs.Count(),
		"persistence", s.Persistence,
		"sessions", svc.sessions.Count(),
	)
	return svc, nil
}

// Close flushes sessions to storage and releases the database
func (svc *services) Close() error {
	var errs []error
	if svc.persistence != nil {
		if err := svc.sessions.SaveAllSessions(); err != nil {
			errs = append(errs, fmt.Errorf("save sessions: %w", err))
		}
	}
	if svc.closer != nil {
		if err := svc.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}

// handler mounts the REST API, WebSocket and the /mcp endpoint. MCP tool
// calls are proxied to baseURL.
func (svc *services) handler(baseURL string) http.Handler {
	apiServer := api.NewServer(svc.game, svc.hub, api.WithLogger(svc.logger))
	apiServer.Router().Handle("/mcp", mcp.NewClient(baseURL))
	return apiServer
}

// runServe starts the HTTP server with REST API, WebSocket hub, and an /mcp
// proxy endpoint. If ngrok is enabled it also provisions a public tunnel.
// Everything stops when ctx is cancelled.
func runServe(ctx context.Context, cmd *cli.Command, base *settings.Settings) error {
	s, err := resolveSettings(cmd, base)
	if err != nil {
		return err
	}
	logger := s.Logger(cmd.Root().ErrWriter)
	logger.Info("starting", "app", AppName, "version", Version, "mode", "serve")

	svc, err := initializeServices(s, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	addr := s.Addr()
	handler := svc.handler("http://" + addr)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		svc.hub.Run(ctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", addr)
		logger.Info("endpoints",
			"rest", fmt.Sprintf("http://%s/api", addr),
			"websocket", fmt.Sprintf("ws://%s/ws?session=<session_id>", addr),
			"mcp", fmt.Sprintf("http://%s/mcp", addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		return nil
	})

	if s.NgrokEnabled {
		g.Go(func() error {
			serveNgrok(ctx, s, handler, logger)
			return nil
		})
	}

	g.Go(func() error {
		sessionCleanupRoutine(ctx, svc.sessions, s.SessionTTL, s.CleanupInterval, logger)
		return nil
	})

	if svc.persistence != nil {
		g.Go(func() error {
			persistenceSyncRoutine(ctx, svc.sessions, svc.persistence, s.SyncInterval, logger)
			return nil
		})
	}

	err = g.Wait()
	logger.Info("server stopped")
	return err
}

// serveNgrok exposes handler through an ngrok tunnel until ctx is done.
// Tunnel failures are logged; the local server keeps running.
func serveNgrok(ctx context.Context, s *settings.Settings, handler http.Handler, logger *slog.Logger) {
	if s.NgrokAuthToken == "" {
		logger.Warn("ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if s.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(s.NgrokDomain))
		logger.Info("using custom ngrok domain", "domain", s.NgrokDomain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	logger.Info("starting ngrok tunnel")
	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(s.NgrokAuthToken))
	if err != nil {
		logger.Error("failed to start ngrok tunnel", "error", err)
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logger.Error("failed to close ngrok tunnel", "error", err)
		}
	}()

	url := tun.URL()
	logger.Info("ngrok tunnel established",
		"url", url,
		"rest", url+"/api",
		"websocket", url+"/ws?session=<session_id>",
		"mcp", url+"/mcp",
	)

	if err := http.Serve(tun, handler); err != nil && ctx.Err() == nil {
		logger.Error("ngrok server error", "error", err)
	}
	logger.Info("ngrok tunnel closed")
}

// sessionCleanupRoutine periodically removes sessions that have not been
// accessed within ttl.
func sessionCleanupRoutine(ctx context.Context, manager *session.Manager, ttl, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := manager.CleanupExpiredSessions(ttl); removed > 0 {
				logger.Info("cleaned up expired sessions", "count", removed)
			}
		}
	}
}

// persistenceSyncRoutine periodically drops in-memory sessions whose stored
// record was deleted behind the server's back.
func persistenceSyncRoutine(ctx context.Context, manager *session.Manager, persistence session.SessionPersistence, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pruned := pruneOrphanedSessions(manager, persistence, logger); pruned > 0 {
				logger.Info("persistence sync pruned orphaned sessions", "count", pruned)
			}
		}
	}
}

func pruneOrphanedSessions(manager *session.Manager, persistence session.SessionPersistence, logger *slog.Logger) int {
	pruned := 0
	for _, sess := range manager.List() {
		if persistence.Exists(sess.ID) {
			continue
		}
		if err := manager.DeleteFromMemory(sess.ID); err == nil {
			pruned++
			logger.Debug("pruned session from memory", "session", sess.ID)
		}
	}
	return pruned
}

// runStdioMCP runs an MCP stdio server. It reuses the API at --api-url when
// it answers; otherwise it starts an internal HTTP API bound to a random
// loopback port and targets that. Logs go to stderr; stdout carries the
// protocol.
func runStdioMCP(ctx context.Context, cmd *cli.Command, base *settings.Settings) error {
	s, err := resolveSettings(cmd, base)
	if err != nil {
		return err
	}
	logger := s.Logger(cmd.Root().ErrWriter)

	baseURL := strings.TrimRight(cmd.String("api-url"), "/")
	if baseURL != "" && apiReachable(ctx, baseURL) {
		logger.Info("external API server found, using it for MCP", "url", baseURL)
		return mcp.NewClient(baseURL).ServeStdio()
	}

	logger.Info("no external API server found, starting internal HTTP server")
	svc, err := initializeServices(s, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to get available port: %w", err)
	}
	internalURL := "http://" + listener.Addr().String()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go svc.hub.Run(ctx)

	httpServer := &http.Server{Handler: svc.handler(internalURL)}
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("internal HTTP server error", "error", err)
		}
	}()
	defer httpServer.Close()

	logger.Info("MCP stdio server ready", "api", internalURL)
	return mcp.NewClient(internalURL).ServeStdio()
}

// apiReachable reports whether a game server answers at baseURL
func apiReachable(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// runValidate prints a report for every definition and fails if any is invalid
func runValidate(cmd *cli.Command, base *settings.Settings) error {
	s, err := resolveSettings(cmd, base)
	if err != nil {
		return err
	}

	results, err := validate.Dir(s.ConfigDir)
	if err != nil {
		return err
	}

	out := cmd.Root().Writer
	allValid := true
	for _, result := range results {
		fmt.Fprintf(out, "\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Fprintln(out, "✅ VALID")
			for _, info := range result.Info {
				fmt.Fprintln(out, "  "+info)
			}
			continue
		}

		allValid = false
		fmt.Fprintln(out, "❌ INVALID")
		for _, msg := range result.Errors {
			fmt.Fprintln(out, "  ❌ "+msg)
		}
	}

	fmt.Fprintf(out, "\n%s\n", strings.Repeat("=", 40))
	if !allValid {
		fmt.Fprintln(out, "❌ Some configurations have errors")
		return errors.New("invalid game definitions")
	}
	fmt.Fprintf(out, "✅ All %d configurations are valid!\n", len(results))
	return nil
}
