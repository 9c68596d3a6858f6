package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/myaccess/kiosk-console/internal/api"
	"github.com/myaccess/kiosk-console/internal/config"
	"github.com/myaccess/kiosk-console/internal/logging"
	"github.com/myaccess/kiosk-console/internal/session"
	"github.com/myaccess/kiosk-console/internal/storage"
	"github.com/myaccess/kiosk-console/internal/transport"
	"github.com/myaccess/kiosk-console/internal/web"
	"go.uber.org/zap"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	configPath := flag.String("config", filepath.Join(filepath.Dir(exePath), "kiosk-console.yaml"), "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode(log, run(cfg, log, *configPath)))
}

// exitCode logs how the server stopped and flushes the logger, which
// os.Exit would otherwise skip.
func exitCode(log *zap.Logger, err error) int {
	defer log.Sync()
	if err != nil {
		log.Error("server stopped", zap.Error(err))
		return 1
	}
	log.Info("server stopped")
	return 0
}

func run(cfg *config.AppConfig, log *zap.Logger, configPath string) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	opts := session.Options{
		DeviceURL: cfg.Device.WebSocketURL,
		Transport: transport.Settings{
			WriteTimeout:     time.Duration(cfg.Device.WriteTimeoutSeconds) * time.Second,
			ReconnectTimeout: time.Duration(cfg.Device.ReconnectSeconds) * time.Second,
			HandshakeTimeout: transport.DefaultSettings().HandshakeTimeout,
			BinaryFrames:     cfg.Device.BinaryFrames,
		},
		Logger: log.Named("session"),
	}

	switch cfg.Storage.Backend {
	case config.BackendDuckDB:
		duck, err := storage.NewDuckStore(cfg.Storage.DuckDBFile, cfg.Storage.SnapshotLimit, log.Named("duckdb"))
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer duck.Close()
		opts.Store = duck
		opts.Snapshots = duck
	default:
		local, err := storage.NewLocalStore(cfg.ConfigDirectory())
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		opts.Store = local
	}

	sessions := session.NewManager(opts)
	defer sessions.CloseAll()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Background dashboard cleanup
	go func() {
		timeout := time.Duration(cfg.Server.SessionTimeoutMinutes) * time.Minute
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sessions.CleanupOldSessions(timeout)
			}
		}
	}()

	h := api.NewHandler(sessions, log.Named("api"), Version)
	wsh := api.NewWebSocketHandler(h)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	var origins []string
	if cfg.Server.EnableCORS {
		for _, o := range strings.Split(cfg.Server.AllowOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) == 0 {
			origins = []string{"*"}
		}
	}
	api.SetupMiddleware(e, log.Named("http"), api.MiddlewareOptions{
		BodyLimit:      cfg.Server.BodyLimit,
		RequestTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		AllowOrigins:   origins,
		RequestLogging: cfg.Log.EnableRequestLogging,
	})
	api.RegisterRoutes(e, h, wsh)

	embedded := web.HasEmbeddedFiles()
	if embedded {
		if err := web.RegisterStaticRoutes(e); err != nil {
			log.Warn("failed to register static routes", zap.Error(err))
		}
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	log.Info("kiosk console starting",
		zap.String("version", Version),
		zap.String("buildTime", BuildTime),
		zap.String("config", configPath),
		zap.String("listen", cfg.GetServerAddr()),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("dataDir", cfg.Storage.DataDirectory),
		zap.String("device", logging.RedactToken(cfg.Device.WebSocketURL)),
		zap.Bool("embeddedFrontend", embedded),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
