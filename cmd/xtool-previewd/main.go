// Command xtool-previewd serves a live MJPEG/WebSocket preview of a
// connected iOS device's screen, plus a build-status channel a companion
// build tool can push updates to.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/HandleConsolidated/xtool/internal/capture"
	"github.com/HandleConsolidated/xtool/internal/config"
	"github.com/HandleConsolidated/xtool/internal/jpegenc"
	"github.com/HandleConsolidated/xtool/internal/producer"
	"github.com/HandleConsolidated/xtool/internal/server"
	"github.com/HandleConsolidated/xtool/internal/status"
	"github.com/HandleConsolidated/xtool/internal/watcher"
)

// Version is set via -ldflags at release build time.
var Version = "dev"

func main() {
	addr := flag.String("addr", "", fmt.Sprintf("HTTP server address (default 0.0.0.0:%d)", config.DefaultPort))
	configPath := flag.String("config", "", "Path to a TOML config file")
	udid := flag.String("udid", "", "Target device UDID (empty selects whichever device the capture tool finds)")
	productID := flag.String("product-id", "", "Device product identifier (e.g. iPhone15,2), used to pick a viewer skin")
	deviceName := flag.String("device-name", "iOS Device", "Device name shown in the viewer page")
	watchDir := flag.String("watch", "", "Source directory to poll for changes (disabled if empty)")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("xtool-previewd version %s\n", Version)
		os.Exit(0)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	listenAddr := *addr
	if listenAddr == "" {
		listenAddr = fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	}

	backend := capture.NewSubprocessBackend(cfg.Tool(), *udid, logger)
	encoder := jpegenc.New(nil)
	p := producer.New(backend, encoder, cfg.FPS, cfg.JPEGQuality, logger)

	broadcaster := status.New()

	device := server.DeviceInfo{
		Name:      *deviceName,
		UDID:      *udid,
		ProductID: *productID,
	}
	srv := server.New(listenAddr, p, broadcaster, device, cfg.FPS, logger)

	if err := run(logger, p, srv, broadcaster, *watchDir); err != nil {
		logger.Fatal("xtool-previewd exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger, p *producer.Producer, srv *server.Server, broadcaster *status.Broadcaster, watchDir string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("failed to start capture backend: %w", err)
	}
	defer p.Stop() //nolint:errcheck

	var w *watcher.Watcher
	if watchDir != "" {
		w = watcher.New(watchDir, func() {
			broadcaster.Update(status.StatusBuilding, "source change detected, rebuilding")
		})
		w.Start()
		defer w.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Run(ctx); err != nil {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	logger.Info("xtool-previewd started")

	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
		cancel()
	case err := <-errCh:
		return err
	}

	logger.Info("xtool-previewd stopped")
	return nil
}
