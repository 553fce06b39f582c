// main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/ogier/pflag"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Lucifer7355/pdfmerge/config"
	"github.com/Lucifer7355/pdfmerge/delivery"
	"github.com/Lucifer7355/pdfmerge/handlers"
	"github.com/Lucifer7355/pdfmerge/merge"
	"github.com/Lucifer7355/pdfmerge/pdfdoc"
	"github.com/Lucifer7355/pdfmerge/shell"
	"github.com/Lucifer7355/pdfmerge/utils"
	"github.com/Lucifer7355/pdfmerge/workspace"
)

func main() {
	configPath := flag.StringP("config", "c", "", "YAML config file")
	addr := flag.String("addr", "", "listen address, overrides the config")
	interactive := flag.Bool("shell", false, "start the interactive shell instead of the server")
	outDir := flag.StringP("out", "o", ".", "output directory for the shell and for files given as arguments")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("❌ Invalid configuration")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.WithError(err).Fatal("❌ Invalid log level")
	}
	logrus.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := pdfdoc.NewEngine(pdfdoc.Options{Strict: cfg.StrictValidation})

	if *interactive || flag.NArg() > 0 {
		s := shell.NewShellCtxt(ctx, engine, *outDir)
		defer s.Close()
		if flag.NArg() > 0 {
			if err := shell.RunCLI(s, os.Stdout, flag.Args()); err != nil {
				logrus.WithError(err).Error("❌ Merge failed")
				s.Close()
				os.Exit(1)
			}
			return
		}
		shell.Run(s)
		return
	}

	if err := serve(ctx, cfg, engine); err != nil {
		logrus.WithError(err).Fatal("❌ Server stopped")
	}
}

func serve(ctx context.Context, cfg config.Config, engine *pdfdoc.Engine) error {
	var (
		deliverer delivery.Deliverer
		downloads http.Handler
	)
	switch cfg.Delivery {
	case config.DeliveryR2:
		client, err := utils.NewR2Client(cfg.R2, cfg.DownloadTTL.Std())
		if err != nil {
			return err
		}
		deliverer = delivery.NewR2(client, cfg.DownloadTTL.Std())
	default:
		store := delivery.NewStore(delivery.StoreOptions{
			ReleaseDelay: cfg.ReleaseDelay.Std(),
			TTL:          cfg.DownloadTTL.Std(),
		})
		defer store.Close()
		deliverer, downloads = store, store
	}

	registry, err := workspace.NewRegistry(workspace.RegistryOptions{
		SpoolRoot:   cfg.SpoolDir,
		IdleTimeout: cfg.IdleTimeout.Std(),
		Merge: merge.Options{
			Documents: engine,
			Deliverer: deliverer,
			Slots:     semaphore.NewWeighted(cfg.MaxMerges),
		},
	})
	if err != nil {
		return err
	}
	defer registry.Close()
	go registry.Run(ctx)

	tokens, err := workspace.NewTokens(cfg.SessionSecret, 0)
	if err != nil {
		return err
	}

	h := handlers.New(handlers.Options{
		Registry:       registry,
		Tokens:         tokens,
		Downloads:      downloads,
		MaxUploadBytes: cfg.MaxUploadBytes,
		MaxMemoryBytes: cfg.MaxMemoryBytes,
		Context:        ctx,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logrus.WithField("delivery", cfg.Delivery).Infof("PDF merge running on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logrus.Info("✅ Server stopped")
	return nil
}
