package run

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sidkik/orangeshare/cmd/util"
	"github.com/sidkik/orangeshare/pkg/backend"
	"github.com/sidkik/orangeshare/pkg/changeset"
	"github.com/sidkik/orangeshare/pkg/config"
	"github.com/sidkik/orangeshare/pkg/engine"
	"github.com/sidkik/orangeshare/pkg/errors"
	"github.com/sidkik/orangeshare/pkg/listener"

	// Register the backends that folders can use.
	_ "github.com/sidkik/orangeshare/pkg/backend/git"
)

// New creates a new `run` command.
func New() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Keep the configured folders in sync.",
		Long: "Sync every folder in the orangeshare config with its remote.\n" +
			"Local changes are uploaded as soon as they settle, and remote\n" +
			"changes are downloaded when they're announced or polled.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(configPath); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&configPath, "config", config.DefaultPath,
		"The path to the orangeshare config.")
	return cmd
}

func run(configPath string) error {
	cfg, err := config.Parse(configPath)
	if err != nil {
		return errors.WithContext(err, "parse config")
	}

	if len(cfg.Folders) == 0 {
		return errors.NewFriendlyError("No folders are configured in %q.", configPath)
	}

	if cfg.LogFile != "" {
		logFile := util.LogToFile(cfg.LogFile)
		defer logFile.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := listener.NewRegistry(cfg, clockwork.NewRealClock())
	defer registry.Close()

	var engines []*engine.Engine
	defer func() {
		for _, e := range engines {
			if err := e.Close(); err != nil {
				log.WithError(err).WithField("folder", e.Name()).Warn("Failed to close folder")
			}
		}
	}()

	for _, folder := range cfg.Folders {
		e, err := newEngine(cfg, folder, registry)
		if err != nil {
			return errors.WithContext(err, "start folder "+folder.Name)
		}
		engines = append(engines, e)
	}

	if cfg.MetricsAddress != "" {
		go serveMetrics(ctx, cfg.MetricsAddress)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, e := range engines {
		e := e
		group.Go(func() error {
			return e.Initialize(groupCtx)
		})
	}
	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return errors.WithContext(err, "initialize folders")
	}

	log.Infof("Syncing %d folders", len(engines))
	<-ctx.Done()
	log.Info("Shutting down")
	return nil
}

func newEngine(cfg config.Config, folder config.Folder, registry *listener.Registry) (*engine.Engine, error) {
	remoteURL, err := folder.RemoteURL()
	if err != nil {
		return nil, err
	}

	localPath := cfg.FolderPath(folder.Name)
	if err := os.MkdirAll(localPath, 0755); err != nil {
		return nil, errors.WithContext(err, "create folder")
	}

	folderLog := log.WithField("folder", folder.Name)
	b, err := backend.New(folder.Backend, backend.Options{
		LocalPath: localPath,
		RemoteURL: remoteURL,
		User:      changeset.User{Name: cfg.User.Name, Email: cfg.User.Email},
		Log:       folderLog.WithField("backend", folder.Backend),
	})
	if err != nil {
		return nil, errors.WithContext(err, "create backend")
	}

	e, err := engine.New(engine.Options{
		Name:      folder.Name,
		LocalPath: localPath,
		RemoteURL: remoteURL,
		Backend:   b,
		Listeners: registry,
		Log:       folderLog,
	})
	if err != nil {
		return nil, err
	}

	e.AddStatusHandler(func(status engine.Status) {
		folderLog.WithField("status", status).Debug("Sync status changed")
	})
	e.AddChangeSetHandler(func(cs changeset.ChangeSet) {
		folderLog.WithFields(log.Fields{
			"user":     cs.User.String(),
			"revision": cs.Revision,
		}).Infof("New change set (%d added, %d edited, %d deleted)",
			len(cs.Added), len(cs.Edited), len(cs.Deleted))
	})
	e.AddConflictHandler(func() {
		folderLog.Warn("Resolved a conflict")
	})
	return e, nil
}

func serveMetrics(ctx context.Context, address string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: address, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Failed to shut down metrics server")
		}
	}()

	log.WithField("address", address).Info("Serving metrics")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("Metrics server failed")
	}
}
