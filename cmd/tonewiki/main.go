package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tonewiki/internal/config"
	"tonewiki/internal/keymap"
	"tonewiki/internal/library"
	"tonewiki/internal/player"
	"tonewiki/internal/server"
	"tonewiki/internal/store"
	"tonewiki/internal/surface"
	"tonewiki/internal/tunnel"
	"tonewiki/pkg/models"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := "./config.toml"

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}
	configureLogger(logger, &cfg.Logging)

	if _, err := os.Stat(cfg.Library.Path); os.IsNotExist(err) {
		logger.WithField("library_path", cfg.Library.Path).Fatal("Media directory does not exist. Please create it and add your media files.")
	}

	st, err := store.NewStore(cfg.State.Path, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing state store")
	}
	defer st.Close()

	engine := player.NewEngine(logger)
	engine.SetVolume(cfg.Player.DefaultVolume)
	restoreState(engine, st, logger)

	adapter := surface.NewAdapter(engine, webSurfaceFactory, logger)
	adapter.Start()
	defer adapter.Stop()

	keys := keymap.NewHandler(engine, adapter)

	lib := library.New(cfg.Library.Path, logger)
	if cfg.Library.ScanOnStartup {
		if err := lib.Scan(); err != nil {
			logger.WithError(err).Fatal("Error scanning media library")
		}
		if lib.Index().Size() == 0 {
			logger.WithField("supported_formats", models.SupportedFormats).Warn("No supported media files found in library directory")
		}
	}
	if cfg.Library.WatchForChanges {
		if err := lib.Watch(); err != nil {
			logger.WithError(err).Warn("Could not start file watcher")
		}
	}
	defer lib.Close()

	persistOnChange(engine, st, cfg.Player.PersistDebounceMS, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tun, err := tunnel.NewService(&cfg.Tunnel, logger)
	if err != nil {
		logger.WithError(err).Warn("Tunnel not available")
	}
	if tun != nil {
		if err := tun.StartTunnel(ctx, "http://"+cfg.GetAddress()); err != nil {
			logger.WithError(err).Warn("Could not start tunnel")
		} else {
			defer tun.Stop()
		}
	}

	srv := server.NewServer(cfg, logger, engine, adapter, keys, lib)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		logger.Info("Received shutdown signal")
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	// Final save so the last queue edits survive the debounce window.
	if err := st.Save(engine.Persisted()); err != nil {
		logger.WithError(err).Warn("Could not save final player state")
	}
	logger.Info("Shutdown complete")
}

// configureLogger applies the logging section of the config.
func configureLogger(logger *logrus.Logger, cfg *config.LoggingConfig) {
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if cfg.File != "" {
		if f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			logger.SetOutput(f)
		} else {
			logger.WithError(err).Warn("Could not open log file, using stderr")
		}
	}
}

// restoreState overlays the previously saved durable state onto a fresh
// engine. A missing or unreadable save just means starting from defaults.
func restoreState(engine *player.Engine, st *store.Store, logger *logrus.Logger) {
	ps, err := st.Load()
	if err != nil {
		logger.WithError(err).Warn("Could not load saved player state")
		return
	}
	if ps == nil {
		return
	}
	engine.ApplyPersisted(ps)
	logger.WithFields(logrus.Fields{
		"playlist": len(ps.Playlist),
		"volume":   ps.Volume,
	}).Info("Restored player state")
}

// persistOnChange saves the durable state subset whenever it changes,
// debounced so volume drags and queue edits batch into one write.
func persistOnChange(engine *player.Engine, st *store.Store, debounceMS int, logger *logrus.Logger) {
	ch := engine.Subscribe()
	debounce := time.Duration(debounceMS) * time.Millisecond

	go func() {
		var timer *time.Timer
		var timerC <-chan time.Time

		for {
			select {
			case _, ok := <-ch:
				if !ok {
					return
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
					timerC = timer.C
				} else {
					if !timer.Stop() {
						select {
						case <-timerC:
						default:
						}
					}
					timer.Reset(debounce)
				}

			case <-timerC:
				timer = nil
				timerC = nil
				if err := st.Save(engine.Persisted()); err != nil {
					logger.WithError(err).Warn("Could not save player state")
				}
			}
		}
	}()
}

// webSurfaceFactory builds the default surface implementation. The server
// API is the real control plane; surfaces on the host side are modeled as
// position trackers the adapter keeps reconciled, with actual decode and
// output living in the connected client.
func webSurfaceFactory(mediaType models.MediaType) surface.Surface {
	return &trackedSurface{}
}

// trackedSurface mirrors the adapter's commands into a local position
// model so drift reconciliation and stale-event checks have a position to
// compare against even before a client reports one.
type trackedSurface struct {
	url       string
	position  float64
	playing   bool
	volume    float64
	updatedAt time.Time
}

func (ts *trackedSurface) Load(url string) {
	ts.url = url
	ts.position = 0
	ts.playing = false
	ts.updatedAt = time.Now()
}

func (ts *trackedSurface) Play() error {
	ts.advance()
	ts.playing = true
	return nil
}

func (ts *trackedSurface) Pause() {
	ts.advance()
	ts.playing = false
}

func (ts *trackedSurface) Seek(seconds float64) {
	ts.position = seconds
	ts.updatedAt = time.Now()
}

func (ts *trackedSurface) SetVolume(volume float64) {
	ts.volume = volume
}

func (ts *trackedSurface) Position() float64 {
	ts.advance()
	return ts.position
}

// advance extrapolates the position from wall time while playing.
func (ts *trackedSurface) advance() {
	now := time.Now()
	if ts.playing {
		ts.position += now.Sub(ts.updatedAt).Seconds()
	}
	ts.updatedAt = now
}
