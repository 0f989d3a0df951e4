// clipguardd - clipboard-integrity guard daemon
//
// Watches the system clipboard for cryptocurrency addresses and defends
// against clipboard-hijacking malware: detected addresses are fingerprinted
// immediately, protected for a time-boxed session after the user confirms,
// and silently restored if anything overwrites them while protected.
//
// Confirm/dismiss arrive over the control socket (see clipguardctl) or
// from whatever desktop integration the host provides.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clipguard/internal/clipboard"
	"clipguard/internal/config"
	"clipguard/internal/guard"
	"clipguard/internal/ipc"
	"clipguard/internal/logging"
	"clipguard/internal/notify"
	"clipguard/internal/stats"
)

var (
	configPath = flag.String("config", "", "path to config file")
	dryRun     = flag.Bool("dry-run", false, "use an in-memory clipboard (no OS clipboard access)")
	version    = flag.Bool("version", false, "print version and exit")
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Println("clipguardd", Version)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "clipguardd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()
	logging.SetDefault(log)

	log.Info("starting clipguardd", "version", Version,
		"poll_interval", cfg.Guard.PollInterval(),
		"session_duration", cfg.Guard.SessionDuration())

	// Statistics store.
	var st *stats.Store
	if cfg.Storage.Type == "sqlite" {
		st, err = stats.Open(cfg.Storage.Path, time.Duration(cfg.Storage.BusyTimeoutMs)*time.Millisecond)
		if err != nil {
			return err
		}
	} else {
		st = stats.OpenMemory()
	}
	defer st.Close()

	// Clipboard accessor.
	var clip clipboard.Accessor
	if *dryRun {
		clip = clipboard.NewMemory("")
		log.Warn("dry-run mode: using in-memory clipboard")
	} else {
		if !clipboard.Available() {
			return fmt.Errorf("system clipboard is not available (no display?)")
		}
		clip = clipboard.NewSystem()
	}

	// Guard monitor.
	monitor := guard.New(guard.Config{
		PollInterval:    cfg.Guard.PollInterval(),
		TickInterval:    cfg.Guard.TickInterval(),
		ConfirmTimeout:  cfg.Guard.ConfirmTimeout(),
		SessionDuration: cfg.Guard.SessionDuration(),
	}, clip, nil, st, log)

	// Notification sinks.
	sinks := []notify.Sink{notify.NewLogSink(log)}
	if cfg.Notify.Enabled {
		if desktop, err := notify.NewDesktopSink(cfg.Notify.ShowAddresses); err != nil {
			log.Warn("desktop notifications unavailable", "error", err)
		} else {
			sinks = append(sinks, desktop)
			defer desktop.Close()
		}
	}
	dispatcher := notify.NewDispatcher(log, sinks...)
	dispatcher.Run(monitor.Subscribe())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := monitor.Start(ctx); err != nil {
		return err
	}
	defer monitor.Stop()

	// Control socket.
	if cfg.IPC.Enabled {
		server := ipc.NewServer(ipc.ServerConfig{
			SocketPath: cfg.IPC.SocketPath,
			Timeout:    time.Duration(cfg.IPC.TimeoutSec) * time.Second,
		}, monitor, st, log)
		server.OnShutdown = cancel
		if err := server.Start(); err != nil {
			return err
		}
		defer server.Stop()
	}

	// Config hot reload. The logging level applies live; timing changes
	// need a restart since the monitor is already ticking.
	watcher, err := config.NewWatcher(*configPath)
	if err == nil {
		if err := watcher.Start(); err == nil {
			defer watcher.Stop()
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case newCfg := <-watcher.Reloads():
						if level, err := logging.ParseLevel(newCfg.Logging.Level); err == nil {
							log.SetLevel(level)
						}
						log.Info("configuration reloaded", "level", newCfg.Logging.Level)
					case err := <-watcher.Errors():
						log.Warn("config reload failed", "error", err)
					}
				}
			}()
		}
	}

	// Wait for shutdown.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.Info("shutting down", "signal", s.String())
	case <-ctx.Done():
		log.Info("shutting down", "reason", "control socket request")
	}
	return nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(&logging.Config{
		Level:         level,
		Format:        format,
		Output:        cfg.Logging.Output,
		FilePath:      cfg.Logging.FilePath,
		RedactContent: true,
		Component:     "clipguardd",
	})
}
