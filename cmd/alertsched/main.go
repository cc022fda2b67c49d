// Command alertsched bootstraps the alert scheduler as a standalone
// process: load config, stand up logging and storage, initialize the
// scheduler from persisted state, and run until signaled.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	logx "alertsched/pkg/logx"

	"alertsched/internal/clock"
	"alertsched/internal/config"
	"alertsched/internal/notify/telegram"
	"alertsched/internal/observer"
	"alertsched/internal/renderer"
	"alertsched/internal/runtime/supervisor"
	"alertsched/internal/scheduler"
	"alertsched/internal/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./alertsched.yaml", "path to config file (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var sender logx.Sender
	var notifier *telegram.Notifier
	if cfg.Notify != nil && cfg.Notify.Telegram != nil {
		notifier, err = newTelegramNotifier(*cfg.Notify.Telegram, logx.Nop())
		if err != nil {
			return fmt.Errorf("telegram notifier: %w", err)
		}
		sender = notifier
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}, sender)
	defer logSvc.Close()
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	if cfg.Notify != nil && cfg.Notify.Telegram != nil && cfg.Notify.Telegram.ChatID != 0 {
		logSvc.SetTelegramTarget(cfg.Notify.Telegram.ChatID, cfg.Notify.Telegram.ThreadID)
	}

	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	sup := supervisor.NewSupervisor(ctx, supervisor.WithLogger(log), supervisor.WithCancelOnError(true))

	pastDue, err := config.ParseDurationOrDefault("scheduler.past_due_tolerance", cfg.Scheduler.PastDueTolerance, 30*time.Second)
	if err != nil {
		return fmt.Errorf("scheduler config: %w", err)
	}

	sched := scheduler.New(scheduler.Config{
		PastDueTolerance: pastDue,
		ReconcileSpec:    cfg.Scheduler.ReconcileSpec,
	}, scheduler.Deps{
		Clock:    clock.System{},
		Store:    store,
		Renderer: renderer.NopRenderer{},
		Log:      log.With(logx.String("comp", "scheduler")),
		Sup:      sup,
	})

	var obs observer.Observer = observer.Nop{}
	if notifier != nil {
		obs = notifier
	}
	if err := sched.Initialize(ctx, obs); err != nil {
		return fmt.Errorf("initialize scheduler: %w", err)
	}
	sched.ApplyConfig(scheduler.Config{PastDueTolerance: pastDue, ReconcileSpec: cfg.Scheduler.ReconcileSpec})

	sub := cfgm.Subscribe(4)
	sup.Go0("config.reload", func(c context.Context) {
		defer cfgm.Unsubscribe(sub)
		last := cfg
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				applyConfigChange(log, sched, logSvc, last, newCfg)
				last = newCfg
			}
		}
	})
	sup.Go("config.watch", func(c context.Context) error {
		return cfgm.Watch(c)
	})

	log.Info("alertsched started", logx.String("config", cfgPath))
	<-ctx.Done()

	log.Info("stopping")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := sched.Shutdown(stopCtx); err != nil {
		log.Warn("scheduler shutdown did not complete cleanly", logx.Any("err", err))
	}
	sup.Cancel()
	_ = sup.Wait(stopCtx)
	log.Info("stopped")
	return nil
}

func newTelegramNotifier(cfg config.NotifyTelegramConfig, log logx.Logger) (*telegram.Notifier, error) {
	pollTimeout, err := config.ParseDurationOrDefault("notify.telegram.poll_timeout", cfg.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	return telegram.New(telegram.Config{
		Token:       cfg.Token,
		ChatID:      cfg.ChatID,
		ThreadID:    cfg.ThreadID,
		PollTimeout: pollTimeout,
	}, log)
}

func applyConfigChange(log logx.Logger, sched *scheduler.Scheduler, logSvc *logx.Service, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) > 0 {
		log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
	} else {
		log.Debug("config reload received, but no effective changes detected")
	}

	logSvc.Apply(logx.Config{
		Level:   newCfg.Logging.Level,
		Console: newCfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: newCfg.Logging.File.Enabled,
			Path:    newCfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    newCfg.Logging.Telegram.Enabled,
			ThreadID:   newCfg.Logging.Telegram.ThreadID,
			MinLevel:   newCfg.Logging.Telegram.MinLevel,
			RatePerSec: newCfg.Logging.Telegram.RatePerSec,
		},
	})

	pastDue, err := config.ParseDurationOrDefault("scheduler.past_due_tolerance", newCfg.Scheduler.PastDueTolerance, 30*time.Second)
	if err != nil {
		log.Warn("invalid scheduler.past_due_tolerance on reload; keeping previous value", logx.Any("err", err))
		return
	}
	sched.ApplyConfig(scheduler.Config{PastDueTolerance: pastDue, ReconcileSpec: newCfg.Scheduler.ReconcileSpec})
}
