package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/alecthomas/kingpin.v2"
	"tinygo.org/x/drivers"

	"switchcontrol/bus"
	"switchcontrol/services/bridge"
	"switchcontrol/services/config"
	"switchcontrol/services/control"
	"switchcontrol/services/hal"
	"switchcontrol/services/heartbeat"
	"switchcontrol/services/scheduler"
	"switchcontrol/services/web"
	"switchcontrol/x/logx"
)

const appName = "switchcontrol"

var version = "dev"

func main() {
	var (
		configFile  = kingpin.Flag("config.file", "Path to the YAML config file.").Default("/etc/switchcontrol/switchcontrol.yaml").OverrideDefaultFromEnvar("SWITCHCONTROL_CONFIG").String()
		profile     = kingpin.Flag("config.profile", "Built-in config profile the file is merged over (default, sim).").Default(config.DefaultProfile).OverrideDefaultFromEnvar("SWITCHCONTROL_PROFILE").String()
		listenAddr  = kingpin.Flag("web.listen-address", "Address of the HTTP API; overrides http.listen.").OverrideDefaultFromEnvar("SWITCHCONTROL_LISTEN").String()
		storagePath = kingpin.Flag("storage.path", "Channel config database; overrides storage.path.").OverrideDefaultFromEnvar("SWITCHCONTROL_STORAGE").String()
		logLevel    = kingpin.Flag("log.level", "Log level; overrides log.level.").OverrideDefaultFromEnvar("SWITCHCONTROL_LOG_LEVEL").String()
		hardware    = kingpin.Flag("hardware", "Hardware backend; overrides hardware.backend.").OverrideDefaultFromEnvar("SWITCHCONTROL_HARDWARE").String()
		busDebug    = kingpin.Flag("debug.bus", "Log every message on the internal bus.").Bool()
	)
	kingpin.Version(version)
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	cfg, err := config.Load(*profile, *configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	cfg.HTTP.Listen = cmp.Or(*listenAddr, cfg.HTTP.Listen)
	cfg.Storage.Path = cmp.Or(*storagePath, cfg.Storage.Path)
	cfg.Log.Level = cmp.Or(*logLevel, cfg.Log.Level)
	cfg.Hardware.Backend = cmp.Or(*hardware, cfg.Hardware.Backend)

	log, closeLog, err := logx.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "log:", err)
		os.Exit(2)
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *busDebug); err != nil {
		log.Error("exiting", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.App, log *slog.Logger, busDebug bool) error {
	log.Info("starting", "app", appName, "version", version, "hardware", cfg.Hardware.Backend)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := bus.NewBus(16)
	if busDebug {
		mon := b.NewConnection("monitor").Subscribe(bus.T(bus.AnyRest))
		go func() {
			for m := range mon.Channel() {
				log.Debug("bus", "topic", m.Topic.String(), "retained", m.Retained)
			}
		}()
	}

	board, err := hal.Open(cfg.Hardware.Backend, hal.Options{I2C: cfg.Hardware.I2C, MaxPin: cfg.Hardware.MaxPin})
	if err != nil {
		return fmt.Errorf("open hardware: %w", err)
	}
	defer board.Close()

	store, err := config.OpenStore(cfg.Storage.Path, log)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctlConn := b.NewConnection("control")
	ctl := control.New(hal.NewRegistry(board), control.Options{
		Cooldown:   cfg.Control.Cooldown,
		Settle:     cfg.Control.Settle,
		ButtonPull: hal.ParsePull(cfg.Hardware.ButtonPull),
		Logger:     log,
		Metrics:    control.NewMetrics(reg),
		Bus:        ctlConn,
	})
	defer ctl.Close()
	for _, ch := range store.Channels() {
		ctl.AddNewChannel(ch)
	}

	sched := scheduler.New(ctl, log)
	for _, e := range cfg.Schedules {
		if err := sched.Add(e); err != nil {
			return fmt.Errorf("schedule %s: %w", e.Name, err)
		}
	}

	var i2c drivers.I2C
	if bus0, ok := board.ByID("i2c0"); ok {
		i2c = bus0
	}
	api := web.New(ctl, store, web.Options{
		Logger:   log,
		Gatherer: reg,
		I2C:      i2c,
		Name:     appName,
		Version:  version,
	})

	var wg sync.WaitGroup
	goRun := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	goRun(func() { ctl.Run(ctx, cfg.Control.TickInterval) })
	goRun(func() { bridge.New(b.NewConnection("bridge"), ctl, bridge.Options{Logger: log}).Run(ctx) })
	if err := heartbeat.New(log, nil).Start(ctx, b.NewConnection("heartbeat")); err != nil {
		return err
	}
	config.NewService(cfg, log).Start(ctx, b.NewConnection("config"))
	sched.Start()
	defer sched.Stop()

	httpErr := make(chan error, 1)
	goRun(func() { httpErr <- api.ListenAndServe(ctx, cfg.HTTP.Listen) })

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("systemd notify failed", "err", err)
	} else if ok {
		log.Debug("systemd notified ready")
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-httpErr:
		if err != nil {
			log.Error("http server stopped", "err", err)
		}
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	cancel()
	wg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
