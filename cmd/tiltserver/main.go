package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"tiltmeter"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	sensorName := flag.String("sensor", "", "sensor backend: lsm303agr, serial or mock")
	listen := flag.String("listen", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	filter := flag.Bool("filter", false, "smooth x and report the tilt angle")
	flag.Parse()

	cfg, err := tiltmeter.LoadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *sensorName != "" {
		cfg.Sensor = *sensorName
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *filter {
		cfg.Filter = true
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "readings.db"
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	if err := tiltmeter.SetupLogging(cfg); err != nil {
		log.Fatal(err)
	}

	sensor, closer, err := tiltmeter.OpenSensor(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closer.Close()

	console, err := tiltmeter.OpenConsole(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer console.Close()

	recorder, err := tiltmeter.NewRecorder(cfg.DBPath, 1000)
	if err != nil {
		log.Fatal(err)
	}
	defer recorder.Close()

	ws := tiltmeter.NewWebSocketServer()
	sinks := []tiltmeter.ReadingSink{recorder, ws}

	if cfg.CSVPath != "" {
		f, err := os.Create(cfg.CSVPath)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		cw := tiltmeter.NewCSVWriter(f)
		defer cw.Close()
		sinks = append(sinks, cw)
	}

	var opts []tiltmeter.Option
	opts = append(opts,
		tiltmeter.WithSinks(sinks...),
		tiltmeter.WithPollInterval(cfg.PollInterval),
		tiltmeter.WithSettleDelay(cfg.SettleDelay),
	)
	if cfg.Filter {
		opts = append(opts, tiltmeter.WithEstimator(tiltmeter.NewTiltEstimator(cfg.Estimator)))
	}
	monitor := tiltmeter.NewMonitor(sensor, console, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go ws.Run(ctx)

	server := tiltmeter.NewServer(monitor, ws, recorder, cfg.StaticDir)
	go func() {
		if err := server.ListenAndServe(ctx, cfg.Listen); err != nil {
			log.WithError(err).Error("HTTP server error")
			stop()
		}
	}()

	if err := monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("Monitor stopped")
	}
}
