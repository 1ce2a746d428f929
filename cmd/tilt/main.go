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
	sensitivity := flag.Float64("sensitivity", 0, "raw counts per g (overrides config)")
	csvPath := flag.String("csv", "", "also write readings to this CSV file")
	flag.Parse()

	cfg, err := tiltmeter.LoadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *sensorName != "" {
		cfg.Sensor = *sensorName
	}
	if *sensitivity != 0 {
		cfg.Estimator.Sensitivity = *sensitivity
	}
	if *csvPath != "" {
		cfg.CSVPath = *csvPath
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

	opts := []tiltmeter.Option{
		tiltmeter.WithEstimator(tiltmeter.NewTiltEstimator(cfg.Estimator)),
		tiltmeter.WithPollInterval(cfg.PollInterval),
		tiltmeter.WithSettleDelay(cfg.SettleDelay),
	}

	if cfg.CSVPath != "" {
		f, err := os.Create(cfg.CSVPath)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		cw := tiltmeter.NewCSVWriter(f)
		defer cw.Close()
		opts = append(opts, tiltmeter.WithSinks(cw))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor := tiltmeter.NewMonitor(sensor, console, opts...)
	if err := monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}
