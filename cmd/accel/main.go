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
	flag.Parse()

	cfg, err := tiltmeter.LoadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *sensorName != "" {
		cfg.Sensor = *sensorName
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor := tiltmeter.NewMonitor(sensor, console,
		tiltmeter.WithPollInterval(cfg.PollInterval),
		tiltmeter.WithSettleDelay(cfg.SettleDelay),
	)
	if err := monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}
