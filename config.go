package tiltmeter

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Sensor backends.
const (
	SensorLSM303AGR = "lsm303agr"
	SensorSerial    = "serial"
	SensorMock      = "mock"
)

// Bus drivers.
const (
	BusPeriph = "periph"
	BusEmbd   = "embd"

	// BusScan as a periph bus name probes every bus for the sensor.
	BusScan = "scan"
)

var odrByHz = map[int]AccelODR{
	1:   ODR1Hz,
	10:  ODR10Hz,
	25:  ODR25Hz,
	50:  ODR50Hz,
	100: ODR100Hz,
	200: ODR200Hz,
	400: ODR400Hz,
}

type BusConfig struct {
	Driver string `yaml:"driver"`
	// Name selects the periph bus ("" is the first available).
	Name string `yaml:"name"`
	// Number selects the embd bus.
	Number int    `yaml:"number"`
	Addr   uint16 `yaml:"addr"`
}

type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type Config struct {
	Sensor    string          `yaml:"sensor"`
	Bus       BusConfig       `yaml:"bus"`
	Serial    SerialConfig    `yaml:"serial"`
	Console   SerialConfig    `yaml:"console"`
	Estimator EstimatorConfig `yaml:"estimator"`
	Filter    bool            `yaml:"filter"`
	ODRHz     int             `yaml:"odr_hz"`

	PollInterval time.Duration `yaml:"poll_interval"`
	SettleDelay  time.Duration `yaml:"settle_delay"`

	CSVPath   string `yaml:"csv_path"`
	DBPath    string `yaml:"db_path"`
	Listen    string `yaml:"listen"`
	StaticDir string `yaml:"static_dir"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

func DefaultConfig() Config {
	return Config{
		Sensor: SensorLSM303AGR,
		Bus: BusConfig{
			Driver: BusPeriph,
			Number: 1,
			Addr:   lsm303agrAccelAddr,
		},
		Serial:       SerialConfig{Baud: 115200},
		Console:      SerialConfig{Baud: 115200},
		Estimator:    DefaultEstimatorConfig(),
		ODRHz:        50,
		PollInterval: 100 * time.Millisecond,
		SettleDelay:  time.Second,
		Listen:       ":8080",
		StaticDir:    "static",
		LogLevel:     "info",
	}
}

// LoadConfig reads path over the defaults. An empty path returns the
// defaults. The result is not validated so that callers can apply flag
// overrides first; call Validate afterwards.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: could not read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: could not parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	switch c.Sensor {
	case SensorLSM303AGR:
		if c.Bus.Driver != BusPeriph && c.Bus.Driver != BusEmbd {
			errs = append(errs, fmt.Errorf("unknown bus driver %q", c.Bus.Driver))
		}
		if _, ok := odrByHz[c.ODRHz]; !ok {
			errs = append(errs, fmt.Errorf("unsupported data rate %d Hz", c.ODRHz))
		}
	case SensorSerial:
		if c.Serial.Port == "" {
			errs = append(errs, errors.New("serial sensor needs a port"))
		}
	case SensorMock:
	default:
		errs = append(errs, fmt.Errorf("unknown sensor %q", c.Sensor))
	}

	e := c.Estimator
	if e.Sensitivity <= 0 {
		errs = append(errs, fmt.Errorf("sensitivity must be positive, got %v", e.Sensitivity))
	}
	if e.FilterWeight <= 0 || e.FilterWeight > 1 {
		errs = append(errs, fmt.Errorf("filter weight must be in (0, 1], got %v", e.FilterWeight))
	}
	if e.ClampLimit <= 0 || e.ClampLimit > 1 {
		errs = append(errs, fmt.Errorf("clamp limit must be in (0, 1], got %v", e.ClampLimit))
	}
	if e.Seed <= 0 || e.Seed > e.ClampLimit {
		errs = append(errs, fmt.Errorf("seed must be in (0, clamp limit], got %v", e.Seed))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// OpenSensor builds the configured sensor. The returned closer releases the
// underlying bus or port.
func OpenSensor(c Config) (Sensor, io.Closer, error) {
	switch c.Sensor {
	case SensorMock:
		s := NewMockSensor()
		s.G = c.Estimator.Sensitivity
		return s, s, nil

	case SensorSerial:
		s, err := OpenSerialSensor(c.Serial.Port, c.Serial.Baud)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil

	case SensorLSM303AGR:
		var (
			d   *LSM303AGR
			bus Bus
			err error
		)
		if c.Bus.Driver == BusPeriph && c.Bus.Name == BusScan {
			d, bus, err = scanLSM303AGR(c.Bus.Addr)
		} else {
			bus, err = openBus(c.Bus)
			if err == nil {
				if d, err = NewLSM303AGR(bus); err != nil {
					bus.Close()
				}
			}
		}
		if err != nil {
			return nil, nil, err
		}
		if err := d.Init(); err != nil {
			bus.Close()
			return nil, nil, err
		}
		if err := d.SetOutputDataRate(odrByHz[c.ODRHz]); err != nil {
			bus.Close()
			return nil, nil, err
		}
		return d, d, nil
	}

	return nil, nil, fmt.Errorf("config: unknown sensor %q", c.Sensor)
}

// scanLSM303AGR tries every periph I2C bus until one answers with the
// accelerometer ID.
func scanLSM303AGR(addr uint16) (*LSM303AGR, Bus, error) {
	names, err := I2CBuses()
	if err != nil {
		return nil, nil, err
	}

	lastErr := errors.New("no I2C buses found")
	for _, name := range names {
		bus, err := OpenPeriphBus(name, addr)
		if err != nil {
			lastErr = err
			continue
		}
		d, err := NewLSM303AGR(bus)
		if err != nil {
			bus.Close()
			lastErr = err
			continue
		}
		logrus.WithField("bus", name).Info("Found LSM303AGR")
		return d, bus, nil
	}

	return nil, nil, fmt.Errorf("lsm303agr: not found on any bus: %w", lastErr)
}

func openBus(c BusConfig) (Bus, error) {
	switch c.Driver {
	case BusEmbd:
		return OpenEmbdBus(byte(c.Number), byte(c.Addr))
	case BusPeriph, "":
		return OpenPeriphBus(c.Name, c.Addr)
	}
	return nil, fmt.Errorf("config: unknown bus driver %q", c.Driver)
}

// OpenConsole returns a serial console when a port is configured and a
// stdout console otherwise.
func OpenConsole(c Config) (*TextConsole, error) {
	if c.Console.Port == "" {
		return NewTextConsole(os.Stdout), nil
	}
	return OpenSerialConsole(c.Console.Port, c.Console.Baud)
}

// SetupLogging applies the log level and format to the standard logger.
func SetupLogging(c Config) error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logrus.SetLevel(level)
	if c.LogJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	// Keep stdout for the console lines.
	logrus.SetOutput(os.Stderr)
	return nil
}
