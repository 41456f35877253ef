package main

import (
	"flag"
	"fmt"

	"github.com/itohio/gopsu/pkg/config"
	"github.com/itohio/gopsu/pkg/psu"
	"github.com/itohio/gopsu/pkg/sampler"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		portFlag   = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag = flag.String("config", "gopsu.yaml", "Configuration file path")
		mockFlag   = flag.Bool("mock", false, "Use mocked device instead of serial port")
		powerFlag  = flag.Float64("power", 0, "Rated output power override (W)")
	)
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Override serial port if provided via command line
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}

	// Override rated power if provided via command line
	if *powerFlag > 0 {
		cfg.Supply.RatedPower = *powerFlag
	}

	sess, err := connect(cfg, *mockFlag)
	if err != nil {
		if *mockFlag {
			logrus.Fatalf("Failed to connect to mocked device: %v", err)
		}
		logrus.Fatalf("Failed to connect to %s: %v", cfg.Serial.Port, err)
	}
	defer sess.Close()

	if *mockFlag {
		fmt.Println("Connected to mocked device")
	} else {
		fmt.Printf("Connected to serial port: %s\n", cfg.Serial.Port)
	}
	fmt.Println()
	fmt.Print(sess.Describe())

	smp := sampler.New(sess, cfg.Sampling.Period, cfg.Sampling.Output)

	newConsole(sess, smp, cfg.Sampling.Output).run()
}

// connect establishes the device session, either against the in-process mock
// or over the configured serial port.
func connect(cfg *config.Config, useMock bool) (*psu.Session, error) {
	if useMock {
		return psu.New(psu.NewMock(&cfg.Mock), cfg.Supply.RatedPower)
	}
	return psu.Open(cfg.Serial.Port, cfg.Serial.Baud, cfg.Supply.RatedPower, cfg.Serial.ReadTimeout)
}
