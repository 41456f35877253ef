package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Supply   SupplyConfig   `yaml:"supply"`
	Sampling SamplingConfig `yaml:"sampling"`
	Mock     MockConfig     `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"` // 0 blocks indefinitely on reads
}

// SupplyConfig contains power supply parameters.
type SupplyConfig struct {
	RatedPower float64 `yaml:"rated_power"` // Nominal output power (W)
}

// SamplingConfig contains measurement sampling parameters.
type SamplingConfig struct {
	Period time.Duration `yaml:"period"` // Time between measurement triples
	Output string        `yaml:"output"` // CSV file written on stop
}

// MockConfig contains mock device configuration.
type MockConfig struct {
	LoadResistance float64 `yaml:"load_resistance"` // Simulated load across the output (Ohm)
	Noise          float64 `yaml:"noise"`           // Measurement ripple as a fraction of the reading
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:        "/dev/ttyACM0", // Default for Linux, should be "COM3" style on Windows
			Baud:        115200,
			ReadTimeout: 2 * time.Second,
		},
		Supply: SupplyConfig{
			RatedPower: 1080, // 2260B-30-108
		},
		Sampling: SamplingConfig{
			Period: 50 * time.Millisecond, // 20 samples per second
			Output: "PS_data.csv",
		},
		Mock: MockConfig{
			LoadResistance: 8.0,
			Noise:          0.001,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Ensure minimum required fields are set (use defaults if missing)
	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
// ReadTimeout and Noise are left alone: zero is a valid setting for both.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Serial.Baud
	}

	if c.Supply.RatedPower == 0 {
		c.Supply.RatedPower = def.Supply.RatedPower
	}

	if c.Sampling.Period == 0 {
		c.Sampling.Period = def.Sampling.Period
	}
	if c.Sampling.Output == "" {
		c.Sampling.Output = def.Sampling.Output
	}

	if c.Mock.LoadResistance == 0 {
		c.Mock.LoadResistance = def.Mock.LoadResistance
	}
}
