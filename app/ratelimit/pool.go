package ratelimit

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/varkas/cratedigger/app/database"
)

// DeviceConfig describes one entry of the device pool file. Proxy and
// cookies are what actually change the egress identity when the harvester
// rotates; both are optional.
type DeviceConfig struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Proxy   string `yaml:"proxy"`
	Cookies string `yaml:"cookies"`
}

// PoolConfig is the parsed device pool file.
type PoolConfig struct {
	Devices []DeviceConfig `yaml:"devices"`
}

// Get returns the configuration for a device ID, or nil if absent.
func (p *PoolConfig) Get(deviceID string) *DeviceConfig {
	for i := range p.Devices {
		if p.Devices[i].ID == deviceID {
			return &p.Devices[i]
		}
	}
	return nil
}

// LoadDevicePool parses and validates the device pool file. A missing file
// yields a single implicit local device so the harvester can run without
// any rotation setup.
func LoadDevicePool(path string) (*PoolConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		hostname, _ := os.Hostname()
		if hostname == "" {
			hostname = "local"
		}
		return &PoolConfig{Devices: []DeviceConfig{{ID: hostname, Name: hostname, Kind: "desktop"}}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read device pool file: %w", err)
	}

	var pool PoolConfig
	if err := yaml.Unmarshal(data, &pool); err != nil {
		return nil, fmt.Errorf("failed to parse device pool YAML: %w", err)
	}

	if err := validatePool(&pool); err != nil {
		return nil, fmt.Errorf("invalid device pool %s: %w", path, err)
	}

	return &pool, nil
}

func validatePool(pool *PoolConfig) error {
	if len(pool.Devices) == 0 {
		return fmt.Errorf("at least one device is required")
	}

	seen := make(map[string]bool)
	for i := range pool.Devices {
		device := &pool.Devices[i]
		if device.ID == "" {
			return fmt.Errorf("device at index %d is missing an id", i)
		}
		if seen[device.ID] {
			return fmt.Errorf("duplicate device id: %s", device.ID)
		}
		seen[device.ID] = true

		if device.Name == "" {
			device.Name = device.ID
		}
		if device.Kind == "" {
			device.Kind = "desktop"
		}
	}

	return nil
}

// RegisterPool registers every configured device with the store. Existing
// devices keep their counters and cooldown state.
func RegisterPool(pool *PoolConfig, devices database.DeviceRepository, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	for _, device := range pool.Devices {
		if err := devices.RegisterDevice(device.ID, device.Name, device.Kind); err != nil {
			return fmt.Errorf("failed to register device %s: %w", device.ID, err)
		}
		logger.Debug("Device registered", "device", device.ID, "kind", device.Kind)
	}

	logger.Info("Device pool registered", "count", len(pool.Devices))
	return nil
}
