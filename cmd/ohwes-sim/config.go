package main

import (
	"encoding/json"
	"fmt"
	"os"

	"example.com/ohwes/kernel"
	"example.com/ohwes/kernel/sim"
)

// machineFile is the on-disk form of a machine description. Fields left
// out keep their defaults, including fields of a partial layout.
type machineFile struct {
	// Kernel is a semver constraint the running kernel must satisfy,
	// for example "^0.1".
	Kernel string `json:"kernel"`

	MemorySize    uint32         `json:"memory_size"`
	SerialDivisor uint16         `json:"serial_divisor"`
	Layout        *kernel.Layout `json:"layout"`
}

// machineConfig is everything needed to build and boot one machine.
type machineConfig struct {
	MemorySize uint32
	Boot       kernel.Config
}

func defaultMachineConfig() machineConfig {
	return machineConfig{MemorySize: sim.DefaultMemorySize, Boot: kernel.DefaultConfig()}
}

// loadMachineConfig reads path over the defaults. An empty path returns the
// defaults.
func loadMachineConfig(path string) (machineConfig, error) {
	cfg := defaultMachineConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read machine config: %w", err)
	}
	f := machineFile{Layout: &cfg.Boot.Layout}
	if err := json.Unmarshal(data, &f); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := kernel.CheckCompatible(f.Kernel); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if f.MemorySize != 0 {
		cfg.MemorySize = f.MemorySize
	}
	if f.SerialDivisor != 0 {
		cfg.Boot.SerialDivisor = f.SerialDivisor
	}
	if err := cfg.Boot.Layout.Validate(cfg.MemorySize); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
