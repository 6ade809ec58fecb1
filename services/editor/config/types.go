// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the lspbridge configuration file.
//
// The file is YAML and lives at ~/.lspbridge/lspbridge.yaml unless a path is
// given. A missing file is created with defaults on first use. Durations are
// Go duration strings ("2s", "180ms").
package config

import (
	"fmt"
	"time"

	"github.com/AleutianAI/lspbridge/services/editor/lsp"
)

// CurrentConfigVersion is written to new configuration files.
const CurrentConfigVersion = "1"

const (
	// DefaultDirName is the configuration directory under the home directory.
	DefaultDirName = ".lspbridge"

	// DefaultFileName is the configuration file name.
	DefaultFileName = "lspbridge.yaml"

	// DefaultLogDir is where file logs go when enabled.
	DefaultLogDir = "~/.lspbridge/logs"
)

// LSPBridgeConfig is the on-disk configuration.
type LSPBridgeConfig struct {
	Meta ConfigMeta `yaml:"meta"`

	// LanguageID is sent with documents that do not name a language.
	LanguageID string `yaml:"language_id" validate:"omitempty,max=64"`

	// OverrideEnv names the environment variable holding a server command
	// that is tried before Servers. Nil means the built-in default; an
	// empty string disables the override.
	OverrideEnv *string `yaml:"override_env,omitempty"`

	// Servers is the ordered fallback list; each entry is an argv list.
	Servers [][]string `yaml:"servers" validate:"dive,min=1,dive,required"`

	SpawnTimeout    string `yaml:"spawn_timeout" validate:"omitempty,duration"`
	ShutdownTimeout string `yaml:"shutdown_timeout" validate:"omitempty,duration"`
	Debounce        string `yaml:"debounce" validate:"omitempty,duration"`

	// StderrLinesPerSecond throttles forwarded server stderr. Zero
	// forwards everything.
	StderrLinesPerSecond float64 `yaml:"stderr_lines_per_second" validate:"gte=0"`

	Log LogConfig `yaml:"log"`
}

// ConfigMeta records which version of lspbridge wrote the file.
type ConfigMeta struct {
	Version string `yaml:"version"`
}

// LogConfig configures pkg/logging for the CLI.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`

	// Dir enables JSON file logs in this directory. Supports ~.
	Dir string `yaml:"dir,omitempty"`

	// Format is auto, text or json. Auto picks text for a terminal.
	Format string `yaml:"format" validate:"omitempty,oneof=auto text json"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() LSPBridgeConfig {
	client := lsp.DefaultClientConfig()
	servers := make([][]string, 0, len(client.Servers))
	for _, s := range client.Servers {
		servers = append(servers, append([]string{s.Program}, s.Args...))
	}
	return LSPBridgeConfig{
		Meta:            ConfigMeta{Version: CurrentConfigVersion},
		LanguageID:      client.LanguageID,
		Servers:         servers,
		SpawnTimeout:    client.SpawnTimeout.String(),
		ShutdownTimeout: client.ShutdownTimeout.String(),
		Debounce:        client.DebounceInterval.String(),
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// GetOverrideEnv returns the override variable name, falling back to
// lsp.DefaultOverrideEnv when unset.
func (c LSPBridgeConfig) GetOverrideEnv() string {
	if c.OverrideEnv == nil {
		return lsp.DefaultOverrideEnv
	}
	return *c.OverrideEnv
}

// ToClientConfig converts the file configuration into an lsp.ClientConfig.
// Empty fields keep the client defaults. An empty Servers list uses the
// built-in list.
func (c LSPBridgeConfig) ToClientConfig() (lsp.ClientConfig, error) {
	out := lsp.DefaultClientConfig()
	if c.LanguageID != "" {
		out.LanguageID = c.LanguageID
	}
	out.OverrideEnv = c.GetOverrideEnv()

	if len(c.Servers) > 0 {
		out.Servers = make([]lsp.Command, 0, len(c.Servers))
		for _, argv := range c.Servers {
			if len(argv) == 0 || argv[0] == "" {
				continue
			}
			out.Servers = append(out.Servers, lsp.CommandFromArgv(argv))
		}
	}

	var err error
	if out.SpawnTimeout, err = parseDuration("spawn_timeout", c.SpawnTimeout, out.SpawnTimeout); err != nil {
		return lsp.ClientConfig{}, err
	}
	if out.ShutdownTimeout, err = parseDuration("shutdown_timeout", c.ShutdownTimeout, out.ShutdownTimeout); err != nil {
		return lsp.ClientConfig{}, err
	}
	if out.DebounceInterval, err = parseDuration("debounce", c.Debounce, out.DebounceInterval); err != nil {
		return lsp.ClientConfig{}, err
	}
	out.StderrLinesPerSecond = c.StderrLinesPerSecond
	return out, nil
}

func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", field, value)
	}
	return d, nil
}
