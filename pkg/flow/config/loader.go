package config

import (
	"fmt"

	"github.com/cognicore/flow/pkg/flow/keeplist"
)

// Loader loads all configuration files and constructs components
type Loader struct {
	ConfigPath   string
	KeepListPath string
}

// Components holds all loaded configuration components
type Components struct {
	Config Config
	Keep   *keeplist.List
}

// Load reads all configuration files and returns initialized components.
// Missing paths fall back to defaults.
func (l *Loader) Load() (*Components, error) {
	comp := &Components{Config: Default()}

	if l.ConfigPath != "" {
		cfg, err := Load(l.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		comp.Config = cfg
	}

	words := append([]string(nil), comp.Config.KeepWords...)
	if l.KeepListPath != "" {
		kl, err := LoadKeepList(l.KeepListPath)
		if err != nil {
			return nil, fmt.Errorf("load keep list: %w", err)
		}
		words = append(words, kl.Terms...)
	}
	comp.Keep = keeplist.New(words)

	return comp, nil
}
