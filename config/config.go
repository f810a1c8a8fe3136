// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package config

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/space"
	"github.com/pelletier/go-toml"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type StartType int

const (
	// Tells twm to start a repl in parallel for interacting with it
	START_REPL = StartType(iota)
	// Tells twm to execute a specific command on startup
	START_SINGLE_COMMAND
	// Tells twm to start without any specific targets
	// Note: Good luck interacting with it :3
	START_NONE
)

const (
	BackendX11      = "x11"
	BackendHeadless = "headless"
)

// Where the config gets searched for, relative to the xdg config dirs
const DefaultPath = "twm/config.toml"

var ErrUnknownFormat = errors.New("unknown config format")

type Output struct {
	Name       string `toml:"name,omitempty" yaml:"name,omitempty"`
	Width      int    `toml:"width,omitempty" yaml:"width,omitempty"`
	Height     int    `toml:"height,omitempty" yaml:"height,omitempty"`
	RefreshMHz int    `toml:"refresh_mhz,omitempty" yaml:"refresh_mhz,omitempty"`
	Transform  string `toml:"transform,omitempty" yaml:"transform,omitempty"`
	Scale      int    `toml:"scale,omitempty" yaml:"scale,omitempty"`
}

type Keyboard struct {
	// Repeats per second
	RepeatRate int `toml:"repeat_rate,omitempty" yaml:"repeat_rate,omitempty"`
	// Milliseconds before repeating starts
	RepeatDelay int `toml:"repeat_delay,omitempty" yaml:"repeat_delay,omitempty"`
}

type Config struct {
	StartType StartType `envconfig:"START_TYPE,omitempty" toml:"start_type,omitempty" yaml:"start_type,omitempty"`
	// What command to execute on start. Only matters if StartType is set to START_SINGLE_COMMAND
	StartCommand *string `envconfig:"START_COMMAND,omitempty" toml:"start_command,omitempty" yaml:"start_command,omitempty"`

	Backend              string  `toml:"backend,omitempty" yaml:"backend,omitempty"`
	FrameIntervalMs      int     `toml:"frame_interval_ms,omitempty" yaml:"frame_interval_ms,omitempty"`
	ScrollDiscreteFactor float64 `toml:"scroll_discrete_factor,omitempty" yaml:"scroll_discrete_factor,omitempty"`
	Damage               string  `toml:"damage,omitempty" yaml:"damage,omitempty"`
	SocketDir            string  `toml:"socket_dir,omitempty" yaml:"socket_dir,omitempty"`
	LogLevel             string  `toml:"log_level,omitempty" yaml:"log_level,omitempty"`
	// Red, green, blue, alpha. Each between 0 and 1
	Background []float64 `toml:"background,omitempty" yaml:"background,omitempty"`

	Output   Output   `toml:"output" yaml:"output"`
	Keyboard Keyboard `toml:"keyboard" yaml:"keyboard"`
}

func Default() Config {
	c := Config{}
	c.fillDefaults()
	return c
}

// fillDefaults sets every field left at its zero value
func (c *Config) fillDefaults() {
	if c.Backend == "" {
		c.Backend = BackendX11
	}
	if c.FrameIntervalMs == 0 {
		c.FrameIntervalMs = 16
	}
	if c.ScrollDiscreteFactor == 0 {
		c.ScrollDiscreteFactor = 3.0
	}
	if c.Damage == "" {
		c.Damage = "full"
	}
	if c.SocketDir == "" {
		c.SocketDir = xdg.RuntimeDir
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(c.Background) == 0 {
		c.Background = []float64{0.1, 0.1, 0.1, 1}
	}
	if c.Output.Name == "" {
		c.Output.Name = c.Backend + "-0"
	}
	if c.Output.Width == 0 {
		c.Output.Width = 1280
	}
	if c.Output.Height == 0 {
		c.Output.Height = 800
	}
	if c.Output.RefreshMHz == 0 {
		c.Output.RefreshMHz = 60_000
	}
	if c.Output.Scale == 0 {
		c.Output.Scale = 1
	}
	if c.Keyboard.RepeatRate == 0 {
		c.Keyboard.RepeatRate = 25
	}
	if c.Keyboard.RepeatDelay == 0 {
		c.Keyboard.RepeatDelay = 600
	}
}

// Parse decodes data in the format named by ext (".toml", ".yaml" or ".yml"),
// fills in defaults and validates the result
func Parse(data []byte, ext string) (Config, error) {
	c := Config{}
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("decoding toml: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("decoding yaml: %w", err)
		}
	default:
		return c, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	c.fillDefaults()
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	c, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Load reads the config at path. An empty path searches the xdg config dirs
// and falls back to the defaults if nothing is there
func Load(path string) (Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	found, err := xdg.SearchConfigFile(DefaultPath)
	if err != nil {
		logrus.WithField("path", DefaultPath).Debugln("No config file found, using defaults")
		return Default(), nil
	}
	logrus.WithField("path", found).Infoln("Loading config")
	return LoadFile(found)
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendX11, BackendHeadless:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if _, err := space.ParseDamageMode(c.Damage); err != nil {
		return err
	}
	if _, err := generaldata.ParseTransform(c.Output.Transform); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.FrameIntervalMs <= 0 {
		return fmt.Errorf("frame interval must be positive, got %d", c.FrameIntervalMs)
	}
	if c.ScrollDiscreteFactor <= 0 {
		return fmt.Errorf("scroll factor must be positive, got %v", c.ScrollDiscreteFactor)
	}
	if c.Output.Width <= 0 || c.Output.Height <= 0 {
		return fmt.Errorf("output size must be positive, got %dx%d", c.Output.Width, c.Output.Height)
	}
	if c.Output.RefreshMHz <= 0 {
		return fmt.Errorf("refresh rate must be positive, got %d", c.Output.RefreshMHz)
	}
	if c.Output.Scale <= 0 {
		return fmt.Errorf("scale must be positive, got %d", c.Output.Scale)
	}
	if c.Keyboard.RepeatRate < 0 || c.Keyboard.RepeatDelay < 0 {
		return errors.New("keyboard repeat settings can't be negative")
	}
	if len(c.Background) != 4 {
		return fmt.Errorf("background needs 4 components, got %d", len(c.Background))
	}
	for _, v := range c.Background {
		if v < 0 || v > 1 {
			return fmt.Errorf("background component %v outside of 0..1", v)
		}
	}
	return nil
}

func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMs) * time.Millisecond
}

func (c *Config) DamageMode() space.DamageMode {
	mode, _ := space.ParseDamageMode(c.Damage)
	return mode
}

func (c *Config) BackgroundColor() color.Color {
	if len(c.Background) != 4 {
		return color.NRGBA{R: 26, G: 26, B: 26, A: 255}
	}
	channel := func(v float64) uint8 {
		return uint8(v*255 + 0.5)
	}
	return color.NRGBA{
		R: channel(c.Background[0]),
		G: channel(c.Background[1]),
		B: channel(c.Background[2]),
		A: channel(c.Background[3]),
	}
}

// NewOutput builds the output described by the [output] section
func (c *Config) NewOutput() *space.Output {
	out := space.NewOutput(c.Output.Name, space.PhysicalProperties{Make: "twm", Model: c.Backend})
	out.SetMode(space.Mode{
		Size:    generaldata.Vector2i{X: c.Output.Width, Y: c.Output.Height},
		Refresh: c.Output.RefreshMHz,
	})
	transform, _ := generaldata.ParseTransform(c.Output.Transform)
	out.SetTransform(transform)
	out.SetScale(c.Output.Scale)
	return out
}
