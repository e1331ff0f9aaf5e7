// Package config loads and saves armlink.json.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/gwillem/armlink/pkg/command"
	"github.com/gwillem/armlink/pkg/gesture"
	"github.com/gwillem/armlink/pkg/link"
	"github.com/gwillem/armlink/pkg/robot"
	"github.com/gwillem/armlink/pkg/teleop"
)

const DefaultConfigFile = "armlink.json"

// Config holds the armlink configuration
type Config struct {
	Rig    RigLink         `json:"rig"`
	Teleop Teleop          `json:"teleop"`
	Tokens command.Tokens  `json:"tokens"`
	Camera Camera          `json:"camera"`
	Pose   Pose            `json:"pose"`
	Servos robot.RigConfig `json:"servos"`
	// Listen is the address the rig command serves on.
	Listen string `json:"listen"`
}

// Camera holds capture settings
type Camera struct {
	Device      int `json:"device"`
	Width       int `json:"width"`
	Height      int `json:"height"`
	MaxFailures int `json:"max_failures"`
}

// Pose holds pose model settings
type Pose struct {
	ModelPath   string  `json:"model_path"`
	ConfigPath  string  `json:"config_path"`
	InputWidth  int     `json:"input_width"`
	InputHeight int     `json:"input_height"`
	Threshold   float32 `json:"threshold"`
}

// RigLink holds the operator-side connection settings
type RigLink struct {
	Host  string `json:"host"`
	Port  int    `json:"port"`
	Retry string `json:"retry"` // once, bounded or persistent
}

// Teleop holds gesture handling settings
type Teleop struct {
	Policy     string             `json:"policy"` // exclusive or independent
	Homing     bool               `json:"homing"`
	HomingArm  string             `json:"homing_arm"`
	Mirror     bool               `json:"mirror"`
	Thresholds gesture.Thresholds `json:"thresholds"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Rig: RigLink{
			Host:  "192.168.4.1",
			Port:  8080,
			Retry: "bounded",
		},
		Teleop: Teleop{
			Policy:     "exclusive",
			Homing:     true,
			HomingArm:  "right",
			Thresholds: gesture.DefaultThresholds(),
		},
		Tokens: command.DefaultTokens(),
		Camera: Camera{
			Width:       640,
			Height:      480,
			MaxFailures: 30,
		},
		Pose: Pose{
			ModelPath:   "models/pose_iter_440000.caffemodel",
			ConfigPath:  "models/pose_deploy_linevec.prototxt",
			InputWidth:  368,
			InputHeight: 368,
			Threshold:   0.1,
		},
		Servos: robot.DefaultRigConfig(),
		Listen: ":8080",
	}
}

// Load loads configuration from the default config file
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom loads configuration from a specific file. A missing file yields the defaults;
// fields absent from the file keep their default values.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Exists returns true if the config file exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if c.Rig.Port <= 0 || c.Rig.Port > 65535 {
		return fmt.Errorf("rig port %d out of range", c.Rig.Port)
	}
	if _, err := link.ParsePolicy(c.Rig.Retry); err != nil {
		return err
	}
	if _, err := teleop.ParsePolicy(c.Teleop.Policy); err != nil {
		return err
	}
	if _, err := gesture.ParseArm(c.Teleop.HomingArm); err != nil {
		return fmt.Errorf("homing arm: %w", err)
	}
	if err := c.Tokens.Validate(); err != nil {
		return err
	}
	return nil
}

// Addr returns the rig address as host:port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Rig.Host, strconv.Itoa(c.Rig.Port))
}

// ArbiterConfig builds the arbitrator settings.
func (c *Config) ArbiterConfig() (teleop.ArbiterConfig, error) {
	policy, err := teleop.ParsePolicy(c.Teleop.Policy)
	if err != nil {
		return teleop.ArbiterConfig{}, err
	}
	arm, err := gesture.ParseArm(c.Teleop.HomingArm)
	if err != nil {
		return teleop.ArbiterConfig{}, fmt.Errorf("homing arm: %w", err)
	}
	ac := teleop.DefaultArbiterConfig()
	ac.Policy = policy
	ac.Homing = c.Teleop.Homing
	ac.HomingArm = arm
	return ac, nil
}

// LinkConfig builds the transport settings.
func (c *Config) LinkConfig() (link.Config, error) {
	retry, err := link.ParsePolicy(c.Rig.Retry)
	if err != nil {
		return link.Config{}, err
	}
	lc := link.DefaultConfig(c.Addr())
	lc.Retry = retry
	return lc, nil
}

// Classifier builds the gesture classifier.
func (c *Config) Classifier() gesture.Classifier {
	return gesture.Classifier{Thresholds: c.Teleop.Thresholds, Mirror: c.Teleop.Mirror}
}

// TeleopConfig assembles the controller configuration.
func (c *Config) TeleopConfig() (teleop.Config, error) {
	ac, err := c.ArbiterConfig()
	if err != nil {
		return teleop.Config{}, err
	}
	lc, err := c.LinkConfig()
	if err != nil {
		return teleop.Config{}, err
	}
	codec, err := command.NewCodec(c.Tokens)
	if err != nil {
		return teleop.Config{}, err
	}
	return teleop.Config{
		Arbiter:    ac,
		Classifier: c.Classifier(),
		Link:       lc,
		Codec:      codec,
		Reevaluate: 100 * time.Millisecond,
	}, nil
}
