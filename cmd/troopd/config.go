package main

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional YAML config file's shape. Every field is a
// pointer so an absent key leaves the layer below (env, then defaults)
// untouched.
type fileConfig struct {
	Host            *string `yaml:"host"`
	Port            *int    `yaml:"port"`
	Password        *string `yaml:"password"`
	AuthCost        *int    `yaml:"auth_cost"`
	RateBytesPerSec *int    `yaml:"rate_bytes_per_sec"`
	RateBurst       *int    `yaml:"rate_burst"`
	EnableLog       *bool   `yaml:"log"`
	LogRoot         *string `yaml:"log_root"`
	LogLevel        *string `yaml:"log_level"`
}

// loadFileConfig reads a YAML config file. A missing file is not an error —
// it simply means this layer contributes nothing.
func loadFileConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileConfig{}, nil
		}
		return nil, err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

func envString(key string, cur *string) *string {
	if v := os.Getenv(key); v != "" {
		return &v
	}
	return cur
}

func envInt(key string, cur *int) *int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return &n
		}
	}
	return cur
}

func envBool(key string, cur *bool) *bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return &b
		}
	}
	return cur
}
