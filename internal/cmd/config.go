package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bazaarhq/bazaar/internal/auction/repository"
	"github.com/bazaarhq/bazaar/internal/mail"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Auction struct {
		MinDuration time.Duration        `yaml:"min_duration"`
		BidPolicy   repository.BidPolicy `yaml:"bid_policy"`
	} `yaml:"auction"`

	SMTP mail.SMTPConfig `yaml:"smtp"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}
