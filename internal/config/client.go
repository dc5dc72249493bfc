package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ClientConfig configures the terminal shell and both controllers.
type ClientConfig struct {
	APIBaseURL     string
	LogLevel       string
	NetworkTimeout time.Duration
	TickInterval   time.Duration
	MediaDir       string
	Address        *ClientAddress
}

// ClientAddress is the stored address stamped onto recorded cards.
type ClientAddress struct {
	Street  string
	City    string
	State   string
	Country string
	ZipCode string
}

type ClientConfigManager struct {
	v      *viper.Viper
	config *ClientConfig
}

func NewClientConfigManager(configPath string) (*ClientConfigManager, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}

	v.SetDefault("client_params.api_base_url", "http://localhost:8080")
	v.SetDefault("client_params.log_level", "info")
	v.SetDefault("client_params.network_timeout", 15*time.Second)
	v.SetDefault("client_params.tick_interval", 250*time.Millisecond)
	v.SetDefault("client_params.media_dir", "recordings")

	cm := &ClientConfigManager{v: v}
	cm.loadConfig()

	return cm, nil
}

func (cm *ClientConfigManager) loadConfig() {
	cm.config = &ClientConfig{
		APIBaseURL:     strings.TrimRight(cm.v.GetString("client_params.api_base_url"), "/"),
		LogLevel:       cm.v.GetString("client_params.log_level"),
		NetworkTimeout: cm.v.GetDuration("client_params.network_timeout"),
		TickInterval:   cm.v.GetDuration("client_params.tick_interval"),
		MediaDir:       cm.v.GetString("client_params.media_dir"),
	}

	if cm.v.IsSet("client_params.address.city") {
		cm.config.Address = &ClientAddress{
			Street:  cm.v.GetString("client_params.address.street"),
			City:    cm.v.GetString("client_params.address.city"),
			State:   cm.v.GetString("client_params.address.state"),
			Country: cm.v.GetString("client_params.address.country"),
			ZipCode: cm.v.GetString("client_params.address.zip_code"),
		}
	}
}

func (cm *ClientConfigManager) GetConfig() *ClientConfig {
	return cm.config
}

func (c *ClientConfig) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api_base_url is invalid: %q", c.APIBaseURL)
	}

	if c.NetworkTimeout <= 0 {
		return fmt.Errorf("network_timeout must be positive")
	}

	if c.TickInterval < 0 {
		return fmt.Errorf("tick_interval must not be negative")
	}

	if c.MediaDir == "" {
		return fmt.Errorf("media_dir is required")
	}

	return nil
}
