package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	GeneralParams GeneralParams
	MainDBParams  MainDBParams
	AuthDBParams  AuthDBParams
	S3Params      S3Params
}

type GeneralParams struct {
	Env             string
	SecretKey       string
	HTTPaddress     string
	PublicURL       string
	LogLevel        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	RequestTimeout  time.Duration
	MaxUploadBytes  int64
	AllowedOrigins  []string
}

type MainDBParams struct {
	Username string
	Password string
	Name     string
	Port     int
	Host     string
	Timeout  int
}

type AuthDBParams struct {
	Host     string
	Username string
	Password string
	FeedTTL  time.Duration
}

type S3Params struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
}

type ConfigManager struct {
	v      *viper.Viper
	config *Config
}

// NewConfigManager creates new config manager that handles
// all viper config options and loads a config from yaml
func NewConfigManager(configPath string) (*ConfigManager, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}

	setServerDefaults(v)

	cm := &ConfigManager{v: v}
	cm.loadConfig()

	return cm, nil
}

func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return v, nil
}

func setServerDefaults(v *viper.Viper) {
	v.SetDefault("general_params.env", "dev")
	v.SetDefault("general_params.http_server_address", ":8080")
	v.SetDefault("general_params.log_level", "info")
	v.SetDefault("general_params.access_token_ttl", 15*time.Minute)
	v.SetDefault("general_params.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("general_params.request_timeout", 10*time.Second)
	v.SetDefault("general_params.max_upload_bytes", 20<<20)
	v.SetDefault("main_db_params.db_port", 5432)
	v.SetDefault("main_db_params.db_timeout", 5)
	v.SetDefault("auth_db_params.feed_ttl", 5*time.Minute)
}

// Extracting data from yaml file and loading into Config
func (cm *ConfigManager) loadConfig() {
	cm.config = &Config{
		GeneralParams: GeneralParams{
			Env:             cm.v.GetString("general_params.env"),
			SecretKey:       cm.v.GetString("general_params.secret_key"),
			HTTPaddress:     cm.v.GetString("general_params.http_server_address"),
			PublicURL:       strings.TrimRight(cm.v.GetString("general_params.public_url"), "/"),
			LogLevel:        cm.v.GetString("general_params.log_level"),
			AccessTokenTTL:  cm.v.GetDuration("general_params.access_token_ttl"),
			RefreshTokenTTL: cm.v.GetDuration("general_params.refresh_token_ttl"),
			RequestTimeout:  cm.v.GetDuration("general_params.request_timeout"),
			MaxUploadBytes:  cm.v.GetInt64("general_params.max_upload_bytes"),
			AllowedOrigins:  cm.v.GetStringSlice("general_params.allowed_origins"),
		},
		MainDBParams: MainDBParams{
			Username: cm.v.GetString("main_db_params.db_username"),
			Password: cm.v.GetString("main_db_params.db_password"),
			Name:     cm.v.GetString("main_db_params.db_name"),
			Port:     cm.v.GetInt("main_db_params.db_port"),
			Host:     cm.v.GetString("main_db_params.db_host"),
			Timeout:  cm.v.GetInt("main_db_params.db_timeout"),
		},
		AuthDBParams: AuthDBParams{
			Host:     cm.v.GetString("auth_db_params.db_host"),
			Username: cm.v.GetString("auth_db_params.db_username"),
			Password: cm.v.GetString("auth_db_params.db_password"),
			FeedTTL:  cm.v.GetDuration("auth_db_params.feed_ttl"),
		},
		S3Params: S3Params{
			Endpoint:        cm.v.GetString("s3_params.endpoint"),
			AccessKeyID:     cm.v.GetString("s3_params.access_key_id"),
			SecretAccessKey: cm.v.GetString("s3_params.secret_access_key"),
			UseSSL:          cm.v.GetBool("s3_params.use_ssl"),
			BucketName:      cm.v.GetString("s3_params.bucket_name"),
		},
	}

	if cm.config.GeneralParams.PublicURL == "" {
		cm.config.GeneralParams.PublicURL = "http://localhost" + cm.config.GeneralParams.HTTPaddress
	}
}

// Geting config instance
func (cm *ConfigManager) GetConfig() *Config {
	return cm.config
}

// Compiling a string to connect to main db
func (db *MainDBParams) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?connect_timeout=%d&sslmode=disable",
		db.Username,
		db.Password,
		db.Host,
		db.Port,
		db.Name,
		db.Timeout,
	)
}

func (c *Config) Validate() error {
	// Checking secret key
	if c.GeneralParams.SecretKey == "" {
		return fmt.Errorf("parameter secret_key is required")
	}

	// Checking http address
	if c.GeneralParams.HTTPaddress == "" {
		return fmt.Errorf("parameter http_server_address is requred")
	}

	if err := validateEnv(c.GeneralParams.Env); err != nil {
		return err
	}

	if c.GeneralParams.AccessTokenTTL <= 0 || c.GeneralParams.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token ttls must be positive")
	}

	if c.GeneralParams.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}

	// Checking MainDbparams
	if c.MainDBParams.Host == "" {
		return fmt.Errorf("MainDB: host is required")
	}
	if c.MainDBParams.Username == "" {
		return fmt.Errorf("MainDB: username is required")
	}
	if c.MainDBParams.Password == "" {
		return fmt.Errorf("MainDB: password is requred")
	}
	if c.MainDBParams.Port <= 0 || c.MainDBParams.Port > 65535 {
		return fmt.Errorf("MainDB: port is invalid")
	}

	// Checking AuthDbParams
	if c.AuthDBParams.Host == "" {
		return fmt.Errorf("AuthDB: host is required")
	}

	// Checking S3 params
	if c.S3Params.Endpoint == "" {
		return fmt.Errorf("S3 endpoint is required")
	}
	if c.S3Params.AccessKeyID == "" {
		return fmt.Errorf("S3 access_key id is required")
	}
	if c.S3Params.SecretAccessKey == "" {
		return fmt.Errorf("S3 secret_access_key is required")
	}
	if c.S3Params.BucketName == "" {
		return fmt.Errorf("S3 bucket name is required")
	}

	return nil
}

// Checking out enviroment variable
func validateEnv(env string) error {
	switch env {
	case "dev", "prod", "test":
		return nil
	default:
		return fmt.Errorf("env parameter is invalid: %s. try dev/prod/test instead", env)
	}
}
