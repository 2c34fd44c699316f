package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Environment   string `mapstructure:"environment"`
	DevModeBypass bool   `mapstructure:"dev_mode_bypass"`

	Server struct {
		Addr          string `mapstructure:"addr"`
		PublicBaseURL string `mapstructure:"public_base_url"`
	} `mapstructure:"server"`

	DB struct {
		Driver   string `mapstructure:"driver"` // "sqlite" or "postgres"
		Path     string `mapstructure:"path"`   // sqlite file path
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`

	Worker struct {
		BaseURL            string `mapstructure:"base_url"`
		UseMock            bool   `mapstructure:"use_mock"`
		CallbackURL        string `mapstructure:"callback_url"`
		SubmitTimeoutSecs  int    `mapstructure:"submit_timeout_seconds"`
		PollTimeoutSecs    int    `mapstructure:"poll_timeout_seconds"`
		MockMinDelayMillis int    `mapstructure:"mock_min_delay_ms"`
		MockMaxDelayMillis int    `mapstructure:"mock_max_delay_ms"`
	} `mapstructure:"worker"`

	Redis struct {
		Enable        bool   `mapstructure:"enable"`
		Addr          string `mapstructure:"addr"`
		StatusTTLSecs int    `mapstructure:"status_ttl_seconds"`
	} `mapstructure:"redis"`

	Auth struct {
		Mode         string `mapstructure:"mode"` // "oidc" or "header"
		Header       string `mapstructure:"header"`
		Issuer       string `mapstructure:"issuer"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
		RedirectURL  string `mapstructure:"redirect_url"`
	} `mapstructure:"auth"`

	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// LoadConfig loads the configuration from a file and the environment.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults plus env cover dev mode.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// normalize issuer url (strip trailing slash if any)
	config.Auth.Issuer = strings.TrimRight(strings.TrimSpace(config.Auth.Issuer), "/")
	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "DEV")
	viper.SetDefault("dev_mode_bypass", true)
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.public_base_url", "http://localhost:8080")
	viper.SetDefault("db.driver", "sqlite")
	viper.SetDefault("db.path", "data/scholaverse.db")
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("worker.base_url", "http://192.168.50.110:8000")
	viper.SetDefault("worker.use_mock", true)
	viper.SetDefault("worker.callback_url", "http://192.168.50.111/api/internal/generation-callback")
	viper.SetDefault("worker.submit_timeout_seconds", 30)
	viper.SetDefault("worker.poll_timeout_seconds", 15)
	viper.SetDefault("worker.mock_min_delay_ms", 3000)
	viper.SetDefault("worker.mock_max_delay_ms", 5000)
	viper.SetDefault("redis.enable", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.status_ttl_seconds", 3600)
	viper.SetDefault("auth.mode", "header")
	viper.SetDefault("auth.header", "cf-access-authenticated-user-email")
}
