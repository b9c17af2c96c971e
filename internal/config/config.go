package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration of the server. Every backend section is
// optional; an empty address selects the in-memory implementation.
type Config struct {
	Server struct {
		Port        string   `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Redis struct {
		Addr        string `yaml:"addr"`
		Password    string `yaml:"password"`
		DB          int    `yaml:"db"`
		TTL         string `yaml:"ttl"`
		PresenceTTL string `yaml:"presence_ttl"`
		LockLease   string `yaml:"lock_lease"`
		LockWait    string `yaml:"lock_wait"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Session struct {
		JoinCodeLength   int    `yaml:"join_code_length"`
		JoinCodeAttempts int    `yaml:"join_code_attempts"`
		JoinBaseURL      string `yaml:"join_base_url"`
	} `yaml:"session"`
	Timer struct {
		TickInterval string `yaml:"tick_interval"`
	} `yaml:"timer"`
	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	MinIO struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		UseSSL    bool   `yaml:"use_ssl"`
		Region    string `yaml:"region"`
		Bucket    string `yaml:"bucket"`
		Expiry    string `yaml:"expiry"`
	} `yaml:"minio"`
	Media struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"media"`
}

// Load reads YAML config from path. A missing file yields the zero config.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// JSONLogs reports whether logs should be written as JSON rather than the
// human readable console format.
func (c Config) JSONLogs() bool {
	return !strings.EqualFold(c.Log.Format, "console")
}
