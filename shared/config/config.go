package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/wavoo-crm/crmchat/shared/validation"
)

type Config struct {
	Public  Public
	private Private
}

type Public struct {
	APIBaseURL         string        `yaml:"api_base_url" validate:"required,url"`
	SocketURL          string        `yaml:"socket_url" validate:"required,url"`
	SocketPath         string        `yaml:"socket_path"`
	HTTPTimeout        time.Duration `yaml:"http_timeout"`
	ReconnectMin       time.Duration `yaml:"reconnect_min"`
	ReconnectMax       time.Duration `yaml:"reconnect_max" validate:"gtefield=ReconnectMin"`
	StatusPollInterval time.Duration `yaml:"status_poll_interval"` // 0 disables the wa:get_status fallback
	StateDir           string        `yaml:"state_dir" validate:"required"`
	MaxUploadBytes     int64         `yaml:"max_upload_bytes" validate:"gte=0"`
	EmitBuffer         int           `yaml:"emit_buffer" validate:"gte=0"` // emits queued while the socket is down
	LogLevel           string        `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	LogJSON            bool          `yaml:"log_json"`
	MetricsAddr        string        `yaml:"metrics_addr"` // empty disables the debug server
}

// Private holds optional non-interactive credentials.
type Private struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

func (c *Config) Credentials() (email, password string) {
	return c.private.Email, c.private.Password
}

func (c *Config) HasCredentials() bool {
	return c.private.Email != "" && c.private.Password != ""
}

func (p *Public) applyDefaults() {
	if p.SocketPath == "" {
		p.SocketPath = "/socket.io"
	}
	if p.HTTPTimeout == 0 {
		p.HTTPTimeout = 15 * time.Second
	}
	if p.ReconnectMin == 0 {
		p.ReconnectMin = time.Second
	}
	if p.ReconnectMax == 0 {
		p.ReconnectMax = 30 * time.Second
	}
	if p.MaxUploadBytes == 0 {
		p.MaxUploadBytes = 16 << 20
	}
	if p.EmitBuffer == 0 {
		p.EmitBuffer = 64
	}
	if p.LogLevel == "" {
		p.LogLevel = "info"
	}
	if strings.HasPrefix(p.StateDir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p.StateDir = filepath.Join(home, p.StateDir[2:])
		}
	}
}

func loadPath(configPath string, output interface{}) error {
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}
	if err := yaml.UnmarshalStrict(configFile, output); err != nil {
		return fmt.Errorf("can't unmarshal %s: %w", configPath, err)
	}
	return nil
}

// Load reads public.yaml (required) and private.yaml (optional) from the folder.
func Load(configFolder string) (*Config, error) {
	var public Public
	if err := loadPath(path.Join(configFolder, "public.yaml"), &public); err != nil {
		return nil, fmt.Errorf("public config: %w", err)
	}
	public.applyDefaults()
	if err := validation.Struct(public); err != nil {
		return nil, fmt.Errorf("public config: %w", err)
	}

	var private Private
	if err := loadPath(path.Join(configFolder, "private.yaml"), &private); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("private config: %w", err)
	}

	return &Config{public, private}, nil
}

func MustLoad(configFolder string) *Config {
	cfg, err := Load(configFolder)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}
