package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "github.com/wfunc/emojirades/internal/errors"
)

// EnvPrefix prefix for environment overrides, e.g. EMOJIRADES_SERVER_PORT.
const EnvPrefix = "EMOJIRADES"

// Config root configuration
type Config struct {
	Server        ServerConfig      `mapstructure:"server"`
	Database      DatabaseConfig    `mapstructure:"database"`
	Storage       StorageConfig     `mapstructure:"storage"`
	WebSocket     WebSocketConfig   `mapstructure:"websocket"`
	Log           LogConfig         `mapstructure:"log"`
	Security      SecurityConfig    `mapstructure:"security"`
	Workspaces    []WorkspaceConfig `mapstructure:"workspaces"`
	WorkspacesDir string            `mapstructure:"workspaces_dir"`
}

// ServerConfig HTTP server
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig used when storage.driver is "database"
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// StorageConfig selects where channel state and score ledgers live.
type StorageConfig struct {
	// Driver is one of file, s3, database.
	Driver string   `mapstructure:"driver"`
	Path   string   `mapstructure:"path"`
	S3     S3Config `mapstructure:"s3"`
}

// S3Config S3 document backend
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	RoleARN         string `mapstructure:"role_arn"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// WebSocketConfig websocket chat transport
type WebSocketConfig struct {
	Path            string        `mapstructure:"path"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	InboxSize       int           `mapstructure:"inbox_size"`
}

// LogConfig logging
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig rotated log file
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig admin API security
type SecurityConfig struct {
	JWT JWTConfig `mapstructure:"jwt"`
}

// JWTConfig JWT signing
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	Issuer      string `mapstructure:"issuer"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// WorkspaceConfig one chat workspace hosting any number of game channels.
type WorkspaceConfig struct {
	ID        string       `mapstructure:"id" yaml:"id"`
	Transport string       `mapstructure:"transport" yaml:"transport"`
	BotID     string       `mapstructure:"bot_id" yaml:"bot_id"`
	BotName   string       `mapstructure:"bot_name" yaml:"bot_name"`
	Admins    []string     `mapstructure:"admins" yaml:"admins"`
	Twitch    TwitchConfig `mapstructure:"twitch" yaml:"twitch"`
}

// TwitchConfig twitch IRC transport
type TwitchConfig struct {
	Username string   `mapstructure:"username" yaml:"username"`
	OAuth    string   `mapstructure:"oauth" yaml:"oauth"`
	Channels []string `mapstructure:"channels" yaml:"channels"`
	// DMChannel receives messages addressed to a single user. Twitch IRC has
	// no private delivery, so leave empty to make DMs unresolvable.
	DMChannel string `mapstructure:"dm_channel" yaml:"dm_channel"`
}

// Transport names
const (
	TransportWebSocket = "websocket"
	TransportTwitch    = "twitch"
)

// Storage drivers
const (
	StorageFile     = "file"
	StorageS3       = "s3"
	StorageDatabase = "database"
)

// IsAdmin reports whether user is listed as a workspace admin.
func (w WorkspaceConfig) IsAdmin(user string) bool {
	for _, a := range w.Admins {
		if a == user {
			return true
		}
	}
	return false
}

// Loader owns the viper instance and the current Config.
type Loader struct {
	v   *viper.Viper
	mu  sync.RWMutex
	cfg *Config
}

// Load reads configuration from configPath (or ./config.yaml, ./config/config.yaml),
// applying .env and EMOJIRADES_* environment overrides on top of defaults.
func Load(configPath string) (*Loader, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, apperrors.Wrap(err, apperrors.ErrConfigLoad, ".env")
	}

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, apperrors.Wrap(err, apperrors.ErrConfigLoad)
		}
	}

	l := &Loader{v: v}
	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.cfg = cfg
	return l, nil
}

func (l *Loader) decode() (*Config, error) {
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrConfigParse)
	}
	if cfg.WorkspacesDir != "" {
		extra, err := LoadWorkspaceDir(cfg.WorkspacesDir)
		if err != nil {
			return nil, err
		}
		cfg.Workspaces = append(cfg.Workspaces, extra...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/emojirades.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.driver", StorageFile)
	v.SetDefault("storage.path", "./data")
	v.SetDefault("storage.s3.region", "us-east-1")

	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.inbox_size", 256)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "emojirades.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)

	v.SetDefault("security.jwt.issuer", "emojirades")
	v.SetDefault("security.jwt.expire_hours", 24)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageFile, StorageDatabase:
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			return apperrors.New(apperrors.ErrConfigMissing, "storage.s3.bucket")
		}
	default:
		return apperrors.Newf(apperrors.ErrConfigValidate, "unknown storage driver %q", c.Storage.Driver)
	}

	seen := make(map[string]bool, len(c.Workspaces))
	for i, ws := range c.Workspaces {
		if ws.ID == "" {
			return apperrors.Newf(apperrors.ErrConfigMissing, "workspaces[%d].id", i)
		}
		if seen[ws.ID] {
			return apperrors.Newf(apperrors.ErrConfigValidate, "duplicate workspace %q", ws.ID)
		}
		seen[ws.ID] = true

		switch ws.Transport {
		case TransportWebSocket:
			if ws.BotID == "" {
				return apperrors.Newf(apperrors.ErrConfigMissing, "workspace %s: bot_id", ws.ID)
			}
		case TransportTwitch:
			if ws.Twitch.Username == "" || len(ws.Twitch.Channels) == 0 {
				return apperrors.Newf(apperrors.ErrConfigMissing, "workspace %s: twitch.username and twitch.channels", ws.ID)
			}
		default:
			return apperrors.Newf(apperrors.ErrConfigValidate, "workspace %s: unknown transport %q", ws.ID, ws.Transport)
		}
	}
	return nil
}

// Workspace returns the workspace with the given id.
func (c *Config) Workspace(id string) (WorkspaceConfig, bool) {
	for _, ws := range c.Workspaces {
		if ws.ID == id {
			return ws, true
		}
	}
	return WorkspaceConfig{}, false
}

// Addr host:port for the HTTP server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Get returns the current configuration.
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Watch reloads the configuration on file change. Invalid edits are reported
// through onError and the previous configuration stays in effect.
func (l *Loader) Watch(callback func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		newCfg, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(apperrors.Wrapf(err, apperrors.ErrConfigLoad, "reload %s", e.Name))
			}
			return
		}

		l.mu.Lock()
		l.cfg = newCfg
		l.mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}
	})
	l.v.WatchConfig()
}
