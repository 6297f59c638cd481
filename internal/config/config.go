package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const configDir = ".copilot-chat"
const configFile = "config.json"

const (
	DefaultAuthority      = "https://login.microsoftonline.com"
	DefaultListenAddr     = "127.0.0.1:8501"
	DefaultTurnTimeout    = 5 * time.Minute
	DefaultConnectTimeout = 30 * time.Second
)

// dotEnvFile is loaded into the process environment before settings are read.
var dotEnvFile = ".env"

type Config struct {
	EnvironmentID   string        `json:"environment_id,omitempty" mapstructure:"environment_id"`
	AgentIdentifier string        `json:"agent_identifier,omitempty" mapstructure:"agent_identifier"`
	TenantID        string        `json:"tenant_id,omitempty" mapstructure:"tenant_id"`
	AppClientID     string        `json:"app_client_id,omitempty" mapstructure:"app_client_id"`
	BaseURL         string        `json:"base_url,omitempty" mapstructure:"base_url"`
	Authority       string        `json:"authority,omitempty" mapstructure:"authority"`
	ListenAddr      string        `json:"listen_addr,omitempty" mapstructure:"listen_addr"`
	TurnTimeout     time.Duration `json:"turn_timeout,omitempty" mapstructure:"turn_timeout"`
	ConnectTimeout  time.Duration `json:"connect_timeout,omitempty" mapstructure:"connect_timeout"`

	Username     string `json:"username,omitempty" mapstructure:"username"`
	Token        string `json:"token,omitempty" mapstructure:"token"`
	RefreshToken string `json:"refresh_token,omitempty" mapstructure:"refresh_token"`
	TokenExpiry  int64  `json:"token_expiry,omitempty" mapstructure:"token_expiry"`

	Profile string `json:"-" mapstructure:"-"`
}

// Setting is a config key with its environment variable.
type Setting struct {
	Key         string
	Env         string
	Description string
}

// Required settings. The app refuses to start a conversation without them.
var Required = []Setting{
	{"environment_id", "COPILOT_ENVIRONMENT_ID", "Copilot Studio environment ID"},
	{"agent_identifier", "COPILOT_AGENT_IDENTIFIER", "agent schema name"},
	{"tenant_id", "AZURE_TENANT_ID", "Azure AD tenant ID"},
	{"app_client_id", "AZURE_APP_CLIENT_ID", "app registration client ID"},
}

// Optional settings.
var Optional = []Setting{
	{"base_url", "COPILOT_BASE_URL", "agent endpoint override"},
	{"authority", "AZURE_AUTHORITY", "identity provider base URL"},
	{"listen_addr", "COPILOT_LISTEN_ADDR", "web server address"},
	{"turn_timeout", "COPILOT_TURN_TIMEOUT", "maximum duration of one turn"},
	{"connect_timeout", "COPILOT_CONNECT_TIMEOUT", "maximum duration of connecting"},
}

func configPath(profile string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot find home directory: %w", err)
	}
	filename := configFile
	if profile != "" {
		filename = fmt.Sprintf("config-%s.json", profile)
	}
	return filepath.Join(home, configDir, filename), nil
}

// Dir returns the directory holding config files and logs.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot find home directory: %w", err)
	}
	return filepath.Join(home, configDir), nil
}

// Load reads the profile's config file, then overlays environment variables
// (after loading .env). A missing file is not an error.
func Load(profile string) (*Config, error) {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", dotEnvFile, err)
	}

	path, err := configPath(profile)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetDefault("authority", DefaultAuthority)
	v.SetDefault("listen_addr", DefaultListenAddr)
	v.SetDefault("turn_timeout", DefaultTurnTimeout)
	v.SetDefault("connect_timeout", DefaultConnectTimeout)
	for _, s := range append(append([]Setting{}, Required...), Optional...) {
		if err := v.BindEnv(s.Key, s.Env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", s.Env, err)
		}
	}

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Profile = profile
	return &cfg, nil
}

func (c *Config) Save() error {
	path, err := configPath(c.Profile)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Set assigns a setting by key, as used by "config set".
func (c *Config) Set(key, value string) error {
	switch key {
	case "environment_id":
		c.EnvironmentID = value
	case "agent_identifier":
		c.AgentIdentifier = value
	case "tenant_id":
		c.TenantID = value
	case "app_client_id":
		c.AppClientID = value
	case "base_url":
		c.BaseURL = strings.TrimRight(value, "/")
	case "authority":
		c.Authority = strings.TrimRight(value, "/")
	case "listen_addr":
		c.ListenAddr = value
	case "turn_timeout", "connect_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		if key == "turn_timeout" {
			c.TurnTimeout = d
		} else {
			c.ConnectTimeout = d
		}
	default:
		return fmt.Errorf("unknown setting %q (valid: %s)", key, strings.Join(Keys(), ", "))
	}
	return nil
}

// Keys lists every settable key, sorted.
func Keys() []string {
	var keys []string
	for _, s := range append(append([]Setting{}, Required...), Optional...) {
		keys = append(keys, s.Key)
	}
	sort.Strings(keys)
	return keys
}

// SetToken stores an access token and its refresh token.
func (c *Config) SetToken(access, refresh string, expiry time.Time) {
	c.Token = access
	if refresh != "" {
		c.RefreshToken = refresh
	}
	c.TokenExpiry = 0
	if !expiry.IsZero() {
		c.TokenExpiry = expiry.Unix()
	}
}

// ClearToken forgets stored credentials.
func (c *Config) ClearToken() {
	c.Token = ""
	c.RefreshToken = ""
	c.TokenExpiry = 0
	c.Username = ""
}

// Expiry returns the access token expiry, or the zero time if unknown.
func (c *Config) Expiry() time.Time {
	if c.TokenExpiry == 0 {
		return time.Time{}
	}
	return time.Unix(c.TokenExpiry, 0)
}

func (c *Config) profileFlag() string {
	if c.Profile == "" {
		return ""
	}
	return " --profile " + c.Profile
}

// MissingSettingsError lists required settings that have no value.
type MissingSettingsError struct {
	Missing []Setting
	Profile string
}

func (e *MissingSettingsError) Error() string {
	var parts []string
	for _, s := range e.Missing {
		parts = append(parts, fmt.Sprintf("%s (%s)", s.Env, s.Description))
	}
	pf := ""
	if e.Profile != "" {
		pf = " --profile " + e.Profile
	}
	return fmt.Sprintf("missing required settings: %s. Set them in the environment or .env, or run: copilot-chat%s config set <key> <value>",
		strings.Join(parts, ", "), pf)
}

func (c *Config) value(key string) string {
	switch key {
	case "environment_id":
		return c.EnvironmentID
	case "agent_identifier":
		return c.AgentIdentifier
	case "tenant_id":
		return c.TenantID
	case "app_client_id":
		return c.AppClientID
	}
	return ""
}

// Validate reports every required setting that is missing.
func (c *Config) Validate() error {
	var missing []Setting
	for _, s := range Required {
		if strings.TrimSpace(c.value(s.Key)) == "" {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return &MissingSettingsError{Missing: missing, Profile: c.Profile}
	}
	return nil
}

// ValidateAuth is Validate plus a stored sign-in.
func (c *Config) ValidateAuth() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Token == "" && c.RefreshToken == "" {
		return fmt.Errorf("not signed in. Run: copilot-chat%s login", c.profileFlag())
	}
	return nil
}

func ListProfiles() ([]string, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config directory: %w", err)
	}
	var profiles []string
	for _, e := range entries {
		name := e.Name()
		if name == configFile {
			profiles = append(profiles, "default")
			continue
		}
		if strings.HasPrefix(name, "config-") && strings.HasSuffix(name, ".json") {
			profiles = append(profiles, strings.TrimSuffix(strings.TrimPrefix(name, "config-"), ".json"))
		}
	}
	return profiles, nil
}

func ProfileName(profile string) string {
	if profile == "" {
		return "default"
	}
	return profile
}
