// Package config loads the CSH server configuration file and binds
// command-line overrides onto it, the Go analogue of
// original_source/server/src/runtime.py's ServerRuntime: a config
// file merged with CLI flags, %HOSTNAME%/%IP% placeholder resolution,
// and a touched-settings write-back at graceful shutdown.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/cubeflix/csh/internal/hostresolve"
	"github.com/cubeflix/csh/internal/ratelimit"
)

// Config holds every recognized config-file/CLI setting (§6 "Config
// file"). Address is split back into Host/Port (runtime.py folds
// host/port into a single "address" tuple; Go keeps them separate
// fields bound independently by viper/cobra and re-joined by callers
// that need "host:port").
type Config struct {
	Host string
	Port int

	Path               string
	UsersFile          string
	ServerName         string
	Backlog            int
	CertFile           string
	KeyFile            string
	TLSProtocol        string
	RateLimit          []ratelimit.Rule
	SessionLimit       int
	DefaultExpire      int
	AllowChangeExpire  bool
	SessionExpireDelay int
	Verbose            bool
	FileHandler        string
	Level              string

	v *viper.Viper
}

// Secure reports whether TLS was configured (a non-empty 3-element
// "secure" array in the reference's config schema).
func (c *Config) Secure() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// Addr renders Host:Port for net.Listen, resolving the %IP%
// placeholder first.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", hostresolve.ResolveHost(c.Host), c.Port)
}

// Defaults mirrors runtime.py's fallback values: port 8008, host
// localhost, users file "users.json", server name "%HOSTNAME%".
func Defaults() *Config {
	return &Config{
		Host:               "localhost",
		Port:               8008,
		UsersFile:          "users.json",
		ServerName:         "%HOSTNAME%",
		Backlog:            64,
		SessionExpireDelay: 100,
		AllowChangeExpire:  true,
		Level:              "info",
	}
}

// Load reads configPath (JSON) if it exists, merges it under the
// defaults, and returns the resolved Config. An empty configPath
// skips the file entirely (the CLI's --noconfig flag, §6).
func Load(configPath string) (*Config, error) {
	d := Defaults()
	v := viper.New()
	v.SetConfigType("json")

	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("path", d.Path)
	v.SetDefault("users_file", d.UsersFile)
	v.SetDefault("server_name", d.ServerName)
	v.SetDefault("backlog", d.Backlog)
	v.SetDefault("session_expiration_delay", d.SessionExpireDelay)
	v.SetDefault("allow_change_expire", d.AllowChangeExpire)
	v.SetDefault("level", d.Level)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
			}
		}
	}

	cfg := &Config{v: v}
	if err := cfg.reloadFromViper(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) reloadFromViper() error {
	v := c.v
	c.Host = v.GetString("host")
	c.Port = v.GetInt("port")
	c.Path = v.GetString("path")
	c.UsersFile = v.GetString("users_file")
	c.ServerName = hostresolve.ResolveServerName(v.GetString("server_name"))
	c.Backlog = v.GetInt("backlog")
	c.SessionLimit = v.GetInt("session_limit")
	c.DefaultExpire = v.GetInt("default_expire")
	c.AllowChangeExpire = v.GetBool("allow_change_expire")
	c.SessionExpireDelay = v.GetInt("session_expiration_delay")
	c.Verbose = v.GetBool("verbose")
	c.FileHandler = v.GetString("file_handler")
	c.Level = v.GetString("level")

	if secure := v.Get("secure"); secure != nil {
		if parts, ok := secure.([]any); ok && len(parts) == 3 {
			c.CertFile, _ = parts[0].(string)
			c.KeyFile, _ = parts[1].(string)
			c.TLSProtocol, _ = parts[2].(string)
		}
	}

	rules, err := parseRateLimit(v.Get("rate_limit"))
	if err != nil {
		return err
	}
	c.RateLimit = rules
	return nil
}

func parseRateLimit(raw any) ([]ratelimit.Rule, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("config: rate_limit must be a list of [window, max] pairs")
	}
	rules := make([]ratelimit.Rule, 0, len(list))
	for _, item := range list {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("config: rate_limit entries must be 2-element lists")
		}
		window, wok := toInt(pair[0])
		max, mok := toInt(pair[1])
		if !wok || !mok {
			return nil, fmt.Errorf("config: rate_limit entries must be integers")
		}
		rules = append(rules, ratelimit.Rule{WindowSeconds: window, MaxRequests: max})
	}
	return rules, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// ApplyFlagOverrides merges non-empty CLI flag values onto the loaded
// config, the Go equivalent of runtime.py joining args_dict over the
// parsed settings file. Zero-value fields are treated as "not set on
// the command line" and left alone.
func (c *Config) ApplyFlagOverrides(port int, host, path, name, usersFile, logfile, level string) {
	if port != 0 {
		c.Port = port
	}
	if host != "" {
		c.Host = host
	}
	if path != "" {
		c.Path = path
	}
	if name != "" {
		c.ServerName = hostresolve.ResolveServerName(name)
	}
	if usersFile != "" {
		c.UsersFile = usersFile
	}
	if logfile != "" {
		c.FileHandler = logfile
	}
	if level != "" {
		c.Level = strings.ToLower(level)
	}
}
