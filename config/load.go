package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for files that are neither YAML nor TOML.
var ErrUnsupportedFormat = errors.New("config: unsupported file format")

type fileSecurity struct {
	Enabled           bool     `yaml:"enabled" toml:"enabled"`
	RequireSecurity   bool     `yaml:"require_security" toml:"require_security"`
	RequireIdentity   bool     `yaml:"require_identity" toml:"require_identity"`
	ServerKey         string   `yaml:"server_key" toml:"server_key"`
	IdentitySeed      string   `yaml:"identity_seed" toml:"identity_seed"`
	AllowedIdentities []string `yaml:"allowed_identities" toml:"allowed_identities"`
}

type fileConfig struct {
	Listen          string       `yaml:"listen" toml:"listen"`
	ProtocolVersion int          `yaml:"protocol_version" toml:"protocol_version"`
	GUID            uint64       `yaml:"guid" toml:"guid"`
	MTU             int          `yaml:"mtu" toml:"mtu"`
	MaxSessions     int          `yaml:"max_sessions" toml:"max_sessions"`
	IdleTimeout     string       `yaml:"idle_timeout" toml:"idle_timeout"`
	SweepInterval   string       `yaml:"sweep_interval" toml:"sweep_interval"`
	BanList         string       `yaml:"ban_list" toml:"ban_list"`
	LogLevel        string       `yaml:"log_level" toml:"log_level"`
	LogFormat       string       `yaml:"log_format" toml:"log_format"`
	Security        fileSecurity `yaml:"security" toml:"security"`
}

// definedFunc reports whether a key path was present in the file.
type definedFunc func(key ...string) bool

// Load reads a YAML (.yaml, .yml) or TOML (.toml) file over the defaults and
// validates the result. Keys missing from the file keep their defaults.
func Load(path string) (*Options, error) {
	o := NewOptions()
	if err := o.LoadFile(path); err != nil {
		return nil, err
	}
	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return o, nil
}

// LoadFile overlays the keys present in the file at path onto o without
// validating.
func (o *Options) LoadFile(path string) error {
	var (
		raw     fileConfig
		defined definedFunc
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if defined, err = decodeYAML(data, &raw); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	case ".toml":
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		defined = meta.IsDefined
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
	if err := o.apply(raw, defined); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func decodeYAML(data []byte, raw *fileConfig) (definedFunc, error) {
	if err := yaml.Unmarshal(data, raw); err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return func(key ...string) bool {
		node := tree
		for i, k := range key {
			v, ok := node[k]
			if !ok {
				return false
			}
			if i == len(key)-1 {
				return true
			}
			if node, ok = v.(map[string]any); !ok {
				return false
			}
		}
		return false
	}, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s: %w", ErrInvalidOptions, field, err)
	}
	return d, nil
}

func (o *Options) apply(raw fileConfig, defined definedFunc) error {
	if defined("listen") {
		o.ListenAddress = strings.TrimSpace(raw.Listen)
	}
	if defined("protocol_version") {
		if raw.ProtocolVersion < 1 || raw.ProtocolVersion > 255 {
			return invalid("protocol version %d out of range", raw.ProtocolVersion)
		}
		o.ProtocolVersion = byte(raw.ProtocolVersion)
	}
	if defined("guid") {
		o.GUID = raw.GUID
	}
	if defined("mtu") {
		o.MTU = raw.MTU
	}
	if defined("max_sessions") {
		o.MaxSessions = raw.MaxSessions
	}
	if defined("idle_timeout") {
		d, err := parseDuration("idle_timeout", raw.IdleTimeout)
		if err != nil {
			return err
		}
		o.IdleTimeout = d
	}
	if defined("sweep_interval") {
		d, err := parseDuration("sweep_interval", raw.SweepInterval)
		if err != nil {
			return err
		}
		o.SweepInterval = d
	}
	if defined("ban_list") {
		o.BanList = strings.TrimSpace(raw.BanList)
	}
	if defined("log_level") {
		o.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if defined("log_format") {
		o.LogFormat = strings.TrimSpace(raw.LogFormat)
	}

	sec := &o.Security
	if defined("security", "enabled") {
		sec.Enabled = raw.Security.Enabled
	}
	if defined("security", "require_security") {
		sec.RequireSecurity = raw.Security.RequireSecurity
	}
	if defined("security", "require_identity") {
		sec.RequireIdentity = raw.Security.RequireIdentity
	}
	if defined("security", "server_key") {
		sec.ServerKey = strings.TrimSpace(raw.Security.ServerKey)
	}
	if defined("security", "identity_seed") {
		sec.IdentitySeed = strings.TrimSpace(raw.Security.IdentitySeed)
	}
	if defined("security", "allowed_identities") {
		sec.AllowedIdentities = append([]string(nil), raw.Security.AllowedIdentities...)
	}
	return nil
}
