// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Engine defaults.
const (
	DefaultMaxMessageSize      = 1472
	DefaultRequestListCapacity = 256 << 10
	DefaultTrapEnterprise      = ".1.3.6.1.4.1.8072.3.2.10"

	// enterpriseNumber prefixes generated engine ids (RFC 3411 SnmpEngineID
	// format, net-snmp enterprise).
	enterpriseNumber = 8072
)

// Config is the engine configuration. It is read from YAML by LoadConfig;
// every field can be overridden by an SNMPENGINE_ environment variable
// (for example SNMPENGINE_MAX_MESSAGE_SIZE).
type Config struct {
	// EngineID is the hex encoded snmpEngineID. Empty generates one.
	EngineID    string `mapstructure:"engine_id" yaml:"engine_id"`
	EngineBoots uint32 `mapstructure:"engine_boots" yaml:"engine_boots"`

	// Versions enables message processing models ("1", "2c", "3").
	Versions []string `mapstructure:"versions" yaml:"versions"`

	MaxMessageSize      int `mapstructure:"max_message_size" yaml:"max_message_size"`
	RequestListCapacity int `mapstructure:"request_list_capacity" yaml:"request_list_capacity"`
	USMCacheSize        int `mapstructure:"usm_cache_size" yaml:"usm_cache_size"`

	// AuthenticationFailureTraps enables snmpEnableAuthenTraps.
	AuthenticationFailureTraps bool         `mapstructure:"authentication_failure_traps" yaml:"authentication_failure_traps"`
	TrapEnterprise             string       `mapstructure:"trap_enterprise" yaml:"trap_enterprise"`
	AgentAddress               string       `mapstructure:"agent_address" yaml:"agent_address"`
	TrapTargets                []TrapTarget `mapstructure:"trap_targets" yaml:"trap_targets"`

	Communities []CommunityConfig `mapstructure:"communities" yaml:"communities"`
	Users       []UserConfig      `mapstructure:"users" yaml:"users"`
	// UsersFile persists users added at runtime.
	UsersFile string `mapstructure:"users_file" yaml:"users_file"`

	Listen  ListenConfig  `mapstructure:"listen" yaml:"listen"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// TrapTarget is a notification destination.
type TrapTarget struct {
	Address       string `mapstructure:"address" yaml:"address"`
	Version       string `mapstructure:"version" yaml:"version"`
	SecurityName  string `mapstructure:"security_name" yaml:"security_name"`
	SecurityLevel string `mapstructure:"security_level" yaml:"security_level"`
	Inform        bool   `mapstructure:"inform" yaml:"inform"`
}

type CommunityConfig struct {
	Name         string   `mapstructure:"name" yaml:"name"`
	SecurityName string   `mapstructure:"security_name" yaml:"security_name"`
	ContextName  string   `mapstructure:"context_name" yaml:"context_name"`
	Versions     []string `mapstructure:"versions" yaml:"versions"`
	Sources      []string `mapstructure:"sources" yaml:"sources"`
}

type UserConfig struct {
	Name         string `mapstructure:"name" yaml:"name"`
	AuthProtocol string `mapstructure:"auth_protocol" yaml:"auth_protocol"`
	AuthPassword string `mapstructure:"auth_password" yaml:"auth_password"`
	PrivProtocol string `mapstructure:"priv_protocol" yaml:"priv_protocol"`
	PrivPassword string `mapstructure:"priv_password" yaml:"priv_password"`
}

type ListenConfig struct {
	UDP  []string   `mapstructure:"udp" yaml:"udp"`
	DTLS DTLSConfig `mapstructure:"dtls" yaml:"dtls"`
}

// DTLSConfig enables the DTLS transport with the Transport Security Model.
type DTLSConfig struct {
	Address  string              `mapstructure:"address" yaml:"address"`
	CertFile string              `mapstructure:"cert_file" yaml:"cert_file"`
	KeyFile  string              `mapstructure:"key_file" yaml:"key_file"`
	CAFile   string              `mapstructure:"ca_file" yaml:"ca_file"`
	Mappings []CertMappingConfig `mapstructure:"mappings" yaml:"mappings"`
	// UsePrefix sets snmpTsmConfigurationUsePrefix.
	UsePrefix bool `mapstructure:"use_prefix" yaml:"use_prefix"`
}

// CertMappingConfig is the configuration form of a CertMapping.
type CertMappingConfig struct {
	Type         string `mapstructure:"type" yaml:"type"`
	Fingerprint  string `mapstructure:"fingerprint" yaml:"fingerprint"`
	Hash         string `mapstructure:"hash" yaml:"hash"`
	SecurityName string `mapstructure:"security_name" yaml:"security_name"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return cfg
}

// ApplyDefaults fills zero values with defaults.
func ApplyDefaults(cfg *Config) {
	if len(cfg.Versions) == 0 {
		cfg.Versions = []string{"1", "2c", "3"}
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.RequestListCapacity == 0 {
		cfg.RequestListCapacity = DefaultRequestListCapacity
	}
	if cfg.USMCacheSize == 0 {
		cfg.USMCacheSize = DefaultUSMCacheSize
	}
	if cfg.TrapEnterprise == "" {
		cfg.TrapEnterprise = DefaultTrapEnterprise
	}
	if cfg.AgentAddress == "" {
		cfg.AgentAddress = "0.0.0.0"
	}
	if cfg.EngineBoots == 0 {
		cfg.EngineBoots = 1
	}
}

// Validate checks cfg for values the engine cannot run with.
func Validate(cfg *Config) error {
	var errs []error
	if cfg.EngineID != "" {
		if _, err := decodeEngineID(cfg.EngineID); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.MaxMessageSize < minMsgMaxSize {
		errs = append(errs, fmt.Errorf("max_message_size %d below %d", cfg.MaxMessageSize, minMsgMaxSize))
	}
	if cfg.RequestListCapacity < cfg.MaxMessageSize+poolHeaderSize+reqHeaderSize ||
		cfg.RequestListCapacity > MaxRequestListCapacity {
		errs = append(errs, fmt.Errorf("request_list_capacity %d out of range", cfg.RequestListCapacity))
	}
	if cfg.USMCacheSize < 1 {
		errs = append(errs, fmt.Errorf("usm_cache_size %d", cfg.USMCacheSize))
	}
	for _, v := range cfg.Versions {
		if _, err := ParseVersion(v); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range cfg.Communities {
		if _, err := c.community(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, u := range cfg.Users {
		if u.Name == "" || len(u.Name) > maxUserNameLength {
			errs = append(errs, fmt.Errorf("user name %q", u.Name))
		}
		if _, err := ParseAuthProtocol(u.AuthProtocol); err != nil {
			errs = append(errs, fmt.Errorf("user %q: %w", u.Name, err))
		}
		if _, err := ParsePrivProtocol(u.PrivProtocol); err != nil {
			errs = append(errs, fmt.Errorf("user %q: %w", u.Name, err))
		}
	}
	for _, t := range cfg.TrapTargets {
		if _, err := ParseVersion(t.Version); err != nil {
			errs = append(errs, fmt.Errorf("trap target %s: %w", t.Address, err))
		}
		if _, err := ParseSecurityLevel(t.SecurityLevel); err != nil {
			errs = append(errs, fmt.Errorf("trap target %s: %w", t.Address, err))
		}
	}
	for _, m := range cfg.Listen.DTLS.Mappings {
		if _, err := m.mapping(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// engineID decodes EngineID or generates one from a random UUID.
func (cfg *Config) engineID() ([]byte, error) {
	if cfg.EngineID == "" {
		cfg.EngineID = hex.EncodeToString(NewEngineID())
	}
	return decodeEngineID(cfg.EngineID)
}

func decodeEngineID(s string) ([]byte, error) {
	id, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("engine_id: %w", err)
	}
	if len(id) < minEngineIDLength || len(id) > maxEngineIDLength {
		return nil, fmt.Errorf("engine_id of %d octets", len(id))
	}
	return id, nil
}

// NewEngineID returns an RFC 3411 snmpEngineID in the octets format (5)
// holding a random UUID.
func NewEngineID() []byte {
	u := uuid.New()
	id := []byte{
		0x80 | byte(enterpriseNumber>>24), byte(enterpriseNumber >> 16),
		byte(enterpriseNumber >> 8), byte(enterpriseNumber & 0xff), 0x05,
	}
	return append(id, u[:]...)
}

// ParseVersion parses "1", "2c" or "3".
func ParseVersion(s string) (SnmpVersion, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.ToLower(s), "v")) {
	case "1":
		return Version1, nil
	case "2c", "2":
		return Version2c, nil
	case "3":
		return Version3, nil
	}
	return 0, fmt.Errorf("unknown snmp version %q", s)
}

// ParseSecurityLevel parses a security level name; empty is noAuthNoPriv.
func ParseSecurityLevel(s string) (SecurityLevel, error) {
	switch strings.ToLower(s) {
	case "", "noauthnopriv":
		return NoAuthNoPriv, nil
	case "authnopriv":
		return AuthNoPriv, nil
	case "authpriv":
		return AuthPriv, nil
	}
	return 0, fmt.Errorf("unknown security level %q", s)
}

func (c CommunityConfig) community() (Community, error) {
	out := Community{Name: c.Name, SecurityName: c.SecurityName, ContextName: c.ContextName}
	if c.Name == "" {
		return out, errors.New("community with empty name")
	}
	for _, v := range c.Versions {
		ver, err := ParseVersion(v)
		if err != nil || ver == Version3 {
			return out, fmt.Errorf("community %q: version %q", c.Name, v)
		}
		out.Versions = append(out.Versions, ver)
	}
	for _, src := range c.Sources {
		p, err := netip.ParsePrefix(src)
		if err != nil {
			addr, aerr := netip.ParseAddr(src)
			if aerr != nil {
				return out, fmt.Errorf("community %q: source %q: %w", c.Name, src, err)
			}
			p = netip.PrefixFrom(addr, addr.BitLen())
		}
		out.Sources = append(out.Sources, p)
	}
	return out, nil
}

// LoadConfig reads the configuration file at path, applies SNMPENGINE_
// environment overrides and defaults, and validates the result. An empty
// path loads defaults and the environment only.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SNMPENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{
		"engine_id", "engine_boots", "max_message_size", "request_list_capacity",
		"usm_cache_size", "authentication_failure_traps", "trap_enterprise",
		"agent_address", "users_file", "metrics.address", "listen.dtls.address",
	} {
		_ = v.BindEnv(key)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}
