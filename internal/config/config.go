package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend modes.
const (
	ModeDatabase = "database"
	ModeRest     = "rest"
)

// Config holds all bridge configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Bridge       BridgeConfig       `mapstructure:"bridge"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Remote       RemoteConfig       `mapstructure:"remote"`
	Realms       RealmsConfig       `mapstructure:"realms"`
	Provisioning ProvisioningConfig `mapstructure:"provisioning"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Audit        AuditConfig        `mapstructure:"audit"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`
	// InternalSecret is the static bearer secret the IdP runtime presents
	// on every inbound call.
	InternalSecret string `mapstructure:"internal_secret"`
}

type BridgeConfig struct {
	// Mode selects the backend: "database" or "rest".
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`

	PoolSize int `mapstructure:"pool_size"`
	// ValidationQuery, when set, runs on every connection acquire.
	ValidationQuery string `mapstructure:"validation_query"`

	ConnectTimeoutMS int `mapstructure:"connect_timeout_ms"`
	IdleTimeoutMS    int `mapstructure:"idle_timeout_ms"`

	// AttributeMappings lists custom attribute sources in the form
	// "attributeName:table.column".
	AttributeMappings []string `mapstructure:"attribute_mappings"`
}

type RemoteConfig struct {
	BaseURL              string `mapstructure:"base_url"`
	AuthEndpoint         string `mapstructure:"auth_endpoint"`
	UserEndpoint         string `mapstructure:"user_endpoint"`
	CreateUserEndpoint   string `mapstructure:"create_user_endpoint"`
	CreateTenantEndpoint string `mapstructure:"create_tenant_endpoint"`
	TimeoutMS            int    `mapstructure:"timeout_ms"`
	// InsecureSkipVerify tolerates self-signed certificates. Honored in
	// development only; production configurations never disable
	// certificate validation.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
	// ServiceAccountUsername/Password authenticate provisioning calls when
	// no user token is available.
	ServiceAccountUsername string `mapstructure:"service_account_username"`
	ServiceAccountPassword string `mapstructure:"service_account_password"`
}

type RealmsConfig struct {
	// Enabled is the activation allow-list; empty enables every realm
	// except the administrative one.
	Enabled []string `mapstructure:"enabled"`
	// AdminRealm is the protected administrative realm (default "master").
	AdminRealm string `mapstructure:"admin_realm"`
}

type ProvisioningConfig struct {
	EnableUsers   bool `mapstructure:"enable_users"`
	EnableTenants bool `mapstructure:"enable_tenants"`
	// EmailDomain is appended to bare identifiers when synthesizing an
	// email address.
	EmailDomain string `mapstructure:"email_domain"`
}

type CacheConfig struct {
	ProfileTTLSeconds int `mapstructure:"profile_ttl_seconds"`
}

type AuditConfig struct {
	// Brokers empty disables audit event publishing.
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Load reads configuration from environment variables and an optional config
// file. Environment variables override file values. Prefix: IDBRIDGE_
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", "8091")
	v.SetDefault("server.env", "development")
	v.SetDefault("bridge.mode", ModeRest)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "erp")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.connect_timeout_ms", 30000)
	v.SetDefault("database.idle_timeout_ms", 600000)
	v.SetDefault("remote.base_url", "http://erp.local:8080/rest")
	v.SetDefault("remote.auth_endpoint", "/auth/token")
	v.SetDefault("remote.user_endpoint", "/services/getUserInfo")
	v.SetDefault("remote.create_user_endpoint", "/services/createUser")
	v.SetDefault("remote.create_tenant_endpoint", "/services/createPartyGroup")
	v.SetDefault("remote.timeout_ms", 5000)
	v.SetDefault("realms.admin_realm", "master")
	v.SetDefault("provisioning.enable_users", false)
	v.SetDefault("provisioning.enable_tenants", false)
	v.SetDefault("provisioning.email_domain", "example.com")
	v.SetDefault("cache.profile_ttl_seconds", 60)
	v.SetDefault("audit.topic", "idbridge-audit")

	// Environment variables (e.g. BRIDGE_MODE -> bridge.mode)
	v.SetEnvPrefix("IDBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Also support simple env vars without prefix for Docker Compose convenience
	v.BindEnv("bridge.mode", "BRIDGE_MODE")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.name", "DB_NAME")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("remote.base_url", "ERP_BASE_URL")
	v.BindEnv("remote.service_account_username", "ERP_SERVICE_ACCOUNT_USERNAME")
	v.BindEnv("remote.service_account_password", "ERP_SERVICE_ACCOUNT_PASSWORD")
	v.BindEnv("audit.brokers", "KAFKA_BROKERS")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.internal_secret", "INTERNAL_SECRET")

	// Try loading config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // Not required

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations that would produce a broken bridge.
// Everything here is a fatal construction-time error, never silently
// defaulted.
func (c *Config) Validate() error {
	switch c.Bridge.Mode {
	case ModeDatabase, ModeRest:
	default:
		return fmt.Errorf("bridge.mode must be %q or %q, got %q", ModeDatabase, ModeRest, c.Bridge.Mode)
	}

	if c.Bridge.Mode == ModeRest {
		if strings.TrimSpace(c.Remote.BaseURL) == "" {
			return fmt.Errorf("remote.base_url is required in rest mode")
		}
		if _, err := url.ParseRequestURI(c.Remote.BaseURL); err != nil {
			return fmt.Errorf("remote.base_url is not a valid URL: %w", err)
		}
		if strings.TrimSpace(c.Remote.AuthEndpoint) == "" {
			return fmt.Errorf("remote.auth_endpoint is required in rest mode")
		}
		if strings.TrimSpace(c.Remote.UserEndpoint) == "" {
			return fmt.Errorf("remote.user_endpoint is required in rest mode")
		}
		if c.Remote.TimeoutMS <= 0 {
			return fmt.Errorf("remote.timeout_ms must be positive, got %d", c.Remote.TimeoutMS)
		}
	}

	if c.Bridge.Mode == ModeDatabase {
		if c.Database.PoolSize <= 0 {
			return fmt.Errorf("database.pool_size must be positive, got %d", c.Database.PoolSize)
		}
		for _, m := range c.Database.AttributeMappings {
			if !strings.Contains(m, ":") {
				return fmt.Errorf("database.attribute_mappings entry %q must be 'attributeName:table.column'", m)
			}
		}
	}

	if c.Cache.ProfileTTLSeconds <= 0 {
		return fmt.Errorf("cache.profile_ttl_seconds must be positive, got %d", c.Cache.ProfileTTLSeconds)
	}

	return nil
}

// ProfileTTL returns the snapshot lifetime as a duration.
func (c *Config) ProfileTTL() time.Duration {
	return time.Duration(c.Cache.ProfileTTLSeconds) * time.Second
}

// RemoteTimeout returns the outbound HTTP timeout as a duration.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutMS) * time.Millisecond
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + strconv.Itoa(d.Port) +
		" dbname=" + d.Name +
		" user=" + d.User +
		" password=" + d.Password +
		" sslmode=disable"
}
