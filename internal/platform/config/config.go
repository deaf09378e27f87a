package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を表現します。
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Logging     LoggingConfig     `yaml:"logging"`
	Offboarding OffboardingConfig `yaml:"offboarding"`
	Outbox      OutboxConfig      `yaml:"outbox"`
	SMTP        SMTPConfig        `yaml:"smtp"`
	Identity    IdentityConfig    `yaml:"identity"`
}

// ServerConfig は gRPC サーバーに関する設定です。
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// DatabaseConfig は PostgreSQL 接続に関する設定です。
type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	SSLMode            string        `yaml:"ssl_mode"`
	ApplicationName    string        `yaml:"application_name"`
	MaxOpenConns       int           `yaml:"max_open_conns"`
	MaxIdleConns       int           `yaml:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `yaml:"-"`
	ConnMaxIdleTime    time.Duration `yaml:"-"`
	ConnMaxLifetimeRaw string        `yaml:"conn_max_lifetime"`
	ConnMaxIdleTimeRaw string        `yaml:"conn_max_idle_time"`
}

// LoggingConfig は slog の出力設定です。
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// OffboardingConfig は退職エンジンの挙動設定です。
type OffboardingConfig struct {
	PreventConcurrentRuns bool   `yaml:"prevent_concurrent_runs"`
	LinkPrefix            string `yaml:"link_prefix"`
}

// 副作用の配送モード。
const (
	OutboxModeSync  = "sync"
	OutboxModeAsync = "async"
)

// OutboxConfig は通知と監査の配送設定です。
type OutboxConfig struct {
	Mode            string        `yaml:"mode"`
	MaxAttempts     int           `yaml:"max_attempts"`
	BufferSize      int           `yaml:"buffer_size"`
	RetryBackoff    time.Duration `yaml:"-"`
	RetryBackoffRaw string        `yaml:"retry_backoff"`
}

// SMTPConfig はメール通知の設定です。Host が空の場合メール通知は無効です。
// LinkBaseURL は本文中の通知リンクを絶対 URL にするための接頭辞です。
type SMTPConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	From        string `yaml:"from"`
	LinkBaseURL string `yaml:"link_base_url"`
}

// Enabled はメール通知が設定されているかを返します。
func (s SMTPConfig) Enabled() bool {
	return s.Host != ""
}

// IdentityConfig は SCIM によるアカウント停止の設定です。BaseURL が空の場合は停止を行いません。
type IdentityConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// Enabled は SCIM エンドポイントが設定されているかを返します。
func (i IdentityConfig) Enabled() bool {
	return i.BaseURL != ""
}

// Load は指定されたパスから設定ファイルを読み込みます。${VAR} 形式の環境変数は展開されます。
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := cfg.validateAndNormalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validateAndNormalize() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("config: server.listen_addr must be set")
	}

	if err := c.Database.validateAndNormalize(); err != nil {
		return err
	}
	if err := c.Logging.validateAndNormalize(); err != nil {
		return err
	}
	if err := c.Outbox.validateAndNormalize(); err != nil {
		return err
	}
	if err := c.SMTP.validateAndNormalize(); err != nil {
		return err
	}
	if err := c.Identity.validateAndNormalize(); err != nil {
		return err
	}

	if c.Offboarding.LinkPrefix == "" {
		c.Offboarding.LinkPrefix = "/offboarding/runs/"
	}

	return nil
}

func (d *DatabaseConfig) validateAndNormalize() error {
	if d.Host == "" {
		return fmt.Errorf("config: database.host must be set")
	}
	if d.Port == 0 {
		return fmt.Errorf("config: database.port must be set")
	}
	if d.User == "" {
		return fmt.Errorf("config: database.user must be set")
	}
	if d.Password == "" {
		return fmt.Errorf("config: database.password must be set")
	}
	if d.Name == "" {
		return fmt.Errorf("config: database.name must be set")
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.ApplicationName == "" {
		d.ApplicationName = "offboarding-engine"
	}

	lifetime, err := parseDurationAllowEmpty(d.ConnMaxLifetimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_lifetime: %w", err)
	}
	d.ConnMaxLifetime = lifetime

	idleTime, err := parseDurationAllowEmpty(d.ConnMaxIdleTimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_idle_time: %w", err)
	}
	d.ConnMaxIdleTime = idleTime

	return nil
}

func (l *LoggingConfig) validateAndNormalize() error {
	l.Level = strings.ToLower(strings.TrimSpace(l.Level))
	if l.Level == "" {
		l.Level = "info"
	}
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.level %q is not supported", l.Level)
	}

	l.Format = strings.ToLower(strings.TrimSpace(l.Format))
	if l.Format == "" {
		l.Format = "text"
	}
	if l.Format != "text" && l.Format != "json" {
		return fmt.Errorf("config: logging.format %q is not supported", l.Format)
	}
	return nil
}

func (o *OutboxConfig) validateAndNormalize() error {
	o.Mode = strings.ToLower(strings.TrimSpace(o.Mode))
	if o.Mode == "" {
		o.Mode = OutboxModeSync
	}
	if o.Mode != OutboxModeSync && o.Mode != OutboxModeAsync {
		return fmt.Errorf("config: outbox.mode %q is not supported", o.Mode)
	}
	if o.MaxAttempts < 0 {
		return fmt.Errorf("config: outbox.max_attempts must not be negative")
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 3
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 256
	}

	backoff, err := parseDurationAllowEmpty(o.RetryBackoffRaw)
	if err != nil {
		return fmt.Errorf("config: outbox.retry_backoff: %w", err)
	}
	if o.RetryBackoffRaw == "" {
		backoff = 200 * time.Millisecond
	}
	o.RetryBackoff = backoff
	return nil
}

func (s *SMTPConfig) validateAndNormalize() error {
	if !s.Enabled() {
		return nil
	}
	if s.Port == 0 {
		s.Port = 587
	}
	if s.From == "" {
		return fmt.Errorf("config: smtp.from must be set when smtp.host is configured")
	}
	return nil
}

func (i *IdentityConfig) validateAndNormalize() error {
	if !i.Enabled() {
		return nil
	}
	u, err := url.Parse(i.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: identity.base_url %q is not a valid URL", i.BaseURL)
	}
	i.BaseURL = strings.TrimRight(i.BaseURL, "/")

	timeout, err := parseDurationAllowEmpty(i.TimeoutRaw)
	if err != nil {
		return fmt.Errorf("config: identity.timeout: %w", err)
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	i.Timeout = timeout
	return nil
}

func parseDurationAllowEmpty(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	return d, nil
}

// DSN は pgx 用の接続文字列を返します。認証情報は URL エスケープされます。
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + strconv.Itoa(d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}
