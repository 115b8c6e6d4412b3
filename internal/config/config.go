package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/openclaw-sentinel/internal/ingest"
	"github.com/ajitpratap0/openclaw-sentinel/internal/scoring"
)

const (
	// DefaultAlertThreshold is the minimum score that triggers an alert.
	DefaultAlertThreshold = 75

	// DefaultMaxAlertsPerDay caps deliveries in any trailing 24 hours.
	DefaultMaxAlertsPerDay = 20

	// DefaultDigestWords is the soft word budget of the weekly digest.
	DefaultDigestWords = 250
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config holds all configuration for sentinel.
type Config struct {
	Account  AccountConfig  `mapstructure:"account" yaml:"account"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	Neo4j    Neo4jConfig    `mapstructure:"neo4j" yaml:"neo4j"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	NATS     NATSConfig     `mapstructure:"nats" yaml:"nats"`
	MCP      MCPConfig      `mapstructure:"mcp" yaml:"mcp"`
	Sources  SourcesConfig  `mapstructure:"sources" yaml:"sources"`
	Alerting AlertingConfig `mapstructure:"alerting" yaml:"alerting"`
	Scoring  scoring.Tables `mapstructure:"scoring" yaml:"scoring"`
	Digest   DigestConfig   `mapstructure:"digest" yaml:"digest"`
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
	Claude   ClaudeConfig   `mapstructure:"claude" yaml:"claude"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	API      APIConfig      `mapstructure:"api" yaml:"api"`
}

// AccountConfig identifies the monitored account.
type AccountConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	// Domain is the account's email domain, used to attribute stakeholders.
	Domain string `mapstructure:"domain" yaml:"domain"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	DSN         string `mapstructure:"dsn" yaml:"dsn"`
	MaxConns    int32  `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns    int32  `mapstructure:"min_conns" yaml:"min_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate" yaml:"auto_migrate"`
}

// Neo4jConfig holds settings for the entity graph projection.
type Neo4jConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	URI       string `mapstructure:"uri" yaml:"uri"`
	Username  string `mapstructure:"username" yaml:"username"`
	Password  string `mapstructure:"password" yaml:"password"`
	Database  string `mapstructure:"database" yaml:"database"`
	BatchSize int    `mapstructure:"batch_size" yaml:"batch_size"`
}

// RedisConfig holds settings for the distributed alert lock.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db" yaml:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl" yaml:"lock_ttl"`
}

// NATSConfig holds settings for change fan-out.
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
	Subject string `mapstructure:"subject" yaml:"subject"`
}

// MCPConfig holds the connection to the MCP server that fronts chat and wiki.
// Command launches a stdio server; URL selects streamable HTTP instead.
type MCPConfig struct {
	Command    string        `mapstructure:"command" yaml:"command"`
	Args       []string      `mapstructure:"args" yaml:"args"`
	URL        string        `mapstructure:"url" yaml:"url"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	Backoff    time.Duration `mapstructure:"backoff" yaml:"backoff"`
}

// Configured reports whether an MCP server is set up.
func (c MCPConfig) Configured() bool {
	return c.Command != "" || c.URL != ""
}

// SourcesConfig enables and configures the source adapters.
type SourcesConfig struct {
	Timeout time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	Chat    ChatSourceConfig  `mapstructure:"chat" yaml:"chat"`
	Wiki    WikiSourceConfig  `mapstructure:"wiki" yaml:"wiki"`
	Filings FilingsConfig     `mapstructure:"filings" yaml:"filings"`
	News    NewsSourceConfig  `mapstructure:"news" yaml:"news"`
	Files   FilesSourceConfig `mapstructure:"files" yaml:"files"`
}

// ChatSourceConfig configures chat search.
type ChatSourceConfig struct {
	Enabled  bool                    `mapstructure:"enabled" yaml:"enabled"`
	Query    string                  `mapstructure:"query" yaml:"query"`
	Limit    int                     `mapstructure:"limit" yaml:"limit"`
	Programs []ingest.ProgramKeyword `mapstructure:"programs" yaml:"programs"`
	// Extract runs the Claude extractor over each message.
	Extract bool `mapstructure:"extract" yaml:"extract"`
}

// WikiSourceConfig configures wiki page reads.
type WikiSourceConfig struct {
	Enabled   bool     `mapstructure:"enabled" yaml:"enabled"`
	PageIDs   []string `mapstructure:"page_ids" yaml:"page_ids"`
	SearchTag string   `mapstructure:"search_tag" yaml:"search_tag"`
	Programs  []string `mapstructure:"programs" yaml:"programs"`
}

// FilingsConfig configures the SEC EDGAR source.
type FilingsConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	CIK               string        `mapstructure:"cik" yaml:"cik"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Lookback          time.Duration `mapstructure:"lookback" yaml:"lookback"`
}

// NewsSourceConfig configures the RSS news source.
type NewsSourceConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	FeedURL  string        `mapstructure:"feed_url" yaml:"feed_url"`
	Limit    int           `mapstructure:"limit" yaml:"limit"`
	Lookback time.Duration `mapstructure:"lookback" yaml:"lookback"`
}

// FilesSourceConfig lists entity files read on every cycle.
type FilesSourceConfig struct {
	Paths []string `mapstructure:"paths" yaml:"paths"`
}

// AlertingConfig holds alert thresholds and delivery settings.
type AlertingConfig struct {
	Channel     string        `mapstructure:"channel" yaml:"channel"`
	Threshold   int           `mapstructure:"threshold" yaml:"threshold"`
	DedupWindow time.Duration `mapstructure:"dedup_window" yaml:"dedup_window"`
	MaxPerDay   int           `mapstructure:"max_per_day" yaml:"max_per_day"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	// DryRun logs alerts instead of sending them.
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`
}

// DigestConfig bounds the weekly digest.
type DigestConfig struct {
	Window   time.Duration `mapstructure:"window" yaml:"window"`
	MaxWords int           `mapstructure:"max_words" yaml:"max_words"`
}

// ScheduleConfig drives the serve command's scheduler.
type ScheduleConfig struct {
	CycleInterval  time.Duration `mapstructure:"cycle_interval" yaml:"cycle_interval"`
	DigestInterval time.Duration `mapstructure:"digest_interval" yaml:"digest_interval"`
	RunOnStart     bool          `mapstructure:"run_on_start" yaml:"run_on_start"`
}

// ClaudeConfig holds Anthropic Claude API settings.
type ClaudeConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	Model  string `mapstructure:"model" yaml:"model"`
}

// String returns a safe representation of ClaudeConfig with the API key masked.
func (c ClaudeConfig) String() string {
	masked := maskAPIKey(c.APIKey)
	return fmt.Sprintf("ClaudeConfig{APIKey:%s, Model:%s}", masked, c.Model)
}

// maskAPIKey shows first 4 + last 4 chars, replacing the middle with asterisks.
func maskAPIKey(key string) string {
	const visible = 4
	if key == "" {
		return ""
	}
	if len(key) <= visible*2 {
		return "***"
	}
	return key[:visible] + "****" + key[len(key)-visible:]
}

// maskDSN hides the password of a connection URL.
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return maskAPIKey(dsn)
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	ListenAddr  string   `mapstructure:"listen_addr" yaml:"listen_addr"`
	AuthToken   string   `mapstructure:"auth_token" yaml:"auth_token"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// Load reads configuration from file and environment variables. An empty
// configFile searches ~/.openclaw-sentinel and the working directory for
// config.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(homeDir(), ".openclaw-sentinel"))
		v.AddConfigPath(".")
	}

	// Environment variables
	v.SetEnvPrefix("OPENCLAW_SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map specific env vars
	_ = v.BindEnv("claude.api_key", "OPENCLAW_SENTINEL_CLAUDE_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("postgres.dsn", "OPENCLAW_SENTINEL_POSTGRES_DSN", "DATABASE_URL")
	_ = v.BindEnv("neo4j.password", "OPENCLAW_SENTINEL_NEO4J_PASSWORD", "NEO4J_PASSWORD")
	_ = v.BindEnv("redis.password", "OPENCLAW_SENTINEL_REDIS_PASSWORD", "REDIS_PASSWORD")
	_ = v.BindEnv("api.auth_token", "OPENCLAW_SENTINEL_API_AUTH_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK: use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.Scoring = mergeScoring(v, cfg.Scoring)
	if len(cfg.Sources.Chat.Programs) == 0 {
		cfg.Sources.Chat.Programs = ingest.DefaultProgramKeywords()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// mergeScoring overlays configured weights onto the defaults. Score maps merge
// per key; a configured tier list replaces the default list.
func mergeScoring(v *viper.Viper, configured scoring.Tables) scoring.Tables {
	t := scoring.DefaultTables()
	for k, score := range configured.BaseScores {
		t.BaseScores[k] = score
	}
	for k, score := range configured.ChangeTypeScores {
		t.ChangeTypeScores[k] = score
	}
	if v.IsSet("scoring.default_base") {
		t.DefaultBase = configured.DefaultBase
	}
	if v.IsSet("scoring.stakeholder_roles") {
		t.StakeholderRoles = configured.StakeholderRoles
	}
	if v.IsSet("scoring.program_status") {
		t.ProgramStatus = configured.ProgramStatus
	}
	if v.IsSet("scoring.risk_severity") {
		t.RiskSeverity = configured.RiskSeverity
	}
	if v.IsSet("scoring.event_categories") {
		t.EventCategories = configured.EventCategories
	}
	return t
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("account.name", "Account")
	v.SetDefault("account.domain", "")

	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 1)
	v.SetDefault("postgres.auto_migrate", true)

	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("neo4j.uri", "neo4j://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.database", "neo4j")
	v.SetDefault("neo4j.batch_size", 500)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", "30s")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "sentinel")

	v.SetDefault("mcp.command", "")
	v.SetDefault("mcp.url", "")
	v.SetDefault("mcp.timeout", "60s")
	v.SetDefault("mcp.max_retries", 3)
	v.SetDefault("mcp.backoff", "1s")

	v.SetDefault("sources.timeout", "5m")
	v.SetDefault("sources.chat.enabled", false)
	v.SetDefault("sources.chat.query", "")
	v.SetDefault("sources.chat.limit", 20)
	v.SetDefault("sources.chat.extract", false)
	v.SetDefault("sources.wiki.enabled", false)
	v.SetDefault("sources.wiki.search_tag", "")
	v.SetDefault("sources.filings.enabled", false)
	v.SetDefault("sources.filings.cik", "")
	v.SetDefault("sources.filings.user_agent", ingest.DefaultUserAgent)
	v.SetDefault("sources.filings.requests_per_second", 5)
	v.SetDefault("sources.filings.lookback", "2160h") // 90 days
	v.SetDefault("sources.news.enabled", false)
	v.SetDefault("sources.news.feed_url", "")
	v.SetDefault("sources.news.limit", 20)
	v.SetDefault("sources.news.lookback", "168h")

	v.SetDefault("alerting.channel", "")
	v.SetDefault("alerting.threshold", DefaultAlertThreshold)
	v.SetDefault("alerting.dedup_window", "24h")
	v.SetDefault("alerting.max_per_day", DefaultMaxAlertsPerDay)
	v.SetDefault("alerting.concurrency", 4)
	v.SetDefault("alerting.dry_run", false)

	v.SetDefault("digest.window", "168h")
	v.SetDefault("digest.max_words", DefaultDigestWords)

	v.SetDefault("schedule.cycle_interval", "72h")
	v.SetDefault("schedule.digest_interval", "168h")
	v.SetDefault("schedule.run_on_start", true)

	v.SetDefault("claude.model", "claude-haiku-4-5-20251001")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.auth_token", "")
}

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Account.Name) == "" {
		return fmt.Errorf("account.name must not be empty")
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required when store.backend is postgres")
		}
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendMemory, BackendPostgres, c.Store.Backend)
	}
	if c.Neo4j.Enabled && c.Neo4j.URI == "" {
		return fmt.Errorf("neo4j.uri is required when neo4j is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled")
	}
	if (c.Sources.Chat.Enabled || c.Sources.Wiki.Enabled) && !c.MCP.Configured() {
		return fmt.Errorf("mcp.command or mcp.url is required when the chat or wiki source is enabled")
	}
	if c.Sources.Chat.Extract && c.Claude.APIKey == "" {
		return fmt.Errorf("claude.api_key is required when sources.chat.extract is set")
	}
	if c.Sources.Filings.Enabled && c.Sources.Filings.CIK == "" {
		return fmt.Errorf("sources.filings.cik is required when the filings source is enabled")
	}
	if c.Sources.News.Enabled && c.Sources.News.FeedURL == "" {
		return fmt.Errorf("sources.news.feed_url is required when the news source is enabled")
	}
	if c.Alerting.Threshold < 0 || c.Alerting.Threshold > 100 {
		return fmt.Errorf("alerting.threshold must be between 0 and 100")
	}
	if c.Alerting.DedupWindow < 0 {
		return fmt.Errorf("alerting.dedup_window must be >= 0")
	}
	if c.Alerting.MaxPerDay < 0 {
		return fmt.Errorf("alerting.max_per_day must be >= 0")
	}
	if c.Alerting.Concurrency <= 0 {
		return fmt.Errorf("alerting.concurrency must be greater than 0")
	}
	if c.Digest.MaxWords <= 0 {
		return fmt.Errorf("digest.max_words must be greater than 0")
	}
	if c.Schedule.CycleInterval <= 0 || c.Schedule.DigestInterval <= 0 {
		return fmt.Errorf("schedule intervals must be greater than 0")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	for i, r := range c.Scoring.StakeholderRoles {
		if len(r.Values) == 0 {
			return fmt.Errorf("scoring.stakeholder_roles[%d] has no values", i)
		}
	}
	return nil
}

// Redacted returns a copy with secrets masked, suitable for display.
func (c Config) Redacted() Config {
	c.Claude.APIKey = maskAPIKey(c.Claude.APIKey)
	c.Postgres.DSN = maskDSN(c.Postgres.DSN)
	c.Neo4j.Password = maskAPIKey(c.Neo4j.Password)
	c.Redis.Password = maskAPIKey(c.Redis.Password)
	c.API.AuthToken = maskAPIKey(c.API.AuthToken)
	return c
}

// YAML renders the redacted configuration.
func (c Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return out, nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
