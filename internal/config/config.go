package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone      = "UTC"
	configPathEnv        = "REGTRACKER_CONFIG"
	logLevelEnv          = "LOG_LEVEL"
	databaseDriverEnv    = "DATABASE_DRIVER"
	databaseDSNEnv       = "DATABASE_DSN"
	redisAddrEnv         = "REDIS_ADDR"
	redisPasswordEnv     = "REDIS_PASSWORD"
	chatGPTAPIKeyEnv     = "CHATGPT_API_KEY"
	chatGPTModelEnv      = "CHATGPT_MODEL"
	mlAPIKeyEnv          = "ML_API_KEY"
	telegramTokenEnv     = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv    = "TELEGRAM_CHAT_ID"
	elasticAddressesEnv  = "ELASTICSEARCH_ADDRESSES"
	elasticPasswordEnv   = "ELASTICSEARCH_PASSWORD"
	archiveAccessKeyEnv  = "ARCHIVE_ACCESS_KEY"
	archiveSecretKeyEnv  = "ARCHIVE_SECRET_KEY"
	kafkaBrokersEnv      = "KAFKA_BROKERS"
	httpAddrEnv          = "HTTP_ADDR"
	defaultMaxBodyRunes  = 20000
	defaultConcurrency   = 4
	defaultMinConfidence = 0.3
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig       `yaml:"logging"`
	Database      DatabaseConfig      `yaml:"database"`
	History       HistoryConfig       `yaml:"history"`
	Redis         RedisConfig         `yaml:"redis"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Normalizer    NormalizerConfig    `yaml:"normalizer"`
	Detector      DetectorConfig      `yaml:"detector"`
	Classifier    ClassifierConfig    `yaml:"classifier"`
	Impact        ImpactConfig        `yaml:"impact"`
	Notifications NotificationConfig  `yaml:"notifications"`
	ML            MLConfig            `yaml:"ml"`
	ChatGPT       ChatGPTConfig       `yaml:"chatgpt"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	HTTP          HTTPConfig          `yaml:"http"`
	MCP           MCPConfig           `yaml:"mcp"`
	Sites         []SiteConfig        `yaml:"sites"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig selects the SQL backend. Driver is "postgres", "sqlite" or "memory".
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// HistoryConfig picks where change history lives: "sql", "redis" or "memory".
type HistoryConfig struct {
	Backend string `yaml:"backend"`
}

// RedisConfig describes the Redis history backend.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// SchedulerConfig defines how often the pipeline runs in serve mode.
type SchedulerConfig struct {
	Interval time.Duration  `yaml:"interval"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// PipelineConfig bounds batch concurrency and external call latency.
type PipelineConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	FetchTimeout      time.Duration `yaml:"fetchTimeout"`
	SummarizerTimeout time.Duration `yaml:"summarizerTimeout"`
	SinkTimeout       time.Duration `yaml:"sinkTimeout"`
}

// NormalizerConfig limits document size.
type NormalizerConfig struct {
	MaxBodyRunes int `yaml:"maxBodyRunes"`
}

// DetectorConfig tunes revision diffing.
type DetectorConfig struct {
	SimilarityThreshold float64 `yaml:"similarityThreshold"`
	DiffWindowWords     int     `yaml:"diffWindowWords"`
	ExcerptLines        int     `yaml:"excerptLines"`
	LockStripes         int     `yaml:"lockStripes"`
}

// ClassifierConfig points to an optional YAML rule table.
type ClassifierConfig struct {
	RulesPath string `yaml:"rulesPath"`
}

// ImpactConfig points to the product catalog.
type ImpactConfig struct {
	CatalogPath   string  `yaml:"catalogPath"`
	MinConfidence float64 `yaml:"minConfidence"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BaseURL  string `yaml:"baseUrl"`
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	MinTier  string `yaml:"minTier"`
}

// MLConfig describes the inference service used as a fallback summarizer.
type MLConfig struct {
	InferenceURL string `yaml:"inferenceUrl"`
	APIKey       string `yaml:"apiKey"`
}

// ChatGPTConfig defines how to contact an OpenAI compatible API.
type ChatGPTConfig struct {
	BaseURL      string `yaml:"baseUrl"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
	RPM          int    `yaml:"rpm"`
	Burst        int    `yaml:"burst"`
}

// ElasticsearchConfig configures the dashboard index sink.
type ElasticsearchConfig struct {
	Addresses []string `yaml:"addresses"`
	Index     string   `yaml:"index"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
}

// ArchiveConfig configures the S3/MinIO assessment archive.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"useSsl"`
}

// KafkaConfig configures the assessment event topic.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// HTTPConfig holds the read API listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// MCPConfig names the MCP tool server.
type MCPConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// SiteConfig describes a single source with its scanner strategy.
type SiteConfig struct {
	Name      string            `yaml:"name"`
	Scanner   string            `yaml:"scanner"`
	Endpoints []EndpointConfig  `yaml:"endpoints"`
	Options   map[string]string `yaml:"options"`
}

// EndpointConfig holds one concrete URL to crawl for a source.
type EndpointConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
// An empty path falls back to the REGTRACKER_CONFIG variable.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			slog.Warn("config: cannot read file, falling back to defaults", "path", path, "error", err)
		} else {
			fileCfg := defaultConfig()
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				slog.Warn("config: cannot parse file, falling back to defaults", "path", path, "error", err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	cfg.clamp()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv(redisPasswordEnv); v != "" {
		c.Redis.Password = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(chatGPTAPIKeyEnv); v != "" {
		c.ChatGPT.APIKey = v
	}
	if v := os.Getenv(chatGPTModelEnv); v != "" {
		c.ChatGPT.Model = v
	}
	if v := os.Getenv(mlAPIKeyEnv); v != "" {
		c.ML.APIKey = v
	}

	if v := os.Getenv(elasticAddressesEnv); v != "" {
		c.Elasticsearch.Addresses = splitList(v)
	}
	if v := os.Getenv(elasticPasswordEnv); v != "" {
		c.Elasticsearch.Password = v
	}

	if v := os.Getenv(archiveAccessKeyEnv); v != "" {
		c.Archive.AccessKey = v
	}
	if v := os.Getenv(archiveSecretKeyEnv); v != "" {
		c.Archive.SecretKey = v
	}

	if v := os.Getenv(kafkaBrokersEnv); v != "" {
		c.Kafka.Brokers = splitList(v)
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		slog.Warn("config: unknown timezone, reverting to default", "timezone", tz, "default", defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

// clamp replaces values that would break the pipeline with defaults.
func (c *Config) clamp() {
	def := defaultConfig()
	if c.Pipeline.Concurrency < 1 {
		c.Pipeline.Concurrency = def.Pipeline.Concurrency
	}
	if c.Pipeline.FetchTimeout <= 0 {
		c.Pipeline.FetchTimeout = def.Pipeline.FetchTimeout
	}
	if c.Pipeline.SummarizerTimeout <= 0 {
		c.Pipeline.SummarizerTimeout = def.Pipeline.SummarizerTimeout
	}
	if c.Pipeline.SinkTimeout <= 0 {
		c.Pipeline.SinkTimeout = def.Pipeline.SinkTimeout
	}
	if c.Normalizer.MaxBodyRunes <= 0 {
		c.Normalizer.MaxBodyRunes = def.Normalizer.MaxBodyRunes
	}
	if c.Detector.SimilarityThreshold <= 0 || c.Detector.SimilarityThreshold > 1 {
		c.Detector.SimilarityThreshold = def.Detector.SimilarityThreshold
	}
	if c.Impact.MinConfidence < 0 || c.Impact.MinConfidence > 1 {
		c.Impact.MinConfidence = def.Impact.MinConfidence
	}
	if c.Scheduler.Interval <= 0 {
		c.Scheduler.Interval = def.Scheduler.Interval
	}
}

func mergeConfig(base, override Config) Config {
	merged := override

	// Sites replace the defaults only when the file lists any.
	if len(override.Sites) == 0 {
		merged.Sites = base.Sites
	}
	if len(override.Elasticsearch.Addresses) == 0 {
		merged.Elasticsearch.Addresses = base.Elasticsearch.Addresses
	}

	return merged
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "file:regtracker.db?_pragma=busy_timeout(5000)"},
		History:  HistoryConfig{Backend: "sql"},
		Redis:    RedisConfig{Addr: "localhost:6379", KeyPrefix: "regtracker"},
		Scheduler: SchedulerConfig{
			Interval: 6 * time.Hour,
			Timezone: defaultTimezone,
			location: tz,
		},
		Pipeline: PipelineConfig{
			Concurrency:       defaultConcurrency,
			FetchTimeout:      30 * time.Second,
			SummarizerTimeout: 20 * time.Second,
			SinkTimeout:       10 * time.Second,
		},
		Normalizer: NormalizerConfig{MaxBodyRunes: defaultMaxBodyRunes},
		Detector: DetectorConfig{
			SimilarityThreshold: 0.8,
			DiffWindowWords:     2000,
			ExcerptLines:        40,
			LockStripes:         256,
		},
		Impact: ImpactConfig{MinConfidence: defaultMinConfidence},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{BaseURL: "https://api.telegram.org", MinTier: "MEDIUM"},
		},
		ML: MLConfig{InferenceURL: "", APIKey: ""},
		ChatGPT: ChatGPTConfig{
			BaseURL:      "https://api.openai.com/v1",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You summarize regulatory publications for pharmaceutical compliance teams in at most three sentences.",
			RPM:          60,
			Burst:        2,
		},
		Elasticsearch: ElasticsearchConfig{Index: "regulatory-assessments"},
		Archive:       ArchiveConfig{Bucket: "regulatory-assessments"},
		Kafka:         KafkaConfig{Topic: "regulatory.assessments"},
		HTTP:          HTTPConfig{Addr: ":8080"},
		MCP:           MCPConfig{Name: "regtracker", Version: "1.0.0"},
		Sites: []SiteConfig{
			{
				Name:    "fda-press",
				Scanner: "rss",
				Endpoints: []EndpointConfig{
					{Name: "press-releases", URL: "https://www.fda.gov/about-fda/contact-fda/stay-informed/rss-feeds/press-releases/rss.xml"},
				},
			},
			{
				Name:    "fda-recalls",
				Scanner: "html",
				Endpoints: []EndpointConfig{
					{Name: "drug-recalls", URL: "https://www.fda.gov/drugs/drug-safety-and-availability/drug-recalls"},
				},
				Options: map[string]string{"limit": "10"},
			},
			{
				Name:    "openfda-enforcement",
				Scanner: "feed",
				Endpoints: []EndpointConfig{
					{Name: "drug-enforcement", URL: "https://api.fda.gov/drug/enforcement.json"},
				},
				Options: map[string]string{
					"id":       "recall_number",
					"title":    "product_description",
					"body":     "reason_for_recall",
					"date":     "report_date",
					"pageSize": "50",
				},
			},
		},
	}
}
