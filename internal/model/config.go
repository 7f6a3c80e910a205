package model

import "time"

// Config is the full runtime configuration, built once at startup
type Config struct {
	Server        ServerConfig        `mapstructure:"server" yaml:"server"`
	Limits        LimitsConfig        `mapstructure:"limits" yaml:"limits"`
	HTTP          HTTPConfig          `mapstructure:"http" yaml:"http"`
	Evidence      EvidenceConfig      `mapstructure:"evidence" yaml:"evidence"`
	LLM           LLMConfig           `mapstructure:"llm" yaml:"llm"`
	Cache         CacheConfig         `mapstructure:"cache" yaml:"cache"`
	Store         StoreConfig         `mapstructure:"store" yaml:"store"`
	Identity      IdentityConfig      `mapstructure:"identity" yaml:"identity"`
	SelfReference SelfReferenceConfig `mapstructure:"self_reference" yaml:"self_reference"`
	Policy        PolicyConfig        `mapstructure:"policy" yaml:"policy"`
	Log           LogConfig           `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr" yaml:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	CORSOrigin     string        `mapstructure:"cors_origin" yaml:"cors_origin"`
}

type LimitsConfig struct {
	MaxTextChars     int   `mapstructure:"max_text_chars" yaml:"max_text_chars"`
	MaxURLChars      int   `mapstructure:"max_url_chars" yaml:"max_url_chars"`
	MaxPageTextChars int   `mapstructure:"max_page_text_chars" yaml:"max_page_text_chars"`
	MaxImageBytes    int64 `mapstructure:"max_image_bytes" yaml:"max_image_bytes"`
	MaxAudioBytes    int64 `mapstructure:"max_audio_bytes" yaml:"max_audio_bytes"`
}

type HTTPConfig struct {
	UserAgent     string        `mapstructure:"user_agent" yaml:"user_agent"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	MaxPageBytes  int64         `mapstructure:"max_page_bytes" yaml:"max_page_bytes"`
	MaxRedirects  int           `mapstructure:"max_redirects" yaml:"max_redirects"`
	HTTPProxy     string        `mapstructure:"http_proxy" yaml:"http_proxy"`
	HTTPSProxy    string        `mapstructure:"https_proxy" yaml:"https_proxy"`
	NoProxy       string        `mapstructure:"no_proxy" yaml:"no_proxy"`
	RespectRobots bool          `mapstructure:"respect_robots" yaml:"respect_robots"`
	HostRPS       float64       `mapstructure:"host_rps" yaml:"host_rps"`
	// Lets submitted URLs point at loopback and private addresses
	AllowPrivateNetworks bool `mapstructure:"allow_private_networks" yaml:"allow_private_networks"`
}

type EvidenceConfig struct {
	FactCheck     FactCheckConfig `mapstructure:"factcheck" yaml:"factcheck"`
	Search        SearchConfig    `mapstructure:"search" yaml:"search"`
	SourceTimeout time.Duration   `mapstructure:"source_timeout" yaml:"source_timeout"`
	MaxResults    int             `mapstructure:"max_results" yaml:"max_results"`
	RateLimit     float64         `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second per source
	Burst         int             `mapstructure:"burst" yaml:"burst"`
	MemoTTL       time.Duration   `mapstructure:"memo_ttl" yaml:"memo_ttl"`
}

type FactCheckConfig struct {
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint"`
	Language   string `mapstructure:"language" yaml:"language"`
	MaxAgeDays int64  `mapstructure:"max_age_days" yaml:"max_age_days"`
}

type SearchConfig struct {
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`
	CX       string `mapstructure:"cx" yaml:"cx"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

type LLMConfig struct {
	Provider           string        `mapstructure:"provider" yaml:"provider"` // openai, gemini, anthropic, ollama
	Model              string        `mapstructure:"model" yaml:"model"`
	APIKey             string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL            string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxTokens          int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature        float64       `mapstructure:"temperature" yaml:"temperature"`
	StrictEvidence     bool          `mapstructure:"strict_evidence" yaml:"strict_evidence"`
	TranscriptionModel string        `mapstructure:"transcription_model" yaml:"transcription_model"`
}

type CacheConfig struct {
	Window        time.Duration `mapstructure:"window" yaml:"window"`
	Backend       string        `mapstructure:"backend" yaml:"backend"` // memory, disk, redis, layered
	Dir           string        `mapstructure:"dir" yaml:"dir"`
	RedisAddr     string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" yaml:"redis_db"`
}

type StoreConfig struct {
	Backend        string `mapstructure:"backend" yaml:"backend"` // memory, postgres, sqlite, firestore
	DSN            string `mapstructure:"dsn" yaml:"dsn"`
	SQLitePath     string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	FirestoreProj  string `mapstructure:"firestore_project" yaml:"firestore_project"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start" yaml:"migrate_on_start"`
}

type IdentityConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	Issuer    string `mapstructure:"issuer" yaml:"issuer"`
	Audience  string `mapstructure:"audience" yaml:"audience"`
}

type SelfReferenceConfig struct {
	CanonicalURL string `mapstructure:"canonical_url" yaml:"canonical_url"` // empty disables the exemption
}

type PolicyConfig struct {
	Path string `mapstructure:"path" yaml:"path"` // empty uses the built-in policy
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // json or console
}

// DefaultConfig returns the configuration used when nothing overrides it
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 120 * time.Second,
			MaxBodyBytes:   48 << 20,
			CORSOrigin:     "*",
		},
		Limits: LimitsConfig{
			MaxTextChars:     5000,
			MaxURLChars:      2000,
			MaxPageTextChars: 4000,
			MaxImageBytes:    10 << 20,
			MaxAudioBytes:    25 << 20,
		},
		HTTP: HTTPConfig{
			UserAgent:     "credence/1.0 (+https://github.com/ppiankov/credence)",
			FetchTimeout:  10 * time.Second,
			MaxPageBytes:  5 << 20,
			MaxRedirects:  3,
			RespectRobots: true,
			HostRPS:       1,
		},
		Evidence: EvidenceConfig{
			FactCheck:     FactCheckConfig{MaxAgeDays: 0},
			SourceTimeout: 8 * time.Second,
			MaxResults:    5,
			RateLimit:     5,
			Burst:         5,
			MemoTTL:       30 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			Timeout:        60 * time.Second,
			MaxTokens:      1500,
			Temperature:    0.2,
			StrictEvidence: true,
		},
		Cache: CacheConfig{
			Window:  24 * time.Hour,
			Backend: "memory",
		},
		Store: StoreConfig{
			Backend:    "memory",
			SQLitePath: "credence.db",
		},
		SelfReference: SelfReferenceConfig{
			CanonicalURL: "https://preview--truth-len.lovable.app/",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
