package config

import "time"

type AppConfig struct {
	APIPort     string `env:"PORT,required" envDefault:"12222"`
	APIKey      string `env:"API_KEY,required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	PodName     string `env:"POD_NAME" envDefault:"local"`
	Namespace   string `env:"POD_NAMESPACE" envDefault:"default"`
}

type DatabaseConfig struct {
	Host            string `env:"MAILSCOPE_POSTGRES_HOST,required"`
	Port            string `env:"MAILSCOPE_POSTGRES_PORT,required" envDefault:"5432"`
	User            string `env:"MAILSCOPE_POSTGRES_USER,required"`
	DBName          string `env:"MAILSCOPE_POSTGRES_DB_NAME,required"`
	Password        string `env:"MAILSCOPE_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"MAILSCOPE_POSTGRES_DB_MAX_CONN" envDefault:"100"`
	MaxIdleConn     int    `env:"MAILSCOPE_POSTGRES_DB_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"MAILSCOPE_POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"3600"`
	LogLevel        string `env:"MAILSCOPE_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"MAILSCOPE_POSTGRES_SSL_MODE" envDefault:"require"`
}

type IMAPConfig struct {
	MaxSessions    int           `env:"IMAP_MAX_SESSIONS" envDefault:"10"`
	AcquireTimeout time.Duration `env:"IMAP_ACQUIRE_TIMEOUT" envDefault:"30s"`
	DialTimeout    time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`
	CommandTimeout time.Duration `env:"IMAP_COMMAND_TIMEOUT" envDefault:"60s"`
}

type AnalyzerConfig struct {
	ProbesEnabled  bool          `env:"ANALYZER_PROBES_ENABLED" envDefault:"true"`
	ProbeTimeout   time.Duration `env:"ANALYZER_PROBE_TIMEOUT" envDefault:"5s"`
	TLSPort        int           `env:"ANALYZER_TLS_PORT" envDefault:"587"`
	SMTPPort       int           `env:"ANALYZER_SMTP_PORT" envDefault:"25"`
	ProbeCacheSize int           `env:"ANALYZER_PROBE_CACHE_SIZE" envDefault:"1024"`
	ProbeCacheTTL  time.Duration `env:"ANALYZER_PROBE_CACHE_TTL" envDefault:"1h"`
	ProbeRate      float64       `env:"ANALYZER_PROBE_RATE" envDefault:"5"`
	HeloName       string        `env:"ANALYZER_HELO_NAME" envDefault:"mailscope.local"`
}

type SyncConfig struct {
	DefaultBatchSize int           `env:"SYNC_DEFAULT_BATCH_SIZE" envDefault:"50"`
	DefaultMaxEmails int           `env:"SYNC_DEFAULT_MAX_EMAILS" envDefault:"0"`
	ShutdownTimeout  time.Duration `env:"SYNC_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	ArchiveRaw       bool          `env:"SYNC_ARCHIVE_RAW_MESSAGES" envDefault:"false"`
}

// R2StorageConfig is optional; the raw message archive is disabled when AccountID is empty.
type R2StorageConfig struct {
	AccountID        string `env:"CLOUDFLARE_R2_ACCOUNT_ID"`
	AccessKeyID      string `env:"CLOUDFLARE_R2_ACCESS_KEY_ID"`
	AccessKeySecret  string `env:"CLOUDFLARE_R2_ACCESS_KEY_SECRET"`
	RawMessageBucket string `env:"BUCKET_NAME_RAW_MESSAGES" envDefault:"raw-messages"`
}
