package config

import "time"

// Store driver names
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Attachment driver / cleanup mode names
const (
	AttachmentLocal = "local"
	AttachmentMinIO = "minio"

	CleanupDirect = "direct"
	CleanupQueue  = "queue"
)

// Chat definition chat_service YAML structure
type Chat struct {
	Port       string           `mapstructure:"port"`
	PublicDir  string           `mapstructure:"public_dir"`
	Store      StoreConfig      `mapstructure:"store"`
	SQLite     SQLiteConfig     `mapstructure:"sqlite"`
	PostgreSQL DatabaseConfig   `mapstructure:"pg"`
	MongoSQL   DatabaseConfig   `mapstructure:"mongo"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Attachment AttachmentConfig `mapstructure:"attachment"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	RabbitMQ   RabbitMQConfig   `mapstructure:"rabbitmq"`
	Reaper     ReaperConfig     `mapstructure:"reaper"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
}

// CleanupWorker definition cleanup_worker YAML structure
type CleanupWorker struct {
	Attachment AttachmentConfig `mapstructure:"attachment"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	RabbitMQ   RabbitMQConfig   `mapstructure:"rabbitmq"`
}

// StoreConfig select message store backend
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// SQLiteConfig definition sqlite file
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	RedisDB int    `mapstructure:"redis_db"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// AttachmentConfig definition uploaded file storage
type AttachmentConfig struct {
	Driver      string `mapstructure:"driver"`
	Dir         string `mapstructure:"dir"`
	MaxUploadMB int    `mapstructure:"max_upload_mb"`
	Cleanup     string `mapstructure:"cleanup"`
}

// MinIOConfig definition minio setting
type MinIOConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	BucketName    string        `mapstructure:"bucket_name"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	RetryCount    int           `mapstructure:"retry_count"`
}

// RabbitMQConfig definition rabbitmq setting
type RabbitMQConfig struct {
	IP            string        `mapstructure:"ip"`
	Port          string        `mapstructure:"port"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	Queue         string        `mapstructure:"queue"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	RetryCount    int           `mapstructure:"retry_count"`
}

// ReaperConfig definition expired message cleanup
type ReaperConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Concurrency int           `mapstructure:"concurrency"`
	RunOnStart  bool          `mapstructure:"run_on_start"`
}

// WebSocketConfig definition websocket connection setting
type WebSocketConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval"`
	SendBuffer   int           `mapstructure:"send_buffer"`
}

// ApplyDefaults fill zero values with the service defaults
func (c *Chat) ApplyDefaults() {
	if c.Port == "" {
		c.Port = "10000"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "./data/messages.db"
	}
	c.Attachment.applyDefaults()
	if c.RabbitMQ.Queue == "" {
		c.RabbitMQ.Queue = "attachment_cleanup"
	}
	if c.Reaper.Interval <= 0 {
		c.Reaper.Interval = time.Hour
	}
	if c.Reaper.Concurrency <= 0 {
		c.Reaper.Concurrency = 8
	}
	if c.WebSocket.PingInterval <= 0 {
		c.WebSocket.PingInterval = 30 * time.Second
	}
	if c.WebSocket.SendBuffer <= 0 {
		c.WebSocket.SendBuffer = 64
	}
}

// ApplyDefaults fill zero values with the worker defaults
func (c *CleanupWorker) ApplyDefaults() {
	c.Attachment.applyDefaults()
	if c.RabbitMQ.Queue == "" {
		c.RabbitMQ.Queue = "attachment_cleanup"
	}
}

// MaxUploadBytes upload size limit in bytes
func (a AttachmentConfig) MaxUploadBytes() int64 {
	return int64(a.MaxUploadMB) * 1024 * 1024
}

func (a *AttachmentConfig) applyDefaults() {
	if a.Driver == "" {
		a.Driver = AttachmentLocal
	}
	if a.Dir == "" {
		a.Dir = "./uploads"
	}
	if a.MaxUploadMB <= 0 {
		a.MaxUploadMB = 40
	}
	if a.Cleanup == "" {
		a.Cleanup = CleanupDirect
	}
}
