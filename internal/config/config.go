// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Security      SecurityConfig      `mapstructure:"security"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	LLM           LLMConfig           `mapstructure:"llm"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Upload        UploadConfig        `mapstructure:"upload"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port    string `mapstructure:"port"`
	Mode    string `mapstructure:"mode"`
	Version string `mapstructure:"version"`
}

// DatabaseConfig 存储所有数据库连接的配置。
// Driver 为 mysql 或 sqlite；sqlite 用于单机部署。
type DatabaseConfig struct {
	Driver string       `mapstructure:"driver"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SQLiteConfig 存储 SQLite 数据库文件的位置。
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空时不启用 Redis。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。签名密钥来自 SecurityConfig.SecretKey。
type JWTConfig struct {
	AccessTokenExpireHours int `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int `mapstructure:"refresh_token_expire_days"`
}

// SecurityConfig 存储共享密钥，用于 JWT 签名和落盘加密的密钥派生。
type SecurityConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时文件提取同步执行。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL   string `mapstructure:"server_url"`
	OCRLanguage string `mapstructure:"ocr_language"`
}

// TranscriptionConfig 存储语音转写服务（Whisper 兼容接口）的配置。
type TranscriptionConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Language string `mapstructure:"language"`
}

// ElasticsearchConfig 存储审计镜像索引的配置。Addresses 为空时不启用。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// LLMConfig 存储本地推理服务（Ollama 兼容）的配置。
type LLMConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	DefaultModel string        `mapstructure:"default_model"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// RateLimitConfig 每个用户每个路由在 Window 内最多 Requests 次请求。
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// UploadConfig 存储上传大小限制（字节）。
type UploadConfig struct {
	MaxPDFSize   int64 `mapstructure:"max_pdf_size"`
	MaxImageSize int64 `mapstructure:"max_image_size"`
	MaxAudioSize int64 `mapstructure:"max_audio_size"`
}

func setDefaults(v *viper.Viper) {
	// 空字符串默认值让 AutomaticEnv 在 Unmarshal 时也能覆盖这些键
	for _, key := range []string{
		"security.secret_key", "database.mysql.dsn", "database.redis.addr",
		"database.redis.password", "kafka.brokers", "tika.server_url",
		"transcription.base_url", "transcription.api_key", "elasticsearch.addresses",
		"elasticsearch.username", "elasticsearch.password", "minio.endpoint",
		"minio.access_key_id", "minio.secret_access_key", "log.output_path",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.version", "1.0.0")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite.path", "praivio.db")
	v.SetDefault("jwt.access_token_expire_hours", 8)
	v.SetDefault("jwt.refresh_token_expire_days", 7)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.topic", "file-extraction")
	v.SetDefault("kafka.group_id", "praivio-extraction")
	v.SetDefault("tika.ocr_language", "deu+eng")
	v.SetDefault("transcription.model", "whisper-1")
	v.SetDefault("transcription.language", "de")
	v.SetDefault("elasticsearch.index_name", "praivio-audit")
	v.SetDefault("minio.bucket_name", "praivio")
	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.default_model", "llama2")
	v.SetDefault("llm.timeout", 5*time.Minute)
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", time.Hour)
	v.SetDefault("upload.max_pdf_size", 10*1024*1024)
	v.SetDefault("upload.max_image_size", 5*1024*1024)
	v.SetDefault("upload.max_audio_size", 25*1024*1024)
}

// Load 读取 YAML 文件并叠加 PRAIVIO_ 前缀的环境变量，例如
// PRAIVIO_LLM_BASE_URL 覆盖 llm.base_url。configPath 为空时只使用默认值和环境变量。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("praivio")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if c.Security.SecretKey == "" {
		return Config{}, fmt.Errorf("security.secret_key 不能为空")
	}
	return c, nil
}

// Init 初始化配置加载，结果写入全局 Conf。
func Init(configPath string) {
	c, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = c
}
