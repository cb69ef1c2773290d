package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	SQLite       SQLiteConfig
	Milvus       MilvusConfig
	Redis        RedisConfig
	ObjectStore  ObjectStoreConfig
	LLM          LLMConfig
	Ingestion    IngestionConfig
	Retrieval    RetrievalConfig
	Gaps         GapsConfig
	Conversation ConversationConfig
	Tiers        TierConfig
	Logging      LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type MilvusConfig struct {
	Endpoint       string
	CollectionName string
	VectorDim      int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type ObjectStoreConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	Bucket       string
	LegacyBucket string
	// Prefixes tried in order when the primary object key is missing.
	FallbackPrefixes []string
}

type LLMConfig struct {
	APIKey         string
	Model          string
	Temperature    float32
	MaxTokens      int
	EmbeddingModel string
	EmbeddingDim   int
}

type IngestionConfig struct {
	ChunkSize         int
	ChunkOverlap      int
	MinChunkSize      int
	EmergencyMinChunk int
	MinEmbedLength    int
	RunTimeoutSec     int
}

type RetrievalConfig struct {
	MaxVariants       int
	TopKPerVariant    int
	GeneralSectionCap int
	FallbackScore     float64
}

type GapsConfig struct {
	FollowUpHours int
	WebhookURL    string
}

type ConversationConfig struct {
	HistoryWindow int
}

// TierConfig carries the knowledge-tier keyword lists. Membership is a
// policy decision, so it lives in configuration rather than code.
type TierConfig struct {
	InternalSecureKeywords    []string
	ExternalAwarenessKeywords []string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/complyassist")

	viper.SetEnvPrefix("COMPLYASSIST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 52428800)

	viper.SetDefault("sqlite.path", "./data/complyassist.db")

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "compliance_chunks")
	viper.SetDefault("milvus.vectorDim", 1536)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("objectstore.endpoint", "localhost:9000")
	viper.SetDefault("objectstore.useSSL", false)
	viper.SetDefault("objectstore.bucket", "org-documents")
	viper.SetDefault("objectstore.legacyBucket", "documents-legacy")
	viper.SetDefault("objectstore.fallbackPrefixes", []string{"documents/", "uploads/"})

	viper.SetDefault("llm.model", "gpt-4")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-large")
	viper.SetDefault("llm.embeddingDim", 1536)

	viper.SetDefault("ingestion.chunkSize", 2000)
	viper.SetDefault("ingestion.chunkOverlap", 200)
	viper.SetDefault("ingestion.minChunkSize", 120)
	viper.SetDefault("ingestion.emergencyMinChunk", 30)
	viper.SetDefault("ingestion.minEmbedLength", 40)
	viper.SetDefault("ingestion.runTimeoutSec", 90)

	viper.SetDefault("retrieval.maxVariants", 6)
	viper.SetDefault("retrieval.topKPerVariant", 10)
	viper.SetDefault("retrieval.generalSectionCap", 5)
	viper.SetDefault("retrieval.fallbackScore", 0.5)

	viper.SetDefault("gaps.followUpHours", 48)
	viper.SetDefault("gaps.webhookURL", "")

	viper.SetDefault("conversation.historyWindow", 5)

	viper.SetDefault("tiers.internalSecureKeywords", []string{
		"governance", "audit", "criteria", "criterion", "scoring", "score",
		"maturity level", "maturity model", "control objective", "assessment",
	})
	viper.SetDefault("tiers.externalAwarenessKeywords", []string{
		"threat", "risk landscape", "intelligence", "advisory", "vulnerability",
		"incident report", "cve",
	})

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
