package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Milvus    MilvusConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Search    SearchConfig
	Router    RouterConfig
	Guardrail GuardrailConfig
	Feedback  FeedbackConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type MilvusConfig struct {
	Endpoint       string
	CollectionName string
	VectorDim      int
	TimeoutSec     int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	GuardrailModel string
	EmbeddingModel string
	EmbeddingDim   int
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
}

type SearchConfig struct {
	APIKey         string
	MaxResults     int
	TimeoutSec     int
	AllowedDomains []string
	ScrapeContent  bool
}

type RouterConfig struct {
	TopK                int
	SimilarityThreshold float64
}

type GuardrailConfig struct {
	Enabled        bool
	MinQuestionLen int
	MaxQuestionLen int
}

type FeedbackConfig struct {
	ResponseCacheSize int
	AnswerCacheTTLMin int
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
	viper.AddConfigPath("/etc/math-agent")

	viper.SetEnvPrefix("MATH_AGENT")
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

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate catches cross-section mistakes that would otherwise only surface
// as runtime failures deep in the pipeline.
func (c *Config) Validate() error {
	if c.LLM.EmbeddingDim != c.Milvus.VectorDim {
		return fmt.Errorf("llm.embeddingDim (%d) must match milvus.vectorDim (%d): the embedding model and the vector collection share one dimensionality",
			c.LLM.EmbeddingDim, c.Milvus.VectorDim)
	}
	if c.Router.SimilarityThreshold < 0 || c.Router.SimilarityThreshold > 1 {
		return fmt.Errorf("router.similarityThreshold (%f) must be in [0,1]", c.Router.SimilarityThreshold)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 60)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "math_knowledge")
	viper.SetDefault("milvus.vectorDim", 1536)
	viper.SetDefault("milvus.timeoutSec", 10)

	viper.SetDefault("sqlite.path", "./data/mathagent.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.baseURL", "https://openrouter.ai/api/v1")
	viper.SetDefault("llm.model", "openai/gpt-3.5-turbo")
	viper.SetDefault("llm.guardrailModel", "anthropic/claude-3-sonnet-20240229")
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.embeddingDim", 1536)
	viper.SetDefault("llm.temperature", 0.1)
	viper.SetDefault("llm.maxTokens", 1024)
	viper.SetDefault("llm.timeoutSec", 60)

	viper.SetDefault("search.maxResults", 5)
	viper.SetDefault("search.timeoutSec", 30)
	viper.SetDefault("search.allowedDomains", []string{
		"wikipedia.org",
		"mathworld.wolfram.com",
		"khanacademy.org",
		"brilliant.org",
		"math.stackexchange.com",
	})
	viper.SetDefault("search.scrapeContent", false)

	viper.SetDefault("router.topK", 3)
	// The similarity cutoff separating knowledge-base routing from web search.
	viper.SetDefault("router.similarityThreshold", 0.6)

	viper.SetDefault("guardrail.enabled", true)
	viper.SetDefault("guardrail.minQuestionLen", 3)
	viper.SetDefault("guardrail.maxQuestionLen", 4000)

	viper.SetDefault("feedback.responseCacheSize", 1024)
	viper.SetDefault("feedback.answerCacheTTLMin", 60)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
