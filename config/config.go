// Package config loads the environment-variable surface of the pipeline
// into typed structs, one per adapter/component, consumed by each package's
// functional-option constructors. Business logic never reads the
// environment directly.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/trpc-group/compliance-rag/log"
)

// Config is the fully loaded, typed configuration surface.
type Config struct {
	Redis   RedisConfig
	MySQL   MySQLConfig
	ES      ESConfig
	Neo4j   Neo4jConfig
	LLM     LLMConfig
	Scenes  ScenesConfig
	Prompt  PromptConfig
	Flags   FeatureFlags
	Logging LoggingConfig
}

// RedisConfig configures the L1 session cache.
type RedisConfig struct {
	Enabled bool
	URL     string
}

// MySQLConfig configures the authoritative row store.
type MySQLConfig struct {
	DSN string
}

// ESConfig configures the Elasticsearch text index.
type ESConfig struct {
	Addresses         []string
	Username          string
	Password          string
	CypherIndex       string // few-shot examples, default qa_system
	KnowledgeIndex    string // passages, default kb_vector_store
	ConversationIndex string // messages, default conversation_history
}

// Neo4jConfig configures the graph engine.
type Neo4jConfig struct {
	Enabled  bool
	URI      string
	Username string
	Password string
}

// LLMConfig configures the default LLM endpoint plus per-scenario overrides.
type LLMConfig struct {
	BaseURL    string
	APIKey     string
	ModelName  string
	Timeout    time.Duration
	MaxRetries int
	Provider   string // "openai" | "anthropic"
}

// ScenarioLLM holds per-call-site model/temperature/max_tokens overrides.
type ScenarioLLM struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// ScenesConfig groups the per-scenario LLM overrides named in the spec:
// intent recognition, query generation, chat generation, summary
// generation, citation matching, router.
type ScenesConfig struct {
	IntentRecognition ScenarioLLM
	QueryGeneration   ScenarioLLM
	ChatGeneration    ScenarioLLM
	SummaryGeneration ScenarioLLM
	CitationMatching  ScenarioLLM
	Router            ScenarioLLM
}

// PromptConfig groups the configurable template strings.
type PromptConfig struct {
	SystemPrompt              string
	RouterPrompt              string
	IntentPrompt              string
	QueryGenerationPrompt     string
	AugmentedAnswerTemplate   string
	SummaryPrompt             string
	CitationMatchingPrompt   string
}

// FeatureFlags groups the boolean switches named in the spec.
type FeatureFlags struct {
	RedisEnabled             bool
	Neo4jEnabled             bool
	KnowledgeMatchingEnabled bool
	IntentParserEnabled      bool
	KnowledgeRetrievalEnabled bool
}

// LoggingConfig groups logging env keys.
type LoggingConfig struct {
	Level     string
	FilePath  string
	Rotation  string
	Retention string
}

// Load reads a .env file (if present, ignored if missing) via godotenv, then
// overlays process environment variables, producing a fully typed Config
// with the defaults named in the spec.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("config: .env load: %v", err)
	}

	c := &Config{
		Redis: RedisConfig{
			Enabled: getBool("REDIS_ENABLED", true),
			URL:     getString("REDIS_URL", "redis://localhost:6379/0"),
		},
		MySQL: MySQLConfig{
			DSN: getString("MYSQL_DSN", "root@tcp(127.0.0.1:3306)/compliance_rag?parseTime=true"),
		},
		ES: ESConfig{
			Addresses:         getStringList("ES_ADDRESSES", []string{"http://localhost:9200"}),
			Username:          getString("ES_USERNAME", ""),
			Password:          getString("ES_PASSWORD", ""),
			CypherIndex:       getString("ES_CYPHER_INDEX", "qa_system"),
			KnowledgeIndex:    getString("ES_KNOWLEDGE_INDEX", "kb_vector_store"),
			ConversationIndex: getString("ES_CONVERSATION_INDEX", "conversation_history"),
		},
		Neo4j: Neo4jConfig{
			Enabled:  getBool("NEO4J_ENABLED", true),
			URI:      getString("NEO4J_URI", "neo4j://localhost:7687"),
			Username: getString("NEO4J_USERNAME", "neo4j"),
			Password: getString("NEO4J_PASSWORD", ""),
		},
		LLM: LLMConfig{
			BaseURL:    getString("LLM_BASE_URL", "https://api.openai.com/v1"),
			APIKey:     getString("LLM_API_KEY", ""),
			ModelName:  getString("LLM_MODEL_NAME", "gpt-4o-mini"),
			Timeout:    getDuration("LLM_TIMEOUT", 120*time.Second),
			MaxRetries: getInt("LLM_MAX_RETRIES", 3),
			Provider:   getString("LLM_PROVIDER", "openai"),
		},
		Scenes: ScenesConfig{
			IntentRecognition: scenarioFromEnv("INTENT_RECOGNITION", 0, 500),
			QueryGeneration:   scenarioFromEnv("QUERY_GENERATION", 0, 800),
			ChatGeneration:    scenarioFromEnv("CHAT_GENERATION", 0.3, 2000),
			SummaryGeneration: scenarioFromEnv("SUMMARY_GENERATION", 0.2, 800),
			CitationMatching:  scenarioFromEnv("CITATION_MATCHING", 0, 1000),
			Router:            scenarioFromEnv("ROUTER", 0, 500),
		},
		Prompt: PromptConfig{
			SystemPrompt:            getString("PROMPT_SYSTEM", defaultSystemPrompt),
			RouterPrompt:            getString("PROMPT_ROUTER", defaultRouterPrompt),
			IntentPrompt:            getString("PROMPT_INTENT", defaultIntentPrompt),
			QueryGenerationPrompt:   getString("PROMPT_QUERY_GENERATION", defaultQueryGenerationPrompt),
			AugmentedAnswerTemplate: getString("PROMPT_AUGMENTED_ANSWER", defaultAugmentedAnswerTemplate),
			SummaryPrompt:           getString("PROMPT_SUMMARY", defaultSummaryPrompt),
			CitationMatchingPrompt:  getString("PROMPT_CITATION_MATCHING", defaultCitationPrompt),
		},
		Flags: FeatureFlags{
			RedisEnabled:              getBool("REDIS_ENABLED", true),
			Neo4jEnabled:              getBool("NEO4J_ENABLED", true),
			KnowledgeMatchingEnabled:  getBool("KNOWLEDGE_MATCHING_ENABLED", true),
			IntentParserEnabled:       getBool("INTENT_PARSER_ENABLED", true),
			KnowledgeRetrievalEnabled: getBool("KNOWLEDGE_RETRIEVAL_ENABLED", true),
		},
		Logging: LoggingConfig{
			Level:     getString("LOG_LEVEL", "info"),
			FilePath:  getString("LOG_FILE_PATH", ""),
			Rotation:  getString("LOG_ROTATION", ""),
			Retention: getString("LOG_RETENTION", ""),
		},
	}
	return c, nil
}

func scenarioFromEnv(prefix string, defaultTemp float64, defaultMaxTokens int) ScenarioLLM {
	return ScenarioLLM{
		Model:       getString(prefix+"_MODEL", ""),
		Temperature: getFloat(prefix+"_TEMPERATURE", defaultTemp),
		MaxTokens:   getInt(prefix+"_MAX_TOKENS", defaultMaxTokens),
	}
}

func getString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getStringList(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	out := []string{}
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func getBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
