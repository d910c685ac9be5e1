package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/ZeroAurora/XDU-PD25-School-Agent/constant"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/pkg/file"
)

const (
	OSConfigPath      = "CONFIG_PATH"
	DefaultConfigName = "config.yaml"
	TypeYaml          = "yaml"
	ProjectName       = "XDU-PD25-School-Agent"

	ApplicationLogRequest = "app.log.request"
	AppLogLevel           = "app.log.level"
	AppLogReportcaller    = "app.log.reportcaller"
	AppHost               = "app.host"

	ClientsCommonRequestLog = "clients.http.requestLog" // pkg/clients http client 是否打印请求

	// 大模型调用配置
	ClientChatModelAddr        = "clients.llmModel.addr"
	ClientChatModelModel       = "clients.llmModel.model"
	ClientChatModelTemperature = "clients.llmModel.temperature"
	ClientChatModelMaxTokens   = "clients.llmModel.maxTokens"

	// Embedding 客户端配置键
	EmbeddingConfigKeyModelName = "clients.embedding.model_name"
	EmbeddingConfigKeyBaseURL   = "clients.embedding.base_url"

	// Chroma 向量库配置
	ChromaConfigKeyAddr       = "clients.chroma.addr"
	ChromaConfigKeyCollection = "clients.chroma.collection"
	ChromaConfigKeyTimeout    = "clients.chroma.timeout" // 秒
	ChromaConfigKeyToken      = "clients.chroma.token"   // 可选，服务端开启鉴权时配置

	// redis 配置（会话记忆，可选）
	RedisClientDb       = "clients.redisClient.db"
	RedisClientHost     = "clients.redisClient.host"
	RedisClientPassword = "clients.redisClient.password"

	// 检索与对话配置
	ChatDefaultTopK     = "chat.default_top_k"
	ChatHistoryMaxTurns = "chat.history.max_turns"
	ChatHistoryMaxChars = "chat.history.max_chars"
	ChatExtractWorkers  = "chat.extract.workers"

	// 文档切分配置
	RagChunkSize    = "rag.chunk_size"
	RagChunkOverlap = "rag.chunk_overlap"
)

// API key 环境变量，不进配置文件
const (
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvEmbeddingAPIKey = "EMBEDDING_API_KEY"
)

var instance *config
var once sync.Once

type config struct {
	*viper.Viper
}

func GetInstance() *config {
	once.Do(func() {
		var configPath string

		envConfigPath := os.Getenv(OSConfigPath)
		if strings.EqualFold(envConfigPath, constant.EmptyString) {
			configPath = fmt.Sprintf("./%v", DefaultConfigName)
			if !file.CheckFileIsExist(configPath) {
				path, err := os.Getwd()
				if err != nil {
					panic("get config path error:" + err.Error())
				}
				configPath = fmt.Sprintf("%v/%v", path[:strings.Index(path, ProjectName)+len(ProjectName)], DefaultConfigName)
			}
			log.Infof("use default path %s", configPath)
		} else {
			log.Infof("find success in constant CONFIG_PATH, use %s", envConfigPath)
			configPath = fmt.Sprintf("%v/%v", envConfigPath, DefaultConfigName)
		}

		configInstance := &config{Viper: viper.New()}
		configInstance.SetConfigType(TypeYaml)
		configInstance.SetConfigFile(configPath)
		if err := configInstance.ReadInConfig(); err != nil {
			panic(err)
		}

		configInstance.AutomaticEnv()
		replacer := strings.NewReplacer(".", "_")
		configInstance.SetEnvKeyReplacer(replacer)

		instance = configInstance
	})
	return instance
}

// GetModelAPIKey 大模型 API key，只从环境变量读取
func GetModelAPIKey() string {
	return os.Getenv(EnvOpenAIAPIKey)
}

// GetEmbeddingAPIKey Embedding API key，未设置时回退到大模型的 key
func GetEmbeddingAPIKey() string {
	if key := os.Getenv(EnvEmbeddingAPIKey); key != "" {
		return key
	}
	return os.Getenv(EnvOpenAIAPIKey)
}

func (c *config) GetString(key string) string {
	return c.Viper.GetString(key)
}

func (c *config) GetStringOrDefault(key string, defaultValue string) string {
	if c.IsSet(key) {
		return c.GetString(key)
	}

	return defaultValue
}

func (c *config) GetInt(key string) int {
	return c.Viper.GetInt(key)
}

func (c *config) GetIntOrDefault(key string, defaultValue int) int {
	if c.IsSet(key) {
		return c.GetInt(key)
	}

	return defaultValue
}

func (c *config) GetBool(key string) bool {
	return c.Viper.GetBool(key)
}

func (c *config) GetBoolOrDefault(key string, defaultValue bool) bool {
	if c.IsSet(key) {
		return c.GetBool(key)
	}

	return defaultValue
}

func (c *config) GetFloat64(key string) float64 {
	return c.Viper.GetFloat64(key)
}

func (c *config) GetFloat64OrDefault(key string, defaultValue float64) float64 {
	if c.IsSet(key) {
		return c.GetFloat64(key)
	}

	return defaultValue
}
