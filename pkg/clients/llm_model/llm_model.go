package llm_model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/ZeroAurora/XDU-PD25-School-Agent/config"
)

const (
	clientNameChatModel = "chat_model"
)

type ClientChatModel struct {
	config *Config
}

var (
	instance *ClientChatModel
	once     sync.Once
)

func GetInstance() *ClientChatModel {
	once.Do(func() {
		conf := &Config{
			Addr:        config.GetInstance().GetString(config.ClientChatModelAddr),
			Model:       config.GetInstance().GetString(config.ClientChatModelModel),
			Token:       config.GetModelAPIKey(),
			Temperature: cast.ToFloat32(config.GetInstance().GetFloat64(config.ClientChatModelTemperature)),
			MaxTokens:   config.GetInstance().GetInt(config.ClientChatModelMaxTokens),
		}

		instance = &ClientChatModel{
			config: conf,
		}
	})
	return instance
}

// NewClientWithConfig 按给定配置创建客户端（测试用）
func NewClientWithConfig(conf *Config) *ClientChatModel {
	return &ClientChatModel{config: conf}
}

func (zc *ClientChatModel) newAPIClient() *openai.Client {
	defaultReq := openai.DefaultConfig(zc.config.Token)
	if zc.config.Addr != "" {
		defaultReq.BaseURL = zc.config.Addr
	}
	return openai.NewClientWithConfig(defaultReq)
}

// PostChatCompletionsStream 创建流式调用，增量消费由调用方负责。
// 调用方必须 Close 返回的 stream。
func (zc *ClientChatModel) PostChatCompletionsStream(ctx context.Context, messages []openai.ChatCompletionMessage) (*openai.ChatCompletionStream, error) {
	client := zc.newAPIClient()

	stream, err := client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       zc.config.Model,
		Messages:    messages,
		MaxTokens:   zc.config.MaxTokens,
		Temperature: zc.config.Temperature,
		Stream:      true,
	})
	if err != nil {
		log.Errorf("%s stream creation error: %v", clientNameChatModel, err)
		return nil, err
	}

	return stream, nil
}

// PostChatCompletionsNonStream 封装非流式调用，直接返回完整结果
func (zc *ClientChatModel) PostChatCompletionsNonStream(c context.Context, messages []openai.ChatCompletionMessage) (*openai.ChatCompletionResponse, error) {
	client := zc.newAPIClient()

	request := openai.ChatCompletionRequest{
		Model:       zc.config.Model,
		Messages:    messages,
		MaxTokens:   zc.config.MaxTokens,
		Temperature: zc.config.Temperature,
		Stream:      false,
	}

	// debug 出完整的请求参数，json格式（仅在 debug 级别时序列化）
	if log.GetLevel() == log.DebugLevel {
		requestJson, err := json.MarshalIndent(request, "", "  ")
		if err != nil {
			log.Errorf("%s chat completion request json marshal error: %v", clientNameChatModel, err)
			return nil, err
		}
		// 直接输出格式化的 JSON 到标准输出，避免日志系统转义换行符
		if _, err := fmt.Fprintf(os.Stdout, "[DEBUG] %s chat completion request:\n%s\n", clientNameChatModel, string(requestJson)); err != nil {
			log.Warnf("%s failed to write debug output: %v", clientNameChatModel, err)
		}
	}

	response, err := client.CreateChatCompletion(c, request)
	if err != nil {
		log.Errorf("%s chat completion error: %v", clientNameChatModel, err)
		return nil, err
	}

	return &response, nil
}

// PostChatCompletionsNonStreamContent 封装非流式调用，只返回响应内容字符串
func (zc *ClientChatModel) PostChatCompletionsNonStreamContent(c context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	response, err := zc.PostChatCompletionsNonStream(c, messages)
	if err != nil {
		return "", err
	}

	if response == nil {
		log.Errorf("%s chat completion response is nil", clientNameChatModel)
		return "", fmt.Errorf("chat completion response is nil")
	}

	if len(response.Choices) == 0 {
		log.Errorf("%s chat completion response has no choices", clientNameChatModel)
		return "", fmt.Errorf("chat completion response has no choices")
	}

	content := response.Choices[0].Message.Content
	if content == "" {
		log.Warnf("%s chat completion response content is empty", clientNameChatModel)
	}

	return content, nil
}

// PostChatCompletionsJSON 结构化输出调用：约束模型只返回一个 JSON 对象并解析为 map
func (zc *ClientChatModel) PostChatCompletionsJSON(c context.Context, messages []openai.ChatCompletionMessage) (map[string]interface{}, error) {
	client := zc.newAPIClient()

	request := openai.ChatCompletionRequest{
		Model:       zc.config.Model,
		Messages:    messages,
		MaxTokens:   zc.config.MaxTokens,
		Temperature: zc.config.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	response, err := client.CreateChatCompletion(c, request)
	if err != nil {
		log.Errorf("%s json completion error: %v", clientNameChatModel, err)
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("json completion response has no choices")
	}

	var result map[string]interface{}
	content := response.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("json completion is not a valid object: %w, content: %s", err, content)
	}

	return result, nil
}
