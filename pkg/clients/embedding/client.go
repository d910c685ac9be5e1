package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	log "github.com/sirupsen/logrus"

	"github.com/ZeroAurora/XDU-PD25-School-Agent/config"
)

const (
	// MaxBatchSize 每批最多处理的数量
	MaxBatchSize = 64
	// MaxRetries 最大重试次数
	MaxRetries = 3
	// RetryBackoffInitial 首次重试等待
	RetryBackoffInitial = 4 * time.Second
	// RetryBackoffCap 重试等待上限
	RetryBackoffCap = 10 * time.Second
	// LRUCacheCapacity LRU 缓存容量
	LRUCacheCapacity = 5000
	// DefaultDimension 维度探测也失败时零向量的兜底维度
	DefaultDimension = 1024

	dimensionProbeText = "dimension test"
)

var (
	instance *Client
	once     sync.Once
	initErr  error
)

// Client Embedding 客户端。维度在首次探测后缓存，换模型需要新建实例。
type Client struct {
	client    openai.Client
	modelName string
	cache     *LRUCache // embedding 缓存
	metrics   *Metrics  // 指标统计

	dimMu sync.Mutex
	dim   int // 懒加载的向量维度，0 表示未探测
}

// Metrics 指标统计
type Metrics struct {
	IngestCount      int64         // ingest 条数
	QueryCount       int64         // query 次数
	EmbeddingLatency time.Duration // embedding 总耗时
	mu               sync.Mutex
}

// GetInstance 获取 Embedding 客户端单例
func GetInstance() (*Client, error) {
	once.Do(func() {
		cfg := config.GetInstance()

		apiKey := config.GetEmbeddingAPIKey()
		if apiKey == "" {
			initErr = fmt.Errorf("%s is required", config.EnvEmbeddingAPIKey)
			return
		}

		modelName := cfg.GetString(config.EmbeddingConfigKeyModelName)
		if modelName == "" {
			initErr = fmt.Errorf("%s is required", config.EmbeddingConfigKeyModelName)
			return
		}

		baseURL := cfg.GetString(config.EmbeddingConfigKeyBaseURL)
		instance = NewClient(apiKey, modelName, baseURL)
	})

	return instance, initErr
}

// NewClient 创建 Embedding 客户端，baseURL 为空时走官方地址
func NewClient(apiKey, modelName, baseURL string) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	// 如果配置了 base_url，则使用自定义的 base_url（用于兼容其他兼容 OpenAI API 的服务）
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &Client{
		client:    openai.NewClient(opts...),
		modelName: modelName,
		cache:     NewLRUCache(LRUCacheCapacity),
		metrics:   &Metrics{},
	}
}

// Dimension 探测并缓存向量维度
func (c *Client) Dimension(ctx context.Context) (int, error) {
	c.dimMu.Lock()
	defer c.dimMu.Unlock()
	if c.dim > 0 {
		return c.dim, nil
	}

	probe, err := c.embedBatchWithRetry(ctx, []string{dimensionProbeText})
	if err != nil {
		return 0, fmt.Errorf("failed to probe embedding dimension: %w", err)
	}
	if len(probe) == 0 || len(probe[0]) == 0 {
		return 0, fmt.Errorf("dimension probe returned empty embedding")
	}
	c.dim = len(probe[0])
	return c.dim, nil
}

// Embed 批量生成向量，结果与输入等长同序。
// 去除空白后为空的文本不发给服务方，直接映射为零向量。
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	c.metrics.mu.Lock()
	c.metrics.QueryCount++
	c.metrics.mu.Unlock()

	startTime := time.Now()
	defer func() {
		c.metrics.mu.Lock()
		c.metrics.EmbeddingLatency += time.Since(startTime)
		c.metrics.mu.Unlock()
	}()

	// 先走缓存，空白文本标记为零向量位
	type textWithIndex struct {
		text  string
		index int
	}
	result := make([][]float64, len(texts))
	needRequest := make([]textWithIndex, 0)
	zeroIdx := make([]int, 0)
	cacheHits := 0

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			zeroIdx = append(zeroIdx, i)
			continue
		}
		if cached, ok := c.cache.Get(text); ok {
			result[i] = cached
			cacheHits++
		} else {
			needRequest = append(needRequest, textWithIndex{text: text, index: i})
		}
	}

	// 批量切分处理
	for i := 0; i < len(needRequest); i += MaxBatchSize {
		end := i + MaxBatchSize
		if end > len(needRequest) {
			end = len(needRequest)
		}

		batch := needRequest[i:end]
		batchTexts := make([]string, len(batch))
		for j, item := range batch {
			batchTexts[j] = item.text
		}

		embeddings, err := c.embedBatchWithRetry(ctx, batchTexts)
		if err != nil {
			return nil, fmt.Errorf("failed to get embeddings for batch %d-%d: %w", i, end, err)
		}
		if len(embeddings) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: want %d, got %d", len(batch), len(embeddings))
		}

		for j, item := range batch {
			result[item.index] = embeddings[j]
			c.cache.Put(item.text, embeddings[j])
		}
	}

	// 空白文本补零向量，维度可能需要一次探测
	if len(zeroIdx) > 0 {
		dim, err := c.zeroDimension(ctx, result)
		if err != nil {
			return nil, err
		}
		for _, i := range zeroIdx {
			result[i] = make([]float64, dim)
		}
	}

	log.Debugf("Embedding batch completed: total=%d, cache_hits=%d, requests=%d, blanks=%d",
		len(texts), cacheHits, len(needRequest), len(zeroIdx))

	c.metrics.mu.Lock()
	c.metrics.IngestCount += int64(len(needRequest))
	c.metrics.mu.Unlock()

	return result, nil
}

// EmbedOrZero 入库场景的降级版本：重试耗尽后整批退化为零向量而不是中断入库。
// 注意这是全系统唯一有意丢失语义的地方，依赖真实向量的调用方必须用 Embed。
func (c *Client) EmbedOrZero(ctx context.Context, texts []string) [][]float64 {
	result, err := c.Embed(ctx, texts)
	if err == nil {
		return result
	}

	log.Errorf("Embedding degraded to zero vectors for %d texts: %v", len(texts), err)

	dim := c.cachedDimension()
	if dim == 0 {
		dim = DefaultDimension
	}
	zeros := make([][]float64, len(texts))
	for i := range zeros {
		zeros[i] = make([]float64, dim)
	}
	return zeros
}

// zeroDimension 为零向量挑一个维度：同批真实向量优先，否则探测
func (c *Client) zeroDimension(ctx context.Context, result [][]float64) (int, error) {
	for _, v := range result {
		if len(v) > 0 {
			c.dimMu.Lock()
			if c.dim == 0 {
				c.dim = len(v)
			}
			c.dimMu.Unlock()
			return len(v), nil
		}
	}
	return c.Dimension(ctx)
}

func (c *Client) cachedDimension() int {
	c.dimMu.Lock()
	defer c.dimMu.Unlock()
	return c.dim
}

// embedBatchWithRetry 带重试机制的批量获取 Embedding
func (c *Client) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float64, error) {
	var lastErr error

	backoff := RetryBackoffInitial
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			// 指数退避：4s, 8s，封顶 10s
			log.Warnf("Retrying embedding request (attempt %d/%d) after %v", attempt+1, MaxRetries, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
			if backoff > RetryBackoffCap {
				backoff = RetryBackoffCap
			}
		}

		embeddings, err := c.embedBatchOnce(ctx, texts)
		if err == nil {
			return embeddings, nil
		}

		lastErr = err
		log.Errorf("Embedding request failed (attempt %d/%d): %v", attempt+1, MaxRetries, err)
	}

	return nil, fmt.Errorf("failed after %d retries: %w", MaxRetries, lastErr)
}

// embedBatchOnce 单次批量获取 Embedding（不重试）
func (c *Client) embedBatchOnce(ctx context.Context, texts []string) ([][]float64, error) {
	input := openai.EmbeddingNewParamsInputUnion{
		OfArrayOfStrings: texts,
	}

	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.modelName),
		Input: input,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	result := make([][]float64, 0, len(resp.Data))
	for _, item := range resp.Data {
		result = append(result, item.Embedding)
	}

	return result, nil
}

// GetMetrics 获取指标统计
func (c *Client) GetMetrics() Metrics {
	c.metrics.mu.Lock()
	defer c.metrics.mu.Unlock()
	return Metrics{
		IngestCount:      c.metrics.IngestCount,
		QueryCount:       c.metrics.QueryCount,
		EmbeddingLatency: c.metrics.EmbeddingLatency,
	}
}
