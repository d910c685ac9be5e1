package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"
)

const testDim = 4

type EmbeddingClientTest struct {
	suite.Suite

	server   *httptest.Server
	requests int64 // 服务端收到的请求数
}

// fakeEmbeddingHandler 按 OpenAI embeddings 协议返回固定维度的向量
func (e *EmbeddingClientTest) fakeEmbeddingHandler(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&e.requests, 1)

	var req struct {
		Input []string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	type item struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	}
	items := make([]item, len(req.Input))
	for i, text := range req.Input {
		vec := make([]float64, testDim)
		// 向量首位编码文本长度，便于断言顺序
		vec[0] = float64(len(text))
		items[i] = item{Object: "embedding", Index: i, Embedding: vec}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"object": "list",
		"data":   items,
		"model":  "test-embedding",
		"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
	})
}

func (e *EmbeddingClientTest) SetupTest() {
	atomic.StoreInt64(&e.requests, 0)
	e.server = httptest.NewServer(http.HandlerFunc(e.fakeEmbeddingHandler))
}

func (e *EmbeddingClientTest) TearDownTest() {
	e.server.Close()
}

func (e *EmbeddingClientTest) newClient() *Client {
	return NewClient("test-key", "test-embedding", e.server.URL)
}

func (e *EmbeddingClientTest) TestEmbed_SameLengthAndOrder() {
	client := e.newClient()

	texts := []string{"a", "bb", "ccc"}
	result, err := client.Embed(context.Background(), texts)
	e.Nil(err)
	e.Len(result, 3)
	for i, text := range texts {
		e.Len(result[i], testDim)
		e.Equal(float64(len(text)), result[i][0])
	}
}

func (e *EmbeddingClientTest) TestEmbed_EmptyInput() {
	client := e.newClient()

	result, err := client.Embed(context.Background(), []string{})
	e.Nil(err)
	e.Empty(result)
	e.Equal(int64(0), atomic.LoadInt64(&e.requests))
}

func (e *EmbeddingClientTest) TestEmbed_BlankMappedToZeroVector() {
	client := e.newClient()

	result, err := client.Embed(context.Background(), []string{"hello", "   ", ""})
	e.Nil(err)
	e.Len(result, 3)
	e.Equal(float64(len("hello")), result[0][0])
	for _, i := range []int{1, 2} {
		e.Len(result[i], testDim)
		for _, v := range result[i] {
			e.Zero(v)
		}
	}
}

func (e *EmbeddingClientTest) TestEmbed_AllBlankUsesProbedDimension() {
	client := e.newClient()

	result, err := client.Embed(context.Background(), []string{"\t", " "})
	e.Nil(err)
	e.Len(result, 2)
	for _, vec := range result {
		e.Len(vec, testDim)
	}
	// 全空白时只有一次维度探测请求
	e.Equal(int64(1), atomic.LoadInt64(&e.requests))
}

func (e *EmbeddingClientTest) TestEmbed_CacheHit() {
	client := e.newClient()

	_, err := client.Embed(context.Background(), []string{"cached text"})
	e.Nil(err)
	before := atomic.LoadInt64(&e.requests)

	result, err := client.Embed(context.Background(), []string{"cached text"})
	e.Nil(err)
	e.Len(result, 1)
	e.Equal(before, atomic.LoadInt64(&e.requests))
}

func (e *EmbeddingClientTest) TestDimension_ProbedOnce() {
	client := e.newClient()

	dim, err := client.Dimension(context.Background())
	e.Nil(err)
	e.Equal(testDim, dim)

	before := atomic.LoadInt64(&e.requests)
	dim, err = client.Dimension(context.Background())
	e.Nil(err)
	e.Equal(testDim, dim)
	e.Equal(before, atomic.LoadInt64(&e.requests))
}

func (e *EmbeddingClientTest) TestEmbed_LongInputSplitIntoBatches() {
	client := e.newClient()

	texts := make([]string, MaxBatchSize+3)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
	}
	result, err := client.Embed(context.Background(), texts)
	e.Nil(err)
	e.Len(result, len(texts))
	for i := range texts {
		e.Equal(float64(i+1), result[i][0])
	}
	e.Equal(int64(2), atomic.LoadInt64(&e.requests))
}

func TestEmbeddingClient(t *testing.T) {
	suite.Run(t, new(EmbeddingClientTest))
}
