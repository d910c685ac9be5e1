package retriever

import (
	"context"
	"regexp"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ZeroAurora/XDU-PD25-School-Agent/model"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/pkg/clients/chroma"
)

// dimensionMismatchRegexp 向量库维度冲突的报错形态，
// 例如 "Embedding dimension of 1024, got 768"
var dimensionMismatchRegexp = regexp.MustCompile(`dimension of (\d+), got (\d+)`)

// Embedder 文本向量化能力
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	EmbedOrZero(ctx context.Context, texts []string) [][]float64
}

// VectorStore 向量库能力，与 chroma.Client 对齐
type VectorStore interface {
	Collection() string
	Upsert(ctx context.Context, ids, documents []string, metadatas []map[string]interface{}, embeddings [][]float64) error
	Query(ctx context.Context, embedding []float64, k int, where map[string]interface{}) (*chroma.QueryResponse, error)
	Get(ctx context.Context) (*chroma.GetResponse, error)
	Delete(ctx context.Context, ids []string) error
	Drop(ctx context.Context) error
	Heartbeat(ctx context.Context) error
}

// Service 检索适配层：向量化 + 向量库读写。
// 换嵌入模型导致集合维度与新向量维度不一致时，丢弃集合重建并重试一次；
// 旧数据以可重新入库为前提，一致性让位于可用性。
type Service struct {
	embedder Embedder
	store    VectorStore
}

func NewService(embedder Embedder, store VectorStore) *Service {
	return &Service{embedder: embedder, store: store}
}

// Upsert 批量写入，按 id 幂等覆盖。
// 向量化放行失败文本（补零向量），保证整批可写入。
func (s *Service) Upsert(ctx context.Context, ids, texts []string, metadatas []map[string]interface{}) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(texts) || (metadatas != nil && len(metadatas) != len(ids)) {
		return model.NewErrorWithMessage(model.ErrorParams, "ids/texts/metadatas 长度不一致")
	}
	if metadatas == nil {
		metadatas = make([]map[string]interface{}, len(ids))
		for i := range metadatas {
			metadatas[i] = map[string]interface{}{}
		}
	}

	embeddings := s.embedder.EmbedOrZero(ctx, texts)
	return s.withSelfHeal(ctx, "upsert", func() error {
		return s.store.Upsert(ctx, ids, texts, metadatas, embeddings)
	})
}

// Query 相似检索，结果按距离升序，最多 k 条。
// where 为 nil 时不做元数据过滤。
func (s *Service) Query(ctx context.Context, text string, k int, where map[string]interface{}) ([]model.QueryRow, error) {
	if k <= 0 {
		return nil, model.NewErrorWithMessage(model.ErrorParams, "k 必须为正数")
	}

	embeddings, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, model.NewError(model.ErrorEmbedding, err)
	}

	var resp *chroma.QueryResponse
	if err := s.withSelfHeal(ctx, "query", func() error {
		var queryErr error
		resp, queryErr = s.store.Query(ctx, embeddings[0], k, where)
		return queryErr
	}); err != nil {
		return nil, err
	}

	rows := transpose(resp)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Distance < rows[j].Distance })
	if len(rows) > k {
		rows = rows[:k]
	}
	return rows, nil
}

// GetAll 全量导出集合记录，距离无意义，置零
func (s *Service) GetAll(ctx context.Context) ([]model.QueryRow, error) {
	resp, err := s.store.Get(ctx)
	if err != nil {
		return nil, model.NewError(model.ErrorVectorStore, err)
	}

	rows := make([]model.QueryRow, 0, len(resp.IDs))
	for i, id := range resp.IDs {
		row := model.QueryRow{ID: id}
		if i < len(resp.Documents) {
			row.Text = resp.Documents[i]
		}
		if i < len(resp.Metadatas) {
			row.Metadata = resp.Metadatas[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Delete 按 id 删除
func (s *Service) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.store.Delete(ctx, ids); err != nil {
		return model.NewError(model.ErrorVectorStore, err)
	}
	return nil
}

// Reset 丢弃整个集合
func (s *Service) Reset(ctx context.Context) error {
	if err := s.store.Drop(ctx); err != nil {
		return model.NewError(model.ErrorVectorStore, err)
	}
	return nil
}

// Ping 向量库探活
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Heartbeat(ctx)
}

// Collection 集合名
func (s *Service) Collection() string {
	return s.store.Collection()
}

// withSelfHeal 执行向量库操作；识别到维度冲突就丢弃集合重建并重试一次，
// 重试仍失败视为配置问题，不再兜底。
func (s *Service) withSelfHeal(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if !dimensionMismatchRegexp.MatchString(err.Error()) {
		return model.NewError(model.ErrorVectorStore, errors.Wrap(err, op))
	}

	log.Warnf("collection %s dimension mismatch on %s, dropping and recreating: %v", s.store.Collection(), op, err)
	if dropErr := s.store.Drop(ctx); dropErr != nil {
		return model.NewError(model.ErrorVectorStore, errors.Wrap(dropErr, "drop after dimension mismatch"))
	}

	if err := fn(); err != nil {
		return model.NewError(model.ErrorConfig, errors.Wrap(err, "still failing after collection recreate"))
	}
	return nil
}

// transpose 把按列组织的查询结果转成行
func transpose(resp *chroma.QueryResponse) []model.QueryRow {
	if resp == nil || len(resp.IDs) == 0 {
		return nil
	}

	ids := resp.IDs[0]
	rows := make([]model.QueryRow, 0, len(ids))
	for i, id := range ids {
		row := model.QueryRow{ID: id}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			row.Text = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			row.Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			row.Distance = resp.Distances[0][i]
		}
		rows = append(rows, row)
	}
	return rows
}
