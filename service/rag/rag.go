package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZeroAurora/XDU-PD25-School-Agent/model"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/pkg/textsplit"
)

// Store 知识入库和检索的底层能力
type Store interface {
	Upsert(ctx context.Context, ids, texts []string, metadatas []map[string]interface{}) error
	Query(ctx context.Context, text string, k int, where map[string]interface{}) ([]model.QueryRow, error)
	Delete(ctx context.Context, ids []string) error
}

// Service 通用知识入库。超长文本切块后逐块入库，
// 块 id 由原始 id 派生，重新入库同一 id 时旧块被同名新块覆盖。
type Service struct {
	store        Store
	chunkSize    int
	chunkOverlap int
}

func NewService(store Store, chunkSize, chunkOverlap int) *Service {
	return &Service{store: store, chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// Ingest 批量入库，返回实际写入的记录数（含切块）
func (s *Service) Ingest(ctx context.Context, items []model.IngestItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	var ids, texts []string
	var metadatas []map[string]interface{}
	for _, item := range items {
		if strings.TrimSpace(item.ID) == "" {
			return 0, model.NewErrorWithMessage(model.ErrorEmptyId, "id 为空")
		}
		if strings.TrimSpace(item.Text) == "" {
			return 0, model.NewErrorWithMessage(model.ErrorParams, "text 不能为空")
		}

		chunks, err := s.split(item.Text)
		if err != nil {
			return 0, model.NewError(model.ErrorConfig, err)
		}

		for i, chunk := range chunks {
			id := item.ID
			metadata := copyMetadata(item.Metadata)
			if len(chunks) > 1 {
				id = fmt.Sprintf("%s#chunk-%d", item.ID, i)
				metadata["parentId"] = item.ID
				metadata["chunk"] = i
			}
			ids = append(ids, id)
			texts = append(texts, chunk)
			metadatas = append(metadatas, metadata)
		}
	}

	if err := s.store.Upsert(ctx, ids, texts, metadatas); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Search 自然语言检索，不限定来源
func (s *Service) Search(ctx context.Context, query string, k int) ([]model.QueryRow, error) {
	if strings.TrimSpace(query) == "" {
		return nil, model.NewErrorWithMessage(model.ErrorParams, "query 不能为空")
	}
	if k <= 0 {
		return nil, model.NewErrorWithMessage(model.ErrorParams, "k 必须为正数")
	}
	return s.store.Query(ctx, query, k, nil)
}

// Delete 按 id 删除记录
func (s *Service) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return model.NewErrorWithMessage(model.ErrorEmptyId, "ids 为空")
	}
	return s.store.Delete(ctx, ids)
}

func (s *Service) split(text string) ([]string, error) {
	if len([]rune(text)) <= s.chunkSize {
		return []string{text}, nil
	}
	return textsplit.NaiveSplit(text, s.chunkSize, s.chunkOverlap)
}

func copyMetadata(metadata map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(metadata)+2)
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
