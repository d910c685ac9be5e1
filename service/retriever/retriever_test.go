package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/ZeroAurora/XDU-PD25-School-Agent/model"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/pkg/clients/chroma"
)

type fakeEmbedder struct {
	embedErr error
	dim      int
}

func (f *fakeEmbedder) vector(text string) []float64 {
	v := make([]float64, f.dim)
	v[0] = float64(len(text))
	return v
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float64, 0, len(texts))
	for _, t := range texts {
		out = append(out, f.vector(t))
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedOrZero(ctx context.Context, texts []string) [][]float64 {
	out, err := f.Embed(ctx, texts)
	if err != nil {
		out = make([][]float64, len(texts))
		for i := range out {
			out[i] = make([]float64, f.dim)
		}
	}
	return out
}

// fakeStore 内存版向量库，错误逐次出队模拟瞬态故障
type fakeStore struct {
	docs       map[string]string
	metas      map[string]map[string]interface{}
	queryErrs  []error
	upsertErrs []error
	dropCount  int
	queryResp  *chroma.QueryResponse
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:  map[string]string{},
		metas: map[string]map[string]interface{}{},
	}
}

func (f *fakeStore) Collection() string { return "test_events" }

func (f *fakeStore) popErr(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

func (f *fakeStore) Upsert(_ context.Context, ids, documents []string, metadatas []map[string]interface{}, _ [][]float64) error {
	if err := f.popErr(&f.upsertErrs); err != nil {
		return err
	}
	for i, id := range ids {
		f.docs[id] = documents[i]
		f.metas[id] = metadatas[i]
	}
	return nil
}

func (f *fakeStore) Query(_ context.Context, _ []float64, _ int, _ map[string]interface{}) (*chroma.QueryResponse, error) {
	if err := f.popErr(&f.queryErrs); err != nil {
		return nil, err
	}
	if f.queryResp != nil {
		return f.queryResp, nil
	}
	return &chroma.QueryResponse{}, nil
}

func (f *fakeStore) Get(_ context.Context) (*chroma.GetResponse, error) {
	resp := &chroma.GetResponse{}
	for id, doc := range f.docs {
		resp.IDs = append(resp.IDs, id)
		resp.Documents = append(resp.Documents, doc)
		resp.Metadatas = append(resp.Metadatas, f.metas[id])
	}
	return resp, nil
}

func (f *fakeStore) Delete(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(f.docs, id)
		delete(f.metas, id)
	}
	return nil
}

func (f *fakeStore) Drop(_ context.Context) error {
	f.dropCount++
	f.docs = map[string]string{}
	f.metas = map[string]map[string]interface{}{}
	return nil
}

func (f *fakeStore) Heartbeat(_ context.Context) error { return nil }

type RetrieverSuite struct {
	suite.Suite
	embedder *fakeEmbedder
	store    *fakeStore
	svc      *Service
}

func (s *RetrieverSuite) SetupTest() {
	s.embedder = &fakeEmbedder{dim: 4}
	s.store = newFakeStore()
	s.svc = NewService(s.embedder, s.store)
}

func (s *RetrieverSuite) TestUpsertIdempotent() {
	ctx := context.Background()
	err := s.svc.Upsert(ctx, []string{"a"}, []string{"第一版"}, []map[string]interface{}{{"source": "schedule"}})
	s.NoError(err)
	err = s.svc.Upsert(ctx, []string{"a"}, []string{"第二版"}, []map[string]interface{}{{"source": "schedule"}})
	s.NoError(err)

	s.Equal("第二版", s.store.docs["a"])
	s.Len(s.store.docs, 1)
}

func (s *RetrieverSuite) TestUpsertLengthMismatch() {
	err := s.svc.Upsert(context.Background(), []string{"a", "b"}, []string{"只有一条"}, nil)
	s.Require().Error(err)
	var appErr *model.Error
	s.Require().ErrorAs(err, &appErr)
	s.Equal(model.ErrorParams, appErr.Code)
}

func (s *RetrieverSuite) TestUpsertEmbeddingFailureStillWrites() {
	s.embedder.embedErr = errors.New("provider down")
	err := s.svc.Upsert(context.Background(), []string{"a"}, []string{"文本"}, nil)
	s.NoError(err)
	s.Equal("文本", s.store.docs["a"])
}

func (s *RetrieverSuite) TestQuerySortedAndCapped() {
	s.store.queryResp = &chroma.QueryResponse{
		IDs:       [][]string{{"b", "a", "c"}},
		Documents: [][]string{{"乙", "甲", "丙"}},
		Metadatas: [][]map[string]interface{}{{{"n": 2}, {"n": 1}, {"n": 3}}},
		Distances: [][]float64{{0.5, 0.1, 0.9}},
	}

	rows, err := s.svc.Query(context.Background(), "问题", 2, nil)
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	s.Equal("a", rows[0].ID)
	s.Equal(0.1, rows[0].Distance)
	s.Equal("b", rows[1].ID)
}

func (s *RetrieverSuite) TestQueryEmbeddingError() {
	s.embedder.embedErr = errors.New("provider down")
	_, err := s.svc.Query(context.Background(), "问题", 3, nil)
	s.Require().Error(err)
	var appErr *model.Error
	s.Require().ErrorAs(err, &appErr)
	s.Equal(model.ErrorEmbedding, appErr.Code)
}

func (s *RetrieverSuite) TestQuerySelfHealOnDimensionMismatch() {
	s.store.queryErrs = []error{errors.New("Embedding dimension of 1024, got 4")}
	s.store.queryResp = &chroma.QueryResponse{
		IDs:       [][]string{{"a"}},
		Documents: [][]string{{"甲"}},
		Distances: [][]float64{{0.2}},
	}

	rows, err := s.svc.Query(context.Background(), "问题", 3, nil)
	s.Require().NoError(err)
	s.Equal(1, s.store.dropCount)
	s.Require().Len(rows, 1)
	s.Equal("a", rows[0].ID)
}

func (s *RetrieverSuite) TestQuerySelfHealOnlyOnce() {
	s.store.queryErrs = []error{
		errors.New("Embedding dimension of 1024, got 4"),
		errors.New("Embedding dimension of 1024, got 4"),
	}

	_, err := s.svc.Query(context.Background(), "问题", 3, nil)
	s.Require().Error(err)
	var appErr *model.Error
	s.Require().ErrorAs(err, &appErr)
	s.Equal(model.ErrorConfig, appErr.Code)
	s.Equal(1, s.store.dropCount)
}

func (s *RetrieverSuite) TestQueryOtherErrorNoSelfHeal() {
	s.store.queryErrs = []error{errors.New("connection refused")}

	_, err := s.svc.Query(context.Background(), "问题", 3, nil)
	s.Require().Error(err)
	var appErr *model.Error
	s.Require().ErrorAs(err, &appErr)
	s.Equal(model.ErrorVectorStore, appErr.Code)
	s.Zero(s.store.dropCount)
}

func (s *RetrieverSuite) TestUpsertSelfHeal() {
	s.store.upsertErrs = []error{errors.New("Embedding dimension of 768, got 4")}

	err := s.svc.Upsert(context.Background(), []string{"a"}, []string{"文本"}, nil)
	s.NoError(err)
	s.Equal(1, s.store.dropCount)
	s.Equal("文本", s.store.docs["a"])
}

func (s *RetrieverSuite) TestGetAllAndDelete() {
	ctx := context.Background()
	s.Require().NoError(s.svc.Upsert(ctx, []string{"a", "b"}, []string{"甲", "乙"}, nil))

	rows, err := s.svc.GetAll(ctx)
	s.Require().NoError(err)
	s.Len(rows, 2)

	s.Require().NoError(s.svc.Delete(ctx, []string{"a"}))
	rows, err = s.svc.GetAll(ctx)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal("b", rows[0].ID)
}

func TestRetrieverSuite(t *testing.T) {
	suite.Run(t, new(RetrieverSuite))
}
