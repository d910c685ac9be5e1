package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/suite"

	"github.com/ZeroAurora/XDU-PD25-School-Agent/model"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/service/timeconstraint"
)

type fakeRetriever struct {
	filtered   []model.QueryRow
	unfiltered []model.QueryRow
	err        error
	calls      []map[string]interface{}
}

func (f *fakeRetriever) Query(_ context.Context, _ string, _ int, where map[string]interface{}) ([]model.QueryRow, error) {
	f.calls = append(f.calls, where)
	if f.err != nil {
		return nil, f.err
	}
	if where != nil {
		return f.filtered, nil
	}
	return f.unfiltered, nil
}

type fakeFilters struct {
	where map[string]interface{}
}

func (f *fakeFilters) BuildFilter(_ context.Context, _ string, _ time.Time) (map[string]interface{}, timeconstraint.Constraint) {
	return f.where, timeconstraint.Constraint{}
}

type fakeStream struct {
	chunks []string
	err    error // 发完 chunks 后返回，nil 表示正常 EOF
	pos    int
	closed bool
}

func (f *fakeStream) Recv() (openai.ChatCompletionStreamResponse, error) {
	if f.pos >= len(f.chunks) {
		if f.err != nil {
			return openai.ChatCompletionStreamResponse{}, f.err
		}
		return openai.ChatCompletionStreamResponse{}, io.EOF
	}
	content := f.chunks[f.pos]
	f.pos++
	return openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{
			{Delta: openai.ChatCompletionStreamChoiceDelta{Content: content}},
		},
	}, nil
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

type fakeLLM struct {
	content      string
	contentErr   error
	stream       *fakeStream
	streamErr    error
	lastMessages []openai.ChatCompletionMessage
}

func (f *fakeLLM) CompleteContent(_ context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	f.lastMessages = messages
	return f.content, f.contentErr
}

func (f *fakeLLM) CompleteStream(_ context.Context, messages []openai.ChatCompletionMessage) (DeltaStream, error) {
	f.lastMessages = messages
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return f.stream, nil
}

type memorySessionStore struct {
	turns map[string][]model.ChatTurn
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{turns: map[string][]model.ChatTurn{}}
}

func (m *memorySessionStore) Load(_ context.Context, sessionID string) ([]model.ChatTurn, error) {
	return m.turns[sessionID], nil
}

func (m *memorySessionStore) Append(_ context.Context, sessionID string, turns ...model.ChatTurn) error {
	m.turns[sessionID] = append(m.turns[sessionID], turns...)
	return nil
}

type ChatSuite struct {
	suite.Suite
	retriever *fakeRetriever
	filters   *fakeFilters
	llm       *fakeLLM
	sessions  *memorySessionStore
	svc       *Service
	now       time.Time
}

func (s *ChatSuite) SetupTest() {
	s.retriever = &fakeRetriever{}
	s.filters = &fakeFilters{}
	s.llm = &fakeLLM{}
	s.sessions = newMemorySessionStore()
	assembler := NewAssembler(s.retriever, s.filters, 5, 2000)
	s.svc = NewService(assembler, s.llm, s.sessions, 5)
	// 2025-01-10 周五 冬季
	s.now = time.Date(2025, 1, 10, 9, 0, 0, 0, time.Local)
}

func rowsOf(texts ...string) []model.QueryRow {
	rows := make([]model.QueryRow, 0, len(texts))
	for i, t := range texts {
		rows = append(rows, model.QueryRow{ID: t, Text: t, Distance: float64(i) * 0.1})
	}
	return rows
}

func (s *ChatSuite) TestChatNonStream() {
	s.retriever.unfiltered = rowsOf("周五有编程讲座", "周六有篮球赛")
	s.llm.content = "推荐参加周五的编程讲座。"

	resp, err := s.svc.Chat(context.Background(), &model.ChatRequest{Message: "有什么活动"}, s.now)
	s.Require().NoError(err)
	s.Equal(5, resp.K)
	s.Equal(2, resp.Hits)
	s.Equal("推荐参加周五的编程讲座。", resp.Reply)
	s.Len(resp.Contexts, 2)

	// 片段编号出现在用户消息里，无标题元数据时标签退到 Doc 序号
	last := s.llm.lastMessages[len(s.llm.lastMessages)-1]
	s.Contains(last.Content, "[1] Doc1: 周五有编程讲座")
	s.Contains(last.Content, "[2] Doc2: 周六有篮球赛")
}

func (s *ChatSuite) TestSnippetLabelFallback() {
	rows := []model.QueryRow{
		{Text: "周五晚上的算法讲座", Metadata: map[string]interface{}{"title": "算法讲座"}},
		{Text: "无标题活动", Metadata: map[string]interface{}{"name": "讲座A"}},
		{Text: "裸文本片段"},
	}

	block := snippetBlock(rows, "")
	s.Contains(block, "[1] 算法讲座: 周五晚上的算法讲座")
	s.Contains(block, "[2] 讲座A: 无标题活动")
	s.Contains(block, "[3] Doc3: 裸文本片段")
}

func (s *ChatSuite) TestChatEmptyMessage() {
	_, err := s.svc.Chat(context.Background(), &model.ChatRequest{Message: "   "}, s.now)
	s.Require().Error(err)
	var appErr *model.Error
	s.Require().ErrorAs(err, &appErr)
	s.Equal(model.ErrorParams, appErr.Code)
}

func (s *ChatSuite) TestChatSystemPromptCarriesTime() {
	s.llm.content = "好的"
	_, err := s.svc.Chat(context.Background(), &model.ChatRequest{Message: "在吗"}, s.now)
	s.Require().NoError(err)

	system := s.llm.lastMessages[0]
	s.Equal(openai.ChatMessageRoleSystem, system.Role)
	s.Contains(system.Content, "2025年01月10日")
	s.Contains(system.Content, "星期五")
	s.Contains(system.Content, "09:00")
	s.Contains(system.Content, "冬季")
}

func (s *ChatSuite) TestChatFilteredFallback() {
	s.filters.where = map[string]interface{}{"date": map[string]interface{}{"$gte": 20250111}}
	s.retriever.filtered = nil
	s.retriever.unfiltered = rowsOf("下周的讲座")
	s.llm.content = "有讲座"

	resp, err := s.svc.Chat(context.Background(), &model.ChatRequest{Message: "明天有活动吗"}, s.now)
	s.Require().NoError(err)
	s.Equal(1, resp.Hits)
	// 先带过滤查一次，空结果后退回无过滤
	s.Require().Len(s.retriever.calls, 2)
	s.NotNil(s.retriever.calls[0])
	s.Nil(s.retriever.calls[1])
}

func (s *ChatSuite) TestChatFilteredHitNoFallback() {
	s.filters.where = map[string]interface{}{"date": map[string]interface{}{"$gte": 20250111}}
	s.retriever.filtered = rowsOf("明天的活动")
	s.llm.content = "有活动"

	_, err := s.svc.Chat(context.Background(), &model.ChatRequest{Message: "明天有活动吗"}, s.now)
	s.Require().NoError(err)
	s.Len(s.retriever.calls, 1)
}

func (s *ChatSuite) TestChatKClamped() {
	s.llm.content = "好的"
	big := 999
	resp, err := s.svc.Chat(context.Background(), &model.ChatRequest{Message: "在吗", K: &big}, s.now)
	s.Require().NoError(err)
	s.Equal(maxTopK, resp.K)

	zero := 0
	resp, err = s.svc.Chat(context.Background(), &model.ChatRequest{Message: "在吗", K: &zero}, s.now)
	s.Require().NoError(err)
	s.Equal(minTopK, resp.K)
}

func (s *ChatSuite) TestChatExtraContextAppended() {
	s.llm.content = "好的"
	_, err := s.svc.Chat(context.Background(), &model.ChatRequest{Message: "在吗", ExtraContext: "用户是大三学生"}, s.now)
	s.Require().NoError(err)

	last := s.llm.lastMessages[len(s.llm.lastMessages)-1]
	s.Contains(last.Content, "[EXTRA] 用户是大三学生")
}

func (s *ChatSuite) TestChatLLMError() {
	s.llm.contentErr = errors.New("model unreachable")
	_, err := s.svc.Chat(context.Background(), &model.ChatRequest{Message: "在吗"}, s.now)
	s.Require().Error(err)
	var appErr *model.Error
	s.Require().ErrorAs(err, &appErr)
	s.Equal(model.ErrorLLM, appErr.Code)
}

func (s *ChatSuite) TestChatSessionMemory() {
	s.llm.content = "你好，我是校园活动助手。"
	req := &model.ChatRequest{Message: "在吗", SessionID: "s1"}
	_, err := s.svc.Chat(context.Background(), req, s.now)
	s.Require().NoError(err)

	// 历史写进会话，后续请求自动带上
	s.Require().Len(s.sessions.turns["s1"], 2)
	s.llm.content = "刚才说过了"
	_, err = s.svc.Chat(context.Background(), &model.ChatRequest{Message: "你是谁", SessionID: "s1"}, s.now)
	s.Require().NoError(err)

	var historyContents []string
	for _, m := range s.llm.lastMessages[1 : len(s.llm.lastMessages)-1] {
		historyContents = append(historyContents, m.Content)
	}
	s.Equal([]string{"在吗", "你好，我是校园活动助手。"}, historyContents)
}

func (s *ChatSuite) TestChatStreamFrameOrder() {
	s.retriever.unfiltered = rowsOf("周五有编程讲座")
	s.llm.stream = &fakeStream{chunks: []string{"推荐", "周五的", "讲座"}}

	frames := collect(s.svc.ChatStream(context.Background(), &model.ChatRequest{Message: "在吗"}, s.now))
	s.Require().Len(frames, 5)

	meta, ok := frames[0].(model.MetaFrame)
	s.Require().True(ok)
	s.Equal(model.FrameTypeMeta, meta.Type)
	s.Equal(5, meta.K)
	s.Equal(1, meta.Hits)

	var text strings.Builder
	for _, f := range frames[1:4] {
		delta, ok := f.(model.DeltaFrame)
		s.Require().True(ok)
		text.WriteString(delta.Content)
	}
	s.Equal("推荐周五的讲座", text.String())

	done, ok := frames[4].(model.DoneFrame)
	s.Require().True(ok)
	s.Equal(model.FrameTypeDone, done.Type)
	s.Require().Len(done.Contexts, 1)
	s.True(s.llm.stream.closed)
}

func (s *ChatSuite) TestChatStreamEmptyMessage() {
	frames := collect(s.svc.ChatStream(context.Background(), &model.ChatRequest{Message: ""}, s.now))
	s.Require().Len(frames, 1)
	errFrame, ok := frames[0].(model.ErrorFrame)
	s.Require().True(ok)
	s.Equal(model.FrameTypeError, errFrame.Type)
}

func (s *ChatSuite) TestChatStreamMidStreamErrorNoDone() {
	s.llm.stream = &fakeStream{chunks: []string{"开头"}, err: errors.New("connection reset")}

	frames := collect(s.svc.ChatStream(context.Background(), &model.ChatRequest{Message: "在吗"}, s.now))
	s.Require().Len(frames, 3)
	_, isMeta := frames[0].(model.MetaFrame)
	s.True(isMeta)
	_, isDelta := frames[1].(model.DeltaFrame)
	s.True(isDelta)
	errFrame, isErr := frames[2].(model.ErrorFrame)
	s.Require().True(isErr)
	s.NotEmpty(errFrame.Message)
	s.True(s.llm.stream.closed)
}

func (s *ChatSuite) TestChatStreamRetrievalError() {
	s.retriever.err = errors.New("vector store down")

	frames := collect(s.svc.ChatStream(context.Background(), &model.ChatRequest{Message: "在吗"}, s.now))
	s.Require().Len(frames, 1)
	_, isErr := frames[0].(model.ErrorFrame)
	s.True(isErr)
}

func (s *ChatSuite) TestChatStreamSavesSession() {
	s.llm.stream = &fakeStream{chunks: []string{"你好"}}
	frames := collect(s.svc.ChatStream(context.Background(), &model.ChatRequest{Message: "在吗", SessionID: "s2"}, s.now))
	s.NotEmpty(frames)

	s.Require().Len(s.sessions.turns["s2"], 2)
	s.Equal("你好", s.sessions.turns["s2"][1].Content)
}

func (s *ChatSuite) TestWindowHistoryLimits() {
	assembler := NewAssembler(s.retriever, s.filters, 2, 1000)
	history := []model.ChatTurn{
		{Role: model.RoleUser, Content: "第一问"},
		{Role: model.RoleAssistant, Content: "第一答"},
		{Role: model.RoleUser, Content: "第二问"},
		{Role: model.RoleAssistant, Content: "第二答"},
		{Role: model.RoleUser, Content: "第三问"},
		{Role: model.RoleAssistant, Content: "第三答"},
	}

	kept := assembler.windowHistory(history)
	s.Require().Len(kept, 4)
	s.Equal("第二问", kept[0].Content)
	s.Equal("第三答", kept[3].Content)
}

func (s *ChatSuite) TestWindowHistoryCharBudget() {
	assembler := NewAssembler(s.retriever, s.filters, 10, 6)
	history := []model.ChatTurn{
		{Role: model.RoleUser, Content: "很长很长的第一问"},
		{Role: model.RoleAssistant, Content: "短答"},
		{Role: model.RoleUser, Content: "次问"},
	}

	kept := assembler.windowHistory(history)
	s.Require().Len(kept, 2)
	s.Equal("短答", kept[0].Content)
}

func (s *ChatSuite) TestNormalizeHistoryDropsJunk() {
	history := []model.ChatTurn{
		{Role: "system", Content: "越权注入"},
		{Role: model.RoleUser, Content: "  "},
		{Role: model.RoleUser, Content: " 正常问题 "},
	}

	out := normalizeHistory(history)
	s.Require().Len(out, 1)
	s.Equal("正常问题", out[0].Content)
}

func collect(frames <-chan interface{}) []interface{} {
	var out []interface{}
	for f := range frames {
		out = append(out, f)
	}
	return out
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, new(ChatSuite))
}
