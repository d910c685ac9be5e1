package timeconstraint

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/ZeroAurora/XDU-PD25-School-Agent/constant"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/pkg/timeutil"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/pkg/workerpool"
)

// Constraint 结构化时间约束。date_* 为 YYYYMMDD，time_* 为 HHMM，nil 表示未限定。
// 构造时倒置的区间会被交换，不会拒绝。
type Constraint struct {
	DateStart *int `json:"date_start"`
	DateEnd   *int `json:"date_end"`
	TimeStart *int `json:"time_start"`
	TimeEnd   *int `json:"time_end"`
}

// Empty 四个字段都未限定
func (c Constraint) Empty() bool {
	return c.DateStart == nil && c.DateEnd == nil && c.TimeStart == nil && c.TimeEnd == nil
}

// JSONCompleter 结构化输出模式的大模型调用
type JSONCompleter interface {
	PostChatCompletionsJSON(ctx context.Context, messages []openai.ChatCompletionMessage) (map[string]interface{}, error)
}

// Service 时间约束抽取服务。
// 抽取调用经过有界工作池，避免慢请求占满并发。
type Service struct {
	llm  JSONCompleter
	pool *workerpool.Pool
}

func NewService(llm JSONCompleter, pool *workerpool.Pool) *Service {
	return &Service{llm: llm, pool: pool}
}

// Extract 从自然语言里抽取时间约束。尽力而为：任何失败都退化为全空约束，
// 时间过滤失效但对话不中断。
func (s *Service) Extract(ctx context.Context, userText string, now time.Time) Constraint {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return Constraint{}
	}

	ref := fmt.Sprintf("%s（星期%s）", now.Format(timeutil.TimeFormatCommonStyleMin), timeutil.WeekdayCN(now))
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: constant.TimeExtractSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(constant.TimeExtractUserPromptTemplate, ref, userText)},
	}

	var data map[string]interface{}
	var callErr error
	if err := s.pool.Do(ctx, func() {
		data, callErr = s.llm.PostChatCompletionsJSON(ctx, messages)
	}); err != nil {
		log.Warnf("time constraint extraction not scheduled: %v", err)
		return Constraint{}
	}
	if callErr != nil {
		log.Warnf("time constraint extraction degraded to no filter: %v", callErr)
		return Constraint{}
	}

	c := Constraint{
		DateStart: toIntOrNil(data["date_start"]),
		DateEnd:   toIntOrNil(data["date_end"]),
		TimeStart: toIntOrNil(data["time_start"]),
		TimeEnd:   toIntOrNil(data["time_end"]),
	}

	// HHMM 超界的字段丢弃
	if c.TimeStart != nil && (*c.TimeStart < 0 || *c.TimeStart > 2359) {
		c.TimeStart = nil
	}
	if c.TimeEnd != nil && (*c.TimeEnd < 0 || *c.TimeEnd > 2359) {
		c.TimeEnd = nil
	}

	// 倒置区间交换
	if c.DateStart != nil && c.DateEnd != nil && *c.DateStart > *c.DateEnd {
		c.DateStart, c.DateEnd = c.DateEnd, c.DateStart
	}
	if c.TimeStart != nil && c.TimeEnd != nil && *c.TimeStart > *c.TimeEnd {
		c.TimeStart, c.TimeEnd = c.TimeEnd, c.TimeStart
	}

	return c
}

// BuildFilter 抽取时间约束并组装元数据过滤条件。
// 没有任何约束时返回 (nil, constraint)，即不过滤。
// 时间段用交叠语义：活动结束晚于 time_start、开始早于 time_end 都算命中。
func (s *Service) BuildFilter(ctx context.Context, userText string, now time.Time) (map[string]interface{}, Constraint) {
	c := s.Extract(ctx, userText, now)
	if c.Empty() {
		return nil, c
	}

	var terms []map[string]interface{}
	if c.DateStart != nil {
		terms = append(terms, map[string]interface{}{"date": map[string]interface{}{"$gte": *c.DateStart}})
	}
	if c.DateEnd != nil {
		terms = append(terms, map[string]interface{}{"date": map[string]interface{}{"$lte": *c.DateEnd}})
	}
	if c.TimeStart != nil {
		terms = append(terms, map[string]interface{}{"endTime": map[string]interface{}{"$gt": *c.TimeStart}})
	}
	if c.TimeEnd != nil {
		terms = append(terms, map[string]interface{}{"startTime": map[string]interface{}{"$lt": *c.TimeEnd}})
	}

	switch len(terms) {
	case 0:
		return nil, c
	case 1:
		return terms[0], c
	default:
		return map[string]interface{}{"$and": terms}, c
	}
}

// toIntOrNil 防御性取整：bool、无法解析的值一律按未限定处理
func toIntOrNil(v interface{}) *int {
	if v == nil {
		return nil
	}
	if _, ok := v.(bool); ok {
		return nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return nil
	}
	return &n
}
