package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/ZeroAurora/XDU-PD25-School-Agent/constant"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/model"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/pkg/timeutil"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/service/timeconstraint"
)

// Retriever 相似检索能力
type Retriever interface {
	Query(ctx context.Context, text string, k int, where map[string]interface{}) ([]model.QueryRow, error)
}

// FilterBuilder 从用户输入构造元数据过滤条件
type FilterBuilder interface {
	BuildFilter(ctx context.Context, userText string, now time.Time) (map[string]interface{}, timeconstraint.Constraint)
}

// Assembled 组装好的一次对话输入
type Assembled struct {
	Messages []openai.ChatCompletionMessage
	Contexts []model.ContextItem
	Hits     int
}

// Assembler 上下文组装器：抽取时间过滤条件、检索片段、裁剪历史、拼 prompt。
type Assembler struct {
	retriever Retriever
	filters   FilterBuilder
	maxTurns  int
	maxChars  int
}

func NewAssembler(retriever Retriever, filters FilterBuilder, maxTurns, maxChars int) *Assembler {
	return &Assembler{retriever: retriever, filters: filters, maxTurns: maxTurns, maxChars: maxChars}
}

// Assemble 组装一次对话的完整消息序列。
// 带时间过滤的检索命中为零时退回无过滤检索，宁可给出不够精确的片段也不空手。
func (a *Assembler) Assemble(ctx context.Context, message string, history []model.ChatTurn, k int, extra string, now time.Time) (*Assembled, error) {
	where, _ := a.filters.BuildFilter(ctx, message, now)

	rows, err := a.retriever.Query(ctx, message, k, where)
	if err != nil {
		return nil, err
	}
	if where != nil && len(rows) == 0 {
		log.Infof("filtered retrieval empty, falling back to unfiltered query")
		rows, err = a.retriever.Query(ctx, message, k, nil)
		if err != nil {
			return nil, err
		}
	}

	contexts := make([]model.ContextItem, 0, len(rows))
	for _, row := range rows {
		contexts = append(contexts, model.ContextItem{Text: row.Text, Metadata: row.Metadata})
	}

	messages := make([]openai.ChatCompletionMessage, 0, a.maxTurns*2+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: a.systemPrompt(now),
	})
	for _, turn := range a.windowHistory(normalizeHistory(history)) {
		messages = append(messages, openai.ChatCompletionMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: fmt.Sprintf(constant.AgentUserPromptTemplate, message, k, snippetBlock(rows, extra)),
	})

	return &Assembled{Messages: messages, Contexts: contexts, Hits: len(rows)}, nil
}

func (a *Assembler) systemPrompt(now time.Time) string {
	return fmt.Sprintf(constant.AgentSystemPromptTemplate,
		now.Format(timeutil.TimeFormatCNStyleDay),
		timeutil.WeekdayCN(now),
		now.Format(timeutil.TimeFormatClock),
		timeutil.SeasonCN(now))
}

// normalizeHistory 过滤非法角色和空内容，防御客户端自带的历史
func normalizeHistory(history []model.ChatTurn) []model.ChatTurn {
	out := make([]model.ChatTurn, 0, len(history))
	for _, turn := range history {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		if turn.Role != model.RoleUser && turn.Role != model.RoleAssistant {
			continue
		}
		out = append(out, model.ChatTurn{Role: turn.Role, Content: content})
	}
	return out
}

// windowHistory 从最新往前保留，轮数和字符数双重上限
func (a *Assembler) windowHistory(history []model.ChatTurn) []model.ChatTurn {
	kept := 0
	chars := 0
	for i := len(history) - 1; i >= 0; i-- {
		if kept >= a.maxTurns*2 {
			break
		}
		size := len([]rune(history[i].Content))
		if chars+size > a.maxChars && kept > 0 {
			break
		}
		kept++
		chars += size
	}
	return history[len(history)-kept:]
}

// snippetBlock 把检索片段拼成编号列表，额外上下文附在末尾。
// 标签取 title，缺失时退到 name，再缺失用 Doc 序号占位。
func snippetBlock(rows []model.QueryRow, extra string) string {
	var sb strings.Builder
	for i, row := range rows {
		title := cast.ToString(row.Metadata["title"])
		if title == "" {
			title = cast.ToString(row.Metadata["name"])
		}
		if title == "" {
			title = fmt.Sprintf("Doc%d", i+1)
		}
		sb.WriteString(fmt.Sprintf("[%d] %s: %s\n", i+1, title, row.Text))
	}
	if sb.Len() == 0 {
		sb.WriteString("（无检索结果）\n")
	}
	if extra = strings.TrimSpace(extra); extra != "" {
		sb.WriteString("[EXTRA] " + extra + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
