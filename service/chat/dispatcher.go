package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"

	"github.com/ZeroAurora/XDU-PD25-School-Agent/model"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/pkg/clients/llm_model"
)

const (
	// k 的允许区间，防止客户端把向量库当全量导出用
	minTopK = 1
	maxTopK = 20
)

// DeltaStream 流式增量读取，与 go-openai 的 stream 对齐
type DeltaStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// LLM 对话生成能力
type LLM interface {
	CompleteContent(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error)
	CompleteStream(ctx context.Context, messages []openai.ChatCompletionMessage) (DeltaStream, error)
}

// modelLLM 把 llm_model 客户端适配到 LLM 接口
type modelLLM struct {
	client *llm_model.ClientChatModel
}

// NewModelLLM 包装真实大模型客户端
func NewModelLLM(client *llm_model.ClientChatModel) LLM {
	return &modelLLM{client: client}
}

func (m *modelLLM) CompleteContent(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	return m.client.PostChatCompletionsNonStreamContent(ctx, messages)
}

func (m *modelLLM) CompleteStream(ctx context.Context, messages []openai.ChatCompletionMessage) (DeltaStream, error) {
	return m.client.PostChatCompletionsStream(ctx, messages)
}

// Service 聊天调度：解析请求参数、组装上下文、生成回复、维护会话记忆。
// sessions 为 nil 时 session_id 被忽略。
type Service struct {
	assembler   *Assembler
	llm         LLM
	sessions    SessionStore
	defaultTopK int
}

func NewService(assembler *Assembler, llm LLM, sessions SessionStore, defaultTopK int) *Service {
	return &Service{assembler: assembler, llm: llm, sessions: sessions, defaultTopK: defaultTopK}
}

// ResolveK 确定本次检索条数
func (s *Service) ResolveK(req *model.ChatRequest) int {
	k := s.defaultTopK
	if req.K != nil {
		k = *req.K
	}
	if k < minTopK {
		k = minTopK
	}
	if k > maxTopK {
		k = maxTopK
	}
	return k
}

// Chat 非流式对话
func (s *Service) Chat(ctx context.Context, req *model.ChatRequest, now time.Time) (*model.ChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, model.NewErrorWithMessage(model.ErrorParams, "message 不能为空")
	}

	k := s.ResolveK(req)
	assembled, err := s.assembler.Assemble(ctx, message, s.loadHistory(ctx, req), k, req.ExtraContext, now)
	if err != nil {
		return nil, err
	}

	reply, err := s.llm.CompleteContent(ctx, assembled.Messages)
	if err != nil {
		return nil, model.NewError(model.ErrorLLM, err)
	}

	s.saveHistory(ctx, req, message, reply)
	return &model.ChatResponse{
		K:        k,
		Hits:     assembled.Hits,
		Reply:    reply,
		Contexts: assembled.Contexts,
	}, nil
}

// ChatStream 流式对话。帧序：meta → delta* →（done | error），出错后不再发 done。
// 返回的通道由本方法负责关闭。
func (s *Service) ChatStream(ctx context.Context, req *model.ChatRequest, now time.Time) <-chan interface{} {
	frames := make(chan interface{})

	go func() {
		defer close(frames)

		message := strings.TrimSpace(req.Message)
		if message == "" {
			s.send(ctx, frames, model.ErrorFrame{Type: model.FrameTypeError, Message: "message 不能为空"})
			return
		}

		k := s.ResolveK(req)
		assembled, err := s.assembler.Assemble(ctx, message, s.loadHistory(ctx, req), k, req.ExtraContext, now)
		if err != nil {
			s.send(ctx, frames, model.ErrorFrame{Type: model.FrameTypeError, Message: err.Error()})
			return
		}

		if !s.send(ctx, frames, model.MetaFrame{Type: model.FrameTypeMeta, K: k, Hits: assembled.Hits}) {
			return
		}

		stream, err := s.llm.CompleteStream(ctx, assembled.Messages)
		if err != nil {
			s.send(ctx, frames, model.ErrorFrame{Type: model.FrameTypeError, Message: model.ErrorMessages[model.ErrorLLM]})
			return
		}
		defer func() {
			if err := stream.Close(); err != nil {
				log.Warnf("close completion stream: %v", err)
			}
		}()

		var reply strings.Builder
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				log.Errorf("completion stream interrupted: %v", err)
				s.send(ctx, frames, model.ErrorFrame{Type: model.FrameTypeError, Message: model.ErrorMessages[model.ErrorLLM]})
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			content := chunk.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			reply.WriteString(content)
			if !s.send(ctx, frames, model.DeltaFrame{Type: model.FrameTypeDelta, Content: content}) {
				return
			}
		}

		s.saveHistory(ctx, req, message, reply.String())
		s.send(ctx, frames, model.DoneFrame{Type: model.FrameTypeDone, Contexts: assembled.Contexts})
	}()

	return frames
}

// send 发送帧，客户端断开时返回 false
func (s *Service) send(ctx context.Context, frames chan<- interface{}, frame interface{}) bool {
	select {
	case frames <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

// loadHistory 客户端自带历史优先，否则按 session_id 从会话记忆读取
func (s *Service) loadHistory(ctx context.Context, req *model.ChatRequest) []model.ChatTurn {
	if len(req.Messages) > 0 {
		return req.Messages
	}
	if req.SessionID == "" || s.sessions == nil {
		return nil
	}

	history, err := s.sessions.Load(ctx, req.SessionID)
	if err != nil {
		// 会话记忆故障退化为无历史对话
		log.Warnf("load session %s history: %v", req.SessionID, err)
		return nil
	}
	return history
}

func (s *Service) saveHistory(ctx context.Context, req *model.ChatRequest, message, reply string) {
	if req.SessionID == "" || s.sessions == nil || reply == "" {
		return
	}
	err := s.sessions.Append(ctx, req.SessionID,
		model.ChatTurn{Role: model.RoleUser, Content: message},
		model.ChatTurn{Role: model.RoleAssistant, Content: reply},
	)
	if err != nil {
		log.Warnf("append session %s history: %v", req.SessionID, err)
	}
}
