package model

// RoleUser / RoleAssistant 对话角色，其他角色在归一化时丢弃
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatTurn 一轮对话，追加后不可变
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 聊天请求
type ChatRequest struct {
	Message      string     `json:"message"`
	K            *int       `json:"k"`
	ExtraContext string     `json:"extra_context"`
	Stream       bool       `json:"stream"`
	SessionID    string     `json:"session_id"`         // 可选，提供时从 redis 读写会话历史
	Messages     []ChatTurn `json:"messages,omitempty"` // 可选，客户端自带的历史
}

// ContextItem 返回给调用方的检索片段
type ContextItem struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}

// ChatResponse 非流式聊天响应
type ChatResponse struct {
	K        int           `json:"k"`
	Hits     int           `json:"hits"`
	Reply    string        `json:"reply"`
	Contexts []ContextItem `json:"contexts"`
}

// EmptyReply 空输入时的兜底响应
type EmptyReply struct {
	Reply string `json:"reply"`
}

// 流式帧类型
const (
	FrameTypeMeta  = "meta"
	FrameTypeDelta = "delta"
	FrameTypeDone  = "done"
	FrameTypeError = "error"
)

// MetaFrame 流式首帧，携带检索命中情况
type MetaFrame struct {
	Type string `json:"type"`
	K    int    `json:"k"`
	Hits int    `json:"hits"`
}

// DeltaFrame 流式增量内容
type DeltaFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// DoneFrame 流式终止帧，携带完整上下文列表
type DoneFrame struct {
	Type     string        `json:"type"`
	Contexts []ContextItem `json:"contexts"`
}

// ErrorFrame 流式出错帧，发出后流即关闭
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
