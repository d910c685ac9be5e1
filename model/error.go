package model

import (
	"fmt"
	"regexp"

	log "github.com/sirupsen/logrus"
)

const (
	ErrorParams      = 100001
	ErrorEmptyId     = 100002
	ErrorEmbedding   = 100003
	ErrorVectorStore = 100004
	ErrorLLM         = 100005
	ErrorConfig      = 100006
	ErrorNotFound    = 100007
)

var ErrorMessages = map[int]string{
	ErrorParams:      "参数错误",
	ErrorEmptyId:     "id 为空",
	ErrorEmbedding:   "embedding 调用失败",
	ErrorVectorStore: "向量库调用失败",
	ErrorLLM:         "大模型调用失败",
	ErrorConfig:      "配置错误",
	ErrorNotFound:    "记录不存在",
}

type Error struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	InnerError error  `json:"-"`
}

func (err Error) Error() string {
	return err.Message
}

func (err *Error) Unwrap() error {
	return err.InnerError
}

func NewError(code int, innerError error) *Error {
	if innerError != nil {
		var re = regexp.MustCompile(`[\n\t]+`)
		innerErrorString := re.ReplaceAllString(fmt.Sprintf("%+v", innerError), " ")
		log.Errorf("NewError code:%d, message:%s, innerError:%+v\n", code, ErrorMessages[code], innerErrorString)
	}
	return &Error{
		Code:       code,
		Message:    ErrorMessages[code],
		InnerError: innerError,
	}
}

func NewErrorWithMessage(code int, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		InnerError: nil,
	}
}
