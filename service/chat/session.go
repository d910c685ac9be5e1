package chat

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/ZeroAurora/XDU-PD25-School-Agent/model"
)

const (
	sessionKeyPrefix = "chat:history:"
	sessionTTL       = 24 * time.Hour
)

// SessionStore 会话历史读写。实现可以为 nil，表示不启用会话记忆。
type SessionStore interface {
	Load(ctx context.Context, sessionID string) ([]model.ChatTurn, error)
	Append(ctx context.Context, sessionID string, turns ...model.ChatTurn) error
}

// RedisSessionStore 基于 redis list 的会话历史，每轮一个 JSON 元素。
// 只保留最近 maxTurns 轮，写入时顺带续期。
type RedisSessionStore struct {
	client   *goredis.Client
	maxTurns int
}

func NewRedisSessionStore(client *goredis.Client, maxTurns int) *RedisSessionStore {
	return &RedisSessionStore{client: client, maxTurns: maxTurns}
}

func (s *RedisSessionStore) key(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func (s *RedisSessionStore) Load(ctx context.Context, sessionID string) ([]model.ChatTurn, error) {
	items, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "load session history")
	}

	turns := make([]model.ChatTurn, 0, len(items))
	for _, item := range items {
		var turn model.ChatTurn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			// 损坏的元素跳过，不让单条脏数据废掉整个会话
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *RedisSessionStore) Append(ctx context.Context, sessionID string, turns ...model.ChatTurn) error {
	if len(turns) == 0 {
		return nil
	}

	key := s.key(sessionID)
	values := make([]interface{}, 0, len(turns))
	for _, turn := range turns {
		data, err := json.Marshal(turn)
		if err != nil {
			return errors.Wrap(err, "marshal chat turn")
		}
		values = append(values, string(data))
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	// 一轮是 user+assistant 两个元素
	pipe.LTrim(ctx, key, int64(-2*s.maxTurns), -1)
	pipe.Expire(ctx, key, sessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "append session history")
	}
	return nil
}
