package factory

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ZeroAurora/XDU-PD25-School-Agent/config"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/pkg/clients/chroma"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/pkg/clients/embedding"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/pkg/clients/llm_model"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/pkg/clients/redis"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/pkg/workerpool"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/service/chat"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/service/rag"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/service/retriever"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/service/schedule"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/service/timeconstraint"
)

const (
	defaultTopK         = 5
	defaultMaxTurns     = 8
	defaultMaxChars     = 4000
	defaultExtractPool  = 4
	defaultChunkSize    = 500
	defaultChunkOverlap = 50
)

var (
	retrieverOnce sync.Once
	retrieverSvc  *retriever.Service

	timeConstraintOnce sync.Once
	timeConstraintSvc  *timeconstraint.Service

	chatOnce sync.Once
	chatSvc  *chat.Service

	scheduleOnce sync.Once
	scheduleSvc  *schedule.Service

	ragOnce sync.Once
	ragSvc  *rag.Service
)

// GetRetriever 检索适配层单例
func GetRetriever() *retriever.Service {
	retrieverOnce.Do(func() {
		embedder, err := embedding.GetInstance()
		if err != nil {
			log.Fatalf("init embedding client: %v", err)
		}
		retrieverSvc = retriever.NewService(embedder, chroma.GetInstance())
	})
	return retrieverSvc
}

// GetTimeConstraint 时间约束抽取单例
func GetTimeConstraint() *timeconstraint.Service {
	timeConstraintOnce.Do(func() {
		workers := config.GetInstance().GetIntOrDefault(config.ChatExtractWorkers, defaultExtractPool)
		pool := workerpool.New("time-extract", workers)
		timeConstraintSvc = timeconstraint.NewService(llm_model.GetInstance(), pool)
	})
	return timeConstraintSvc
}

// GetChat 聊天调度单例
func GetChat() *chat.Service {
	chatOnce.Do(func() {
		cfg := config.GetInstance()
		assembler := chat.NewAssembler(
			GetRetriever(),
			GetTimeConstraint(),
			cfg.GetIntOrDefault(config.ChatHistoryMaxTurns, defaultMaxTurns),
			cfg.GetIntOrDefault(config.ChatHistoryMaxChars, defaultMaxChars),
		)

		var sessions chat.SessionStore
		if rc, err := redis.GetInstance(); err != nil {
			log.Warnf("redis unavailable, session memory disabled: %v", err)
		} else if rc != nil {
			sessions = chat.NewRedisSessionStore(rc.Client, cfg.GetIntOrDefault(config.ChatHistoryMaxTurns, defaultMaxTurns))
		}

		chatSvc = chat.NewService(
			assembler,
			chat.NewModelLLM(llm_model.GetInstance()),
			sessions,
			cfg.GetIntOrDefault(config.ChatDefaultTopK, defaultTopK),
		)
	})
	return chatSvc
}

// GetSchedule 日程管理单例
func GetSchedule() *schedule.Service {
	scheduleOnce.Do(func() {
		scheduleSvc = schedule.NewService(GetRetriever(), GetTimeConstraint())
	})
	return scheduleSvc
}

// GetRag 知识入库单例
func GetRag() *rag.Service {
	ragOnce.Do(func() {
		cfg := config.GetInstance()
		ragSvc = rag.NewService(
			GetRetriever(),
			cfg.GetIntOrDefault(config.RagChunkSize, defaultChunkSize),
			cfg.GetIntOrDefault(config.RagChunkOverlap, defaultChunkOverlap),
		)
	})
	return ragSvc
}
