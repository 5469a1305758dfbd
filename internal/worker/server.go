// Package worker 运行 asynq 任务消费端。
package worker

import (
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/ricky-ultimate/convo-backend/internal/repository"
	"github.com/ricky-ultimate/convo-backend/internal/tasks"
)

// Server 包装 asynq.Server 与任务路由。
type Server struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

// NewServer 构造任务消费端。队列按权重调度：critical 优先于 default，
// default 优先于 low。
func NewServer(redisAddr, redisPassword string, redisDB int, stateRepo repository.StateRepository, sessionTTL time.Duration) *Server {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: redisPassword,
			DB:       redisDB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeSessionRefresh, NewSessionRefreshHandler(stateRepo, sessionTTL))

	return &Server{srv: srv, mux: mux}
}

// Start 在独立 goroutine 中运行消费端。
func (s *Server) Start() {
	go func() {
		if err := s.srv.Run(s.mux); err != nil {
			logrus.WithError(err).Fatal("Failed to run task worker")
		}
	}()
	logrus.Info("Task worker started")
}

// Shutdown 等待在途任务完成后停止消费端。
func (s *Server) Shutdown() {
	s.srv.Shutdown()
	logrus.Info("Task worker stopped")
}
