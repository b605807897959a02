// Procflow Scheduler — запускает процессы по отложенным заданиям.
//
// Scheduler:
//   - Захватывает due-задания через FOR UPDATE SKIP LOCKED
//   - Запускает процесс по каждому заданию через Orchestrator
//   - Повторяющимся заданиям ставит следующее вхождение по cron
//
// Среди нескольких инстансов тикает только лидер
// (pg_try_advisory_lock).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vborodin/procflow/internal/flows"
	"github.com/vborodin/procflow/internal/mq"
	"github.com/vborodin/procflow/internal/orchestrator"
	"github.com/vborodin/procflow/internal/repo"
	"github.com/vborodin/procflow/internal/scheduler"
	"github.com/vborodin/procflow/internal/telemetry"
)

const schedLockKey int64 = 74201

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting procflow-scheduler")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	db := repo.New(pool)

	// RabbitMQ
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}

	orch := orchestrator.New(orchestrator.Config{
		Store:      db,
		Graphs:     flows.Graphs(),
		Dispatcher: mq.NewPublisher(mqConn, logger),
		Logger:     logger,
	})

	sched := scheduler.New(scheduler.Config{
		Store:   db,
		Starter: orch,
		Logger:  logger,
	})

	// scheduler loop: тикает только лидер
	go func() {
		tk := time.NewTicker(1 * time.Second)
		defer tk.Stop()

		var hasLock bool
		defer func() {
			if hasLock {
				_, _ = pool.Exec(context.Background(), "select pg_advisory_unlock($1)", schedLockKey)
			}
		}()

		for {
			select {
			case <-tk.C:
				if !hasLock {
					var ok bool
					if err := pool.QueryRow(ctx, "select pg_try_advisory_lock($1)", schedLockKey).Scan(&ok); err != nil {
						logger.Error("advisory lock failed", "error", err)
						continue
					}
					hasLock = ok
					if ok {
						logger.Info("became scheduler leader")
					}
				}

				if !hasLock {
					// не лидер — пропускаем тик
					continue
				}

				if err := sched.Tick(ctx); err != nil {
					logger.Error("scheduler tick failed", "error", err)
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8081"
	if v := os.Getenv("SCHED_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("procflow-scheduler stopped")
}
