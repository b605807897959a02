// Procflow Worker — выполняет шаги процессов.
//
// Worker:
//   - Получает run-сообщения шагов из RabbitMQ
//   - Захватывает шаг условным UPDATE (exactly-one среди конкурентов)
//   - Выполняет бизнес-исполнитель и дописывает журнал контекста
//   - Двигает процесс по графу переходов (fan-out, join, терминал)
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vborodin/procflow/internal/ctxstore"
	"github.com/vborodin/procflow/internal/flows"
	"github.com/vborodin/procflow/internal/mq"
	"github.com/vborodin/procflow/internal/orchestrator"
	"github.com/vborodin/procflow/internal/repo"
	"github.com/vborodin/procflow/internal/runner"
	"github.com/vborodin/procflow/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting procflow-worker")

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

	publisher := mq.NewPublisher(mqConn, logger)

	// Каталог процессов и бизнес-исполнители
	graphs := flows.Graphs()
	executors := flows.Executors()

	orch := orchestrator.New(orchestrator.Config{
		Store:      db,
		Graphs:     graphs,
		Dispatcher: publisher,
		Logger:     logger,
	})

	run := runner.New(runner.Config{
		Store:        db,
		ContextStore: ctxstore.New(db),
		Orchestrator: orch,
		Graphs:       graphs,
		Executors:    executors,
		Logger:       logger,
	})

	consumer := mq.NewConsumer(mqConn, logger, mq.ConsumerConfig{
		Queue:   string(mq.QueueStepsRun),
		Handler: run.Handler(),
	})

	if err := consumer.Start(ctx); err != nil {
		logger.Error("failed to start consumer", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	consumer.Stop()
	logger.Info("procflow-worker stopped")
}
