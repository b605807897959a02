package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики движка. Экспортируются через /metrics (promhttp) в каждом
// долгоживущем бинаре.
var (
	// StepsTotal — обработанные run-сообщения по шагам и исходам.
	// result: done / failed / dropped.
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procflow_steps_total",
		Help: "Processed run-step messages by step name and result.",
	}, []string{"step", "result"})

	// StepDuration — длительность выполнения бизнес-логики шага.
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "procflow_step_duration_seconds",
		Help:    "Business execution duration per step.",
		Buckets: prometheus.DefBuckets,
	}, []string{"step"})

	// ProcessesStarted — созданные экземпляры процессов.
	ProcessesStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procflow_processes_started_total",
		Help: "Process instances created, by process type.",
	}, []string{"process_type"})

	// SchedulerJobs — обработанные планировщиком задания.
	// result: done / failed.
	SchedulerJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procflow_scheduler_jobs_total",
		Help: "Scheduled jobs processed, by result.",
	}, []string{"result"})
)
