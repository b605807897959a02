// Package telemetry — structured logging (slog) и prometheus-метрики.
package telemetry
