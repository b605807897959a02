// Package mq — транспорт run-сообщений поверх RabbitMQ.
//
// Контракт очереди: at-least-once доставка, без гарантий порядка
// между независимыми сообщениями. Обработчик обязан быть безопасным
// при повторной доставке одного и того же сообщения — идемпотентность
// обеспечивается протоколом claim'а на строке шага, а не транспортом.
//
// Топология:
//
//	procflow.steps (direct)
//	└── steps.run [routing: run]
//	        Consumer: StepRunner
//	        DLQ: dlq.steps
//
//	procflow.dlq (direct)
//	└── dlq.steps [routing: steps]
//	        Ручной разбор
package mq
