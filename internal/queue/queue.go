package queue

import (
	"fmt"

	"github.com/OFFIS-RIT/proteus/backend/internal/util"
	"github.com/OFFIS-RIT/proteus/backend/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// Init connects to RabbitMQ. It returns nil when RABBITMQ_HOST is unset,
// which disables result events.
func Init() *amqp091.Connection {
	host := util.GetEnv("RABBITMQ_HOST")
	if host == "" {
		return nil
	}
	user := util.GetEnvString("RABBITMQ_USER", "guest")
	pass := util.GetEnvString("RABBITMQ_PASSWORD", "guest")
	port := util.GetEnvString("RABBITMQ_PORT", "5672")

	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		user,
		pass,
		host,
		port,
	)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "host", host, "err", err)
	}

	return conn
}

// SetupExchange declares the topic exchange result events are published to.
func SetupExchange(ch channel, name string) error {
	return ch.ExchangeDeclare(
		name,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
}
