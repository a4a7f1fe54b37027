package rabbitmq

import (
	"mercadito/pkg/config"
	"mercadito/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Command queue per service. Requests carry a cmd discriminator plus a
// reply-to queue and correlation id; collaborator addresses reduce to
// these names.
const (
	QueueOrders  = "orders_rpc"
	QueueStands  = "stands_rpc"
	QueueCatalog = "catalog_rpc"
)

type RabbitMQ struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	Logger  *logger.Logger
}

func Connect(cfg *config.RabbitMQConfig, log *logger.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL())
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	log.Info("startup", "rabbitmq_connected", "Connected to RabbitMQ")
	return &RabbitMQ{
		Conn:    conn,
		Channel: channel,
		Logger:  log,
	}, nil
}

func (r *RabbitMQ) Close() {
	if r.Channel != nil {
		r.Channel.Close()
	}
	if r.Conn != nil {
		r.Conn.Close()
	}
}
