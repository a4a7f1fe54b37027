package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"mercadito/pkg/apperr"
	"mercadito/pkg/logger"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// Envelope is the request body on every command queue.
type Envelope struct {
	Cmd  string          `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

// RPCError mirrors the error payload shape the gateway expects.
type RPCError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

type ReplyEnvelope struct {
	Error *RPCError       `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// HandlerFunc handles one command. A returned error is mapped to the RPC
// error envelope via its apperr kind.
type HandlerFunc func(ctx context.Context, data json.RawMessage) (any, error)

// Server consumes a command queue and dispatches to registered handlers.
type Server struct {
	rmq      *RabbitMQ
	queue    string
	prefetch int
	log      *logger.Logger

	handlers map[string]HandlerFunc
	sendMu   sync.Mutex
}

func NewServer(rmq *RabbitMQ, queue string, prefetch int, log *logger.Logger) (*Server, error) {
	if prefetch <= 0 {
		prefetch = 16
	}

	_, err := rmq.Channel.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, err
	}

	return &Server{
		rmq:      rmq,
		queue:    queue,
		prefetch: prefetch,
		log:      log,
		handlers: make(map[string]HandlerFunc),
	}, nil
}

func (s *Server) Handle(cmd string, fn HandlerFunc) {
	s.handlers[cmd] = fn
}

// Serve blocks consuming the command queue until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.rmq.Channel.Qos(s.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	deliveries, err := s.rmq.Channel.Consume(
		s.queue, // queue
		"",      // consumer
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	s.log.Info("startup", "consuming_started", fmt.Sprintf("Serving commands on %s", s.queue))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.prefetch)

	for {
		select {
		case <-ctx.Done():
			return g.Wait()
		case msg, ok := <-deliveries:
			if !ok {
				if err := g.Wait(); err != nil {
					return err
				}
				return fmt.Errorf("delivery channel closed")
			}
			g.Go(func() error {
				s.dispatch(gctx, msg)
				return nil
			})
		}
	}
}

func (s *Server) dispatch(ctx context.Context, msg amqp.Delivery) {
	requestID := msg.CorrelationId
	if requestID == "" {
		requestID = fmt.Sprintf("msg-%d", time.Now().UnixNano())
	}

	var env Envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		s.log.Error(requestID, "message_parsing_failed", "Failed to parse command envelope", err)
		s.reply(requestID, msg, ReplyEnvelope{Error: &RPCError{StatusCode: 400, Message: "invalid command envelope"}})
		_ = msg.Ack(false)
		return
	}

	handler, ok := s.handlers[env.Cmd]
	if !ok {
		s.log.Warn(requestID, "unknown_command", fmt.Sprintf("No handler for command %q", env.Cmd))
		s.reply(requestID, msg, ReplyEnvelope{Error: &RPCError{StatusCode: 404, Message: fmt.Sprintf("unknown command %q", env.Cmd)}})
		_ = msg.Ack(false)
		return
	}

	result, err := handler(ctx, env.Data)
	if err != nil {
		kind := apperr.KindOf(err)
		s.log.Error(requestID, "command_failed", fmt.Sprintf("Command %s failed", env.Cmd), err)
		s.reply(requestID, msg, ReplyEnvelope{Error: &RPCError{StatusCode: kind.StatusCode(), Message: apperr.MessageOf(err)}})
		_ = msg.Ack(false)
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		s.log.Error(requestID, "reply_marshal_failed", "Failed to marshal command result", err)
		s.reply(requestID, msg, ReplyEnvelope{Error: &RPCError{StatusCode: 500, Message: "internal error"}})
		_ = msg.Ack(false)
		return
	}

	s.reply(requestID, msg, ReplyEnvelope{Data: data})
	if err := msg.Ack(false); err != nil {
		s.log.Error(requestID, "ack_failed", "Failed to Ack processed command", err)
	}
}

func (s *Server) reply(requestID string, msg amqp.Delivery, env ReplyEnvelope) {
	if msg.ReplyTo == "" {
		return
	}

	body, err := json.Marshal(env)
	if err != nil {
		s.log.Error(requestID, "reply_marshal_failed", "Failed to marshal reply envelope", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	err = s.rmq.Channel.PublishWithContext(ctx,
		"",          // exchange
		msg.ReplyTo, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: msg.CorrelationId,
			Body:          body,
			Timestamp:     time.Now(),
		})
	if err != nil {
		s.log.Error(requestID, "reply_publish_failed", "Failed to publish reply", err)
	}
}

// Client issues request/reply calls against a command queue. One exclusive
// reply queue is shared by all in-flight calls, demultiplexed by
// correlation id.
type Client struct {
	ch         *amqp.Channel
	replyQueue string
	log        *logger.Logger

	sendMu  sync.Mutex
	mu      sync.Mutex
	pending map[string]chan ReplyEnvelope
}

// NewClient opens its own channel so client publishes never interleave with
// the server's consume channel.
func NewClient(rmq *RabbitMQ, log *logger.Logger) (*Client, error) {
	ch, err := rmq.Conn.Channel()
	if err != nil {
		return nil, err
	}

	q, err := ch.QueueDeclare(
		"",    // name, server generated
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, err
	}

	deliveries, err := ch.Consume(
		q.Name, // queue
		"",     // consumer
		true,   // auto-ack
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		ch.Close()
		return nil, err
	}

	c := &Client{
		ch:         ch,
		replyQueue: q.Name,
		log:        log,
		pending:    make(map[string]chan ReplyEnvelope),
	}

	go c.demux(deliveries)
	return c, nil
}

func (c *Client) demux(deliveries <-chan amqp.Delivery) {
	for msg := range deliveries {
		var env ReplyEnvelope
		if err := json.Unmarshal(msg.Body, &env); err != nil {
			c.log.Error(msg.CorrelationId, "reply_parsing_failed", "Failed to parse reply envelope", err)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[msg.CorrelationId]
		delete(c.pending, msg.CorrelationId)
		c.mu.Unlock()

		if ok {
			ch <- env
		}
	}
}

// Call sends cmd to the given queue and decodes the reply into out (out may
// be nil). Transport failures and deadline expiry come back as upstream
// errors; error envelopes are rebuilt into typed errors by status code.
func (c *Client) Call(ctx context.Context, queue, cmd string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", cmd, err)
	}

	body, err := json.Marshal(Envelope{Cmd: cmd, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal %s envelope: %w", cmd, err)
	}

	corrID := uuid.NewString()
	replyCh := make(chan ReplyEnvelope, 1)

	c.mu.Lock()
	c.pending[corrID] = replyCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, corrID)
		c.mu.Unlock()
	}()

	c.sendMu.Lock()
	err = c.ch.PublishWithContext(ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: corrID,
			ReplyTo:       c.replyQueue,
			Body:          body,
			Timestamp:     time.Now(),
		})
	c.sendMu.Unlock()
	if err != nil {
		return apperr.Upstream(err, "could not reach %s", queue)
	}

	select {
	case <-ctx.Done():
		return apperr.Upstream(ctx.Err(), "%s call timed out", cmd)
	case reply := <-replyCh:
		if reply.Error != nil {
			return apperr.FromStatusCode(reply.Error.StatusCode, reply.Error.Message)
		}
		if out != nil && len(reply.Data) > 0 {
			if err := json.Unmarshal(reply.Data, out); err != nil {
				return fmt.Errorf("failed to decode %s reply: %w", cmd, err)
			}
		}
		return nil
	}
}

func (c *Client) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
}
