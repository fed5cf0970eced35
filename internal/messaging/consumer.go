package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"istory-server/internal/model"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// JobHandler processes one dispatched verification job. A returned
// error nacks the delivery into the DLX.
type JobHandler interface {
	Handle(ctx context.Context, job model.VerificationJobPayload) error
}

// JobConsumer reads verification jobs from RabbitMQ and feeds them to a
// handler with manual acknowledgements.
type JobConsumer struct {
	conn    *amqp.Connection
	handler JobHandler
	logger  *zap.Logger
	channel *amqp.Channel
	done    chan struct{}
}

func NewJobConsumer(conn *amqp.Connection, handler JobHandler, logger *zap.Logger) *JobConsumer {
	return &JobConsumer{
		conn:    conn,
		handler: handler,
		logger:  logger.Named("JobConsumer"),
		done:    make(chan struct{}),
	}
}

// Start declares the queue topology and launches the consuming
// goroutine. It returns once consumption is registered; cancel the
// context to stop.
func (c *JobConsumer) Start(ctx context.Context) error {
	var err error
	c.channel, err = c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := c.channel.ExchangeDeclare(
		VerificationDLXName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = c.channel.Close()
		return fmt.Errorf("failed to declare DLX %q: %w", VerificationDLXName, err)
	}

	dlq, err := c.channel.QueueDeclare(
		VerificationQueueName+".dead",
		true, false, false, false, nil,
	)
	if err != nil {
		_ = c.channel.Close()
		return fmt.Errorf("failed to declare dead letter queue: %w", err)
	}
	if err := c.channel.QueueBind(dlq.Name, VerificationDLQRoutingKey, VerificationDLXName, false, nil); err != nil {
		_ = c.channel.Close()
		return fmt.Errorf("failed to bind dead letter queue: %w", err)
	}

	if _, err := c.channel.QueueDeclare(
		VerificationQueueName,
		true, false, false, false,
		queueArgs(),
	); err != nil {
		_ = c.channel.Close()
		return fmt.Errorf("failed to declare queue %q: %w", VerificationQueueName, err)
	}

	// One unacked job at a time keeps gateway submissions sequential.
	if err := c.channel.Qos(1, 0, false); err != nil {
		_ = c.channel.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := c.channel.Consume(
		VerificationQueueName,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = c.channel.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Job consumer started", zap.String("queue", VerificationQueueName))

	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("Panic recovered in job consumer goroutine", zap.Any("panic", r))
			}
			close(c.done)
			if c.channel != nil {
				_ = c.channel.Close()
			}
		}()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Info("Delivery channel closed, job consumer exiting")
					return
				}
				c.handleDelivery(ctx, msg)
			case <-ctx.Done():
				c.logger.Info("Context cancelled, job consumer stopping")
				return
			}
		}
	}()
	return nil
}

func (c *JobConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	var job model.VerificationJobPayload
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		c.logger.Error("Malformed job payload, sending to DLQ",
			zap.String("messageID", msg.MessageId),
			zap.Error(err),
		)
		_ = msg.Nack(false, false)
		return
	}

	if err := c.handler.Handle(ctx, job); err != nil {
		c.logger.Error("Job handling failed, sending to DLQ",
			zap.String("storyID", job.StoryID),
			zap.String("workflowRunID", job.WorkflowRunID),
			zap.Error(err),
		)
		_ = msg.Nack(false, false)
		return
	}
	_ = msg.Ack(false)
}

// Done is closed when the consuming goroutine has exited.
func (c *JobConsumer) Done() <-chan struct{} {
	return c.done
}
