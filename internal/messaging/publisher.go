// Package messaging holds the RabbitMQ plumbing between the API server
// (which dispatches verification jobs) and the worker (which delivers
// them to the CRE gateway).
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"istory-server/internal/model"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// VerificationQueueName is the durable work queue for dispatched jobs.
	VerificationQueueName = "story_verification_jobs"
	// VerificationDLXName receives messages the worker nacks.
	VerificationDLXName = "story_verification_jobs_dlx"
	// VerificationDLQRoutingKey routes dead letters inside the DLX.
	VerificationDLQRoutingKey = "dlq"
)

// queueArgs must match between publisher and consumer or the declare
// fails with a precondition error.
func queueArgs() amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    VerificationDLXName,
		"x-dead-letter-routing-key": VerificationDLQRoutingKey,
	}
}

type rabbitMQJobPublisher struct {
	channel *amqp.Channel
	logger  *zap.Logger
}

// NewRabbitMQJobPublisher opens a channel on the given connection and
// declares the verification queue. Declaring on both sides makes the
// system tolerant of service start order.
func NewRabbitMQJobPublisher(conn *amqp.Connection, logger *zap.Logger) (*rabbitMQJobPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("job publisher: failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		VerificationQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		queueArgs(),
	); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("job publisher: failed to declare queue %q: %w", VerificationQueueName, err)
	}
	return &rabbitMQJobPublisher{channel: ch, logger: logger.Named("JobPublisher")}, nil
}

func (p *rabbitMQJobPublisher) PublishVerificationJob(ctx context.Context, payload model.VerificationJobPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal verification job: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(publishCtx,
		"",                    // default exchange
		VerificationQueueName, // routing key
		false,                 // mandatory
		false,                 // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			MessageId:    payload.WorkflowRunID,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish verification job: %w", err)
	}

	p.logger.Info("Verification job published",
		zap.String("storyID", payload.StoryID),
		zap.String("workflowRunID", payload.WorkflowRunID),
	)
	return nil
}

func (p *rabbitMQJobPublisher) Close() error {
	return p.channel.Close()
}
