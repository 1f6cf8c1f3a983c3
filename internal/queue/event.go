// Package queue carries settlement side effects over RabbitMQ.  The server
// publishes dispatch tasks to a durable queue and cmd/notifier consumes
// them, so a slow notification provider never holds up the API process.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/auction-settlement/internal/dispatch"
)

// SideEffectQueue is the durable queue holding dispatch tasks.
const SideEffectQueue = "settlement.side_effects"

// Encode wraps t in a persistent JSON message.
func Encode(t dispatch.Task) (amqp.Publishing, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal task: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    t.ID,
		Type:         string(t.Kind),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}

// Decode parses a message body back into a task.
func Decode(body []byte) (dispatch.Task, error) {
	var t dispatch.Task
	if err := json.Unmarshal(body, &t); err != nil {
		return dispatch.Task{}, fmt.Errorf("unmarshal task: %w", err)
	}
	if t.Kind == "" || t.UserID == 0 {
		return dispatch.Task{}, errors.New("task is missing kind or user")
	}
	return t, nil
}

func declare(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(
		SideEffectQueue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	return err
}
