package notify

import (
	"encoding/json"
	"fmt"

	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
)

// Notifier delivers email/SMS messages. Core flows treat it as
// fire-and-forget: a failed send is logged and never rolls back a booking or
// ticket transition.
type Notifier interface {
	Send(recipient, template string, data map[string]interface{}) error
}

type message struct {
	Recipient string                 `json:"recipient"`
	Template  string                 `json:"template"`
	Data      map[string]interface{} `json:"data"`
}

// KafkaNotifier hands messages to the notification service via the
// notifications topic.
type KafkaNotifier struct {
	Producer *kafka.Producer
	Logger   *logger.Logger
}

func NewKafkaNotifier(producer *kafka.Producer, log *logger.Logger) *KafkaNotifier {
	return &KafkaNotifier{Producer: producer, Logger: log}
}

func (n *KafkaNotifier) Send(recipient, template string, data map[string]interface{}) error {
	payload, err := json.Marshal(message{Recipient: recipient, Template: template, Data: data})
	if err != nil {
		return err
	}
	if err := n.Producer.Publish(kafka.TopicNotifications, recipient, payload); err != nil {
		n.Logger.Error("NOTIFY", fmt.Sprintf("Failed to publish %s notification for %s: %v", template, recipient, err))
		return err
	}
	n.Logger.Info("NOTIFY", fmt.Sprintf("Queued %s notification for %s", template, recipient))
	return nil
}

// LogNotifier is used when Kafka is disabled; it only records the send.
type LogNotifier struct {
	Logger *logger.Logger
}

func (n *LogNotifier) Send(recipient, template string, data map[string]interface{}) error {
	n.Logger.Info("NOTIFY", fmt.Sprintf("Notification %s for %s (kafka disabled)", template, recipient))
	return nil
}
