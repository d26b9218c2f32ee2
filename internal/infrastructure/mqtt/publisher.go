package mqtt

import (
	"github.com/nerrad567/litekeeper/internal/health"
	"github.com/nerrad567/litekeeper/internal/infrastructure/logging"
)

// EventPublisher adapts the MQTT client to the health package's
// publisher interface. Publishing is best-effort: broker failures are
// logged and never propagate into the health loop.
type EventPublisher struct {
	client *Client
	logger *logging.Logger
}

// NewEventPublisher wraps a connected client.
func NewEventPublisher(client *Client, logger *logging.Logger) *EventPublisher {
	return &EventPublisher{
		client: client,
		logger: logger.With("component", "mqtt_publisher"),
	}
}

// PublishHealth publishes a health check result to its component topic.
func (p *EventPublisher) PublishHealth(result health.CheckResult) {
	topic := Topics{}.Health(result.Component)
	if err := p.client.PublishJSON(topic, result); err != nil {
		p.logger.Warn("publishing health event", "topic", topic, "error", err)
	}
}

// PublishRecovery publishes a recovery attempt to its action topic.
func (p *EventPublisher) PublishRecovery(attempt health.Attempt) {
	topic := Topics{}.Recovery(string(attempt.Action))
	if err := p.client.PublishJSON(topic, attempt); err != nil {
		p.logger.Warn("publishing recovery event", "topic", topic, "error", err)
	}
}
