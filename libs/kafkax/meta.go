package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

// NewEventMessage builds the canonical message for a domain event: the topic is
// the event type, the key is the aggregate id (so one aggregate stays ordered
// within a partition) and event_id/event_type travel as headers.
func NewEventMessage(eventID, eventType, aggregateID string, payload []byte) kafka.Message {
	return kafka.Message{
		Topic: eventType,
		Key:   []byte(aggregateID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(eventID)},
			{Key: "event_type", Value: []byte(eventType)},
		},
	}
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
