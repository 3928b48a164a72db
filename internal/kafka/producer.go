package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"ms-booking/internal/models"
)

const (
	TopicBookingCreated   = "ticketly.booking.created"
	TopicBookingConfirmed = "ticketly.booking.confirmed"
	TopicBookingCancelled = "ticketly.booking.cancelled"
	TopicTicketScanned    = "ticketly.ticket.scanned"
	TopicNotifications    = "ticketly.notifications"
)

type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer}
}

// Publish writes one message to the given topic.
func (p *Producer) Publish(topic string, key string, value []byte) error {
	return p.Writer.WriteMessages(context.Background(), kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
}

func (p *Producer) publishBooking(topic string, booking models.Booking) error {
	msgBytes, err := json.Marshal(booking)
	if err != nil {
		return err
	}
	return p.Publish(topic, booking.BookingID, msgBytes)
}

// PublishBookingCreated streams the booking creation event to Kafka
func (p *Producer) PublishBookingCreated(booking models.Booking) error {
	return p.publishBooking(TopicBookingCreated, booking)
}

// PublishBookingConfirmed streams the booking confirmation event to Kafka
func (p *Producer) PublishBookingConfirmed(booking models.Booking) error {
	return p.publishBooking(TopicBookingConfirmed, booking)
}

// PublishBookingCancelled streams the booking cancellation event to Kafka
func (p *Producer) PublishBookingCancelled(booking models.Booking) error {
	return p.publishBooking(TopicBookingCancelled, booking)
}

// PublishTicketScanned streams a successful gate scan to Kafka
func (p *Producer) PublishTicketScanned(ticket models.Ticket) error {
	msgBytes, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	return p.Publish(TopicTicketScanned, ticket.TicketID, msgBytes)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
