package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// resetMessage is what the notification consumer receives. The token is in the clear;
// the topic must be restricted to that consumer.
type resetMessage struct {
	IdentityID string    `json:"identity_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// KafkaResetPublisher hands reset tokens to a mail service over Kafka, keyed by identity id.
type KafkaResetPublisher struct {
	w messageWriter
}

func NewKafkaResetPublisher(w messageWriter) *KafkaResetPublisher {
	return &KafkaResetPublisher{w: w}
}

func (p *KafkaResetPublisher) DeliverReset(ctx context.Context, r PasswordReset) error {
	b, err := json.Marshal(resetMessage{
		IdentityID: r.Identity.ID,
		Username:   r.Identity.Username,
		Email:      r.Identity.Email,
		Token:      r.Token,
		ExpiresAt:  r.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("identity: marshal reset: %w", err)
	}
	if err := p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(r.Identity.ID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte("password_reset")},
		},
	}); err != nil {
		return fmt.Errorf("identity: publish reset: %w", err)
	}
	return nil
}

func (p *KafkaResetPublisher) Close() error { return p.w.Close() }
