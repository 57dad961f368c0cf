package identity

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaResetPublisher_KeysByIdentity(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{}
	p := NewKafkaResetPublisher(w)
	expires := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	err := p.DeliverReset(context.Background(), PasswordReset{
		Identity:  Identity{ID: "id-7", Username: "alice", Email: "alice@example.com"},
		Token:     "tok",
		ExpiresAt: expires,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	require.Equal(t, "id-7", string(w.msgs[0].Key))

	var got resetMessage
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	require.Equal(t, "alice@example.com", got.Email)
	require.Equal(t, "tok", got.Token)
	require.True(t, expires.Equal(got.ExpiresAt))

	w.err = errors.New("broker down")
	require.ErrorContains(t, p.DeliverReset(context.Background(), PasswordReset{Identity: Identity{ID: "id-7"}}), "broker down")
}
