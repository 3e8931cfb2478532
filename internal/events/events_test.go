package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xtrntr/feeledger/internal/models"
)

type recordingSink struct {
	got []Envelope
	err error
}

func (s *recordingSink) Publish(_ context.Context, env Envelope) error {
	s.got = append(s.got, env)
	return s.err
}

func testEnvelope() Envelope {
	ev := &models.FeesWithdrawn{Authority: models.Identity{1}, Amount: 300}
	return NewEnvelope(models.Identity{9}, ev, time.Unix(1_700_000_000, 0))
}

func TestNewEnvelope(t *testing.T) {
	env := testEnvelope()
	assert.Equal(t, "fees_withdrawn", env.Type)
	assert.Equal(t, models.Identity{9}, env.Market)
	assert.Equal(t, time.UTC, env.Time.Location())
	assert.NotEqual(t, env.ID, testEnvelope().ID)
}

func TestBus_DeliversPastFailingSink(t *testing.T) {
	failing := &recordingSink{err: errors.New("down")}
	ok := &recordingSink{}
	bus := NewBus(zap.NewNop(), failing, ok)

	env := testEnvelope()
	bus.Publish(context.Background(), env)

	require.Len(t, ok.got, 1)
	assert.Equal(t, env.ID, ok.got[0].ID)
	assert.Len(t, failing.got, 1)
}

func TestHub_BroadcastsToClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	env := testEnvelope()
	require.NoError(t, hub.Publish(context.Background(), env))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Payload struct {
			Amount uint64 `json:"amount"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, env.ID.String(), got.ID)
	assert.Equal(t, "fees_withdrawn", got.Type)
	assert.Equal(t, uint64(300), got.Payload.Amount)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 10*time.Millisecond)
}

func TestKafkaMessage(t *testing.T) {
	env := testEnvelope()
	msg, err := kafkaMessage(env)
	require.NoError(t, err)

	assert.Equal(t, env.Market[:], msg.Key)
	assert.Equal(t, env.Time, msg.Time)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "fees_withdrawn", string(msg.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, env.Market.String(), decoded["market"])
}
