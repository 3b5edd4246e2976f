package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levelbot/levelbot/internal/logger"
	"github.com/levelbot/levelbot/internal/models"
	"github.com/levelbot/levelbot/internal/models/events"
	"github.com/levelbot/levelbot/internal/progression"
	"github.com/levelbot/levelbot/internal/voice"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	r.cancel()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type recordingHandler struct {
	messages  []models.MessageEvent
	voices    []models.VoiceStateEvent
	snapshots [][]voice.Presence
}

func (h *recordingHandler) HandleMessage(_ context.Context, ev models.MessageEvent) (progression.Result, error) {
	h.messages = append(h.messages, ev)
	return progression.Result{}, nil
}

func (h *recordingHandler) HandleVoiceState(_ context.Context, ev models.VoiceStateEvent) (voice.Transition, error) {
	h.voices = append(h.voices, ev)
	return voice.Started, nil
}

func (h *recordingHandler) HandleVoiceSnapshot(_ context.Context, present []voice.Presence) error {
	h.snapshots = append(h.snapshots, present)
	return nil
}

func TestDecode(t *testing.T) {
	env, err := Decode([]byte(`{"type":"message","message":{"author_id":"1","channel_id":"c","text":"hi"}}`))
	require.NoError(t, err)
	require.NotNil(t, env.Message)
	assert.Equal(t, "hi", env.Message.Text)

	env, err = Decode([]byte(`{"type":"voice_state","voice":{"user_id":"1","before":null,"after":{"id":"v","afk":true}}}`))
	require.NoError(t, err)
	assert.Nil(t, env.Voice.Before)
	assert.True(t, env.Voice.After.AFK)

	for _, bad := range []string{
		`not json`,
		`{"type":"message"}`,
		`{"type":"voice_state","voice":{}}`,
		`{"type":"reaction"}`,
	} {
		_, err := Decode([]byte(bad))
		require.ErrorIs(t, err, ErrMalformedEvent, bad)
	}
}

func TestConsumerDispatchesAndCommitsEverything(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		cancel: cancel,
		queue: []kafka.Message{
			{Offset: 1, Value: []byte(`{"type":"message","message":{"author_id":"1","text":"hello"}}`)},
			{Offset: 2, Value: []byte(`garbage`)},
			{Offset: 3, Value: []byte(`{"type":"voice_state","voice":{"user_id":"2","after":{"id":"v"}}}`)},
			{Offset: 4, Value: []byte(`{"type":"voice_snapshot","present":[{"user_id":"3","channel":{"id":"v"}}]}`)},
		},
	}
	handler := &recordingHandler{}
	c := &Consumer{reader: reader, handler: handler, log: logger.Discard()}

	require.NoError(t, c.Run(ctx))

	require.Len(t, handler.messages, 1)
	assert.Equal(t, "hello", handler.messages[0].Text)
	require.Len(t, handler.voices, 1)
	assert.Equal(t, "2", handler.voices[0].UserID)
	require.Len(t, handler.snapshots, 1)
	assert.Equal(t, "3", handler.snapshots[0][0].UserID)
	assert.Equal(t, []int64{1, 2, 3, 4}, reader.committed)
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublisherKeysByUser(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{writer: w}

	ev := &events.LevelUp{EventID: "e1", UserID: "42", Level: 3, XP: 22500}
	require.NoError(t, p.Publish(context.Background(), "levelbot.level_up", ev.UserID, ev))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "levelbot.level_up", w.msgs[0].Topic)
	assert.Equal(t, []byte("42"), w.msgs[0].Key)

	var got events.LevelUp
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, int64(3), got.Level)
	assert.Equal(t, "e1", got.EventID)
}
