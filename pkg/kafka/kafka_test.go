package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
)

type memWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

type memReader struct {
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *memReader) FetchMessage(context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *memReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *memReader) Close() error {
	r.closed = true
	return nil
}

func TestPublishSetsKeyAndTypeHeader(t *testing.T) {
	w := &memWriter{}
	p := NewProducerWithWriter(w, "highlight-events")
	err := p.Publish(context.Background(), Event{Key: "group-1", Type: "summary", Value: map[string]int{"count": 4}})
	if err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages", len(w.msgs))
	}
	got := toMessage(w.msgs[0])
	if string(got.Key) != "group-1" || got.Type != "summary" || string(got.Value) != `{"count":4}` {
		t.Fatalf("message = %+v", got)
	}
}

func TestPublishBatchIsAllOrNothing(t *testing.T) {
	w := &memWriter{}
	p := NewProducerWithWriter(w, "t")
	err := p.PublishBatch(context.Background(), []Event{
		{Key: "a", Value: 1},
		{Key: "b", Value: func() {}},
	})
	if err == nil || len(w.msgs) != 0 {
		t.Fatalf("err = %v, written = %d", err, len(w.msgs))
	}

	w.err = errors.New("broker unavailable")
	if err := p.Publish(context.Background(), Event{Key: "a", Value: 1}); !errors.Is(err, w.err) {
		t.Fatalf("write error not wrapped: %v", err)
	}
	if err := p.PublishBatch(context.Background(), nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}

func TestConsumerCommitsHandledMessages(t *testing.T) {
	r := &memReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte(`{}`), Headers: []kafka.Header{{Key: TypeHeader, Value: []byte("edit")}}},
		{Offset: 2, Value: []byte(`fail`)},
		{Offset: 3, Value: []byte(`{}`)},
	}}
	var types []string
	c := NewConsumerWithReader(r, "editor-events", func(_ context.Context, msg Message) error {
		if string(msg.Value) == "fail" {
			return errors.New("handler failed")
		}
		types = append(types, msg.Type)
		return nil
	})
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(r.committed) != 2 || r.committed[0] != 1 || r.committed[1] != 3 {
		t.Fatalf("committed = %v", r.committed)
	}
	if len(types) != 2 || types[0] != "edit" || types[1] != "" {
		t.Fatalf("types = %v", types)
	}
	if !r.closed {
		t.Fatal("reader not closed")
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		N int `json:"n"`
	}
	got, err := DecodeJSON[payload]([]byte(`{"n":7}`))
	if err != nil || got.N != 7 {
		t.Fatalf("DecodeJSON = %+v, %v", got, err)
	}
	if _, err := DecodeJSON[payload]([]byte(`{`)); err == nil {
		t.Fatal("expected an error for truncated JSON")
	}
}
