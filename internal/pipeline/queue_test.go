package pipeline

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pcapstream/internal/core"
	"firestige.xyz/pcapstream/internal/metrics"
	"firestige.xyz/pcapstream/internal/pcaptest"
)

func drainQueue(t *testing.T, q *Queue) []Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out []Event
	for {
		ev, err := q.Recv(ctx)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
}

func TestQueueConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     QueueConfig
		wantErr bool
	}{
		{"default", DefaultQueueConfig(), false},
		{"zero capacity", QueueConfig{Capacity: 0, HighWatermark: 0.8, LowWatermark: 0.2}, true},
		{"high above one", QueueConfig{Capacity: 8, HighWatermark: 1.5, LowWatermark: 0.2}, true},
		{"high zero", QueueConfig{Capacity: 8, HighWatermark: 0, LowWatermark: 0}, true},
		{"low equals high", QueueConfig{Capacity: 8, HighWatermark: 0.5, LowWatermark: 0.5}, true},
		{"negative low", QueueConfig{Capacity: 8, HighWatermark: 0.5, LowWatermark: -0.1}, true},
		{"full range", QueueConfig{Capacity: 8, HighWatermark: 1, LowWatermark: 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrConfigInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQueue_DeliversParserEventsInOrder(t *testing.T) {
	file := smtpCapture(t)
	want, err := runChunks(t, [][]byte{file}, nil)
	require.NoError(t, err)

	p := New(newScriptedSource(pcaptest.RandomSplit(file, 21, 900), nil))
	q, err := NewQueue(p, DefaultQueueConfig())
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	got := drainQueue(t, q)
	assert.Equal(t, want.events, got)
	require.NoError(t, p.Wait())

	_, err = q.Recv(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestQueue_Backpressure(t *testing.T) {
	src := newScriptedSource(pcaptest.RandomSplit(smtpCapture(t), 3, 400), nil)
	p := New(src)
	q, err := NewQueue(p, QueueConfig{Capacity: 10, HighWatermark: 0.8, LowWatermark: 0.3})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	// Nobody consumes yet, so the backlog must reach the high watermark.
	require.Eventually(t, q.Paused, time.Second, time.Millisecond)
	assert.True(t, src.Paused())
	assert.GreaterOrEqual(t, q.Len(), 8)
	assert.LessOrEqual(t, q.Len(), 10)

	events := drainQueue(t, q)
	require.NoError(t, p.Wait())

	packets := 0
	for _, ev := range events {
		if ev.Kind == EventPacket {
			packets++
		}
	}
	assert.Equal(t, 60, packets)
	assert.Equal(t, EventEnd, events[len(events)-1].Kind)
	assert.False(t, q.Paused())
	assert.GreaterOrEqual(t, p.Stats().Pauses, uint64(1))
}

func TestQueue_ErrorThenEnd(t *testing.T) {
	p := New(newScriptedSource([][]byte{[]byte("garbage garbage garbage garbage")}, nil))
	q, err := NewQueue(p, DefaultQueueConfig())
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	events := drainQueue(t, q)
	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[0].Kind)
	assert.ErrorIs(t, events[0].Err, core.ErrUnknownMagic)
	assert.Equal(t, EventEnd, events[1].Kind)
}

func TestQueue_CloseUnblocksProducer(t *testing.T) {
	src := newScriptedSource([][]byte{smtpCapture(t)}, nil)
	p := New(src)
	q, err := NewQueue(p, QueueConfig{Capacity: 2, HighWatermark: 1, LowWatermark: 0})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	require.Eventually(t, func() bool { return q.Len() == 2 }, time.Second, time.Millisecond)
	require.NoError(t, q.Close())

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("parser still blocked after queue close")
	}
	assert.NoError(t, p.Wait())
	assert.True(t, src.isClosed())
}

func TestQueue_RecvAfterClose(t *testing.T) {
	before := testutil.ToFloat64(metrics.QueueDepth)

	p := New(newScriptedSource([][]byte{smtpCapture(t)}, nil))
	q, err := NewQueue(p, QueueConfig{Capacity: 2, HighWatermark: 1, LowWatermark: 0})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool { return q.Len() == 2 }, time.Second, time.Millisecond)

	require.NoError(t, q.Close())
	require.NoError(t, p.Wait())

	got := make(chan error, 1)
	go func() {
		_, err := q.Recv(context.Background())
		got <- err
	}()
	select {
	case err := <-got:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("Recv blocked on a closed queue")
	}
	assert.Zero(t, q.Len())
	assert.Equal(t, before, testutil.ToFloat64(metrics.QueueDepth))
}

func TestQueue_RecvUnblockedByClose(t *testing.T) {
	src := newScriptedSource(nil, nil)
	require.NoError(t, src.Pause())
	p := New(src)
	q, err := NewQueue(p, DefaultQueueConfig())
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	got := make(chan error, 1)
	go func() {
		_, err := q.Recv(context.Background())
		got <- err
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Close())

	select {
	case err := <-got:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("Recv not released by Close")
	}
	assert.NoError(t, p.Wait())
}

func TestQueue_RecvHonorsContext(t *testing.T) {
	p := New(newScriptedSource(nil, nil))
	q, err := NewQueue(p, DefaultQueueConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = q.Recv(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewQueue_AfterStart(t *testing.T) {
	p := New(newScriptedSource(nil, nil))
	require.NoError(t, p.Run(context.Background()))

	_, err := NewQueue(p, DefaultQueueConfig())
	assert.ErrorIs(t, err, core.ErrAlreadyStarted)

	_, err = NewQueue(New(newScriptedSource(nil, nil)), QueueConfig{})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}
