package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/meshcore-bridge/internal/protocol/buffer"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/command"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/event"
)

// deviceQueue 模拟设备端排队消息
type deviceQueue struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (q *deviceQueue) add(text string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, buffer.NewWriter(32).
		Uint8(uint8(event.KindContactMsgRecv)).
		Write([]byte{1, 2, 3, 4, 5, 6}).
		Uint8(0xFF).Uint8(0).Uint32(1).
		String(text).
		Bytes())
}

func (q *deviceQueue) respond(cmd []byte) [][]byte {
	if out := answerDeviceQuery(cmd); out != nil {
		return out
	}
	if command.Code(cmd[0]) != command.SyncNextMessage {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.msgs) == 0 {
		return [][]byte{{uint8(event.KindNoMoreMessages)}}
	}
	next := q.msgs[0]
	q.msgs = q.msgs[1:]
	return [][]byte{next}
}

func TestMessageSyncerDrainsOnConnectAndMsgWaiting(t *testing.T) {
	q := &deviceQueue{}
	q.add("queued before connect")
	link := newMemLink(q.respond)
	c := newTestClient(link)

	texts := make(chan string, 8)
	c.Subscribe(func(ev event.Event) {
		texts <- ev.(*event.ContactMsgRecv).Text
	}, event.KindContactMsgRecv)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Close() })

	s := NewMessageSyncer(zap.NewNop(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Hook(ctx, c)
	assert.Equal(t, "queued before connect", recv(t, texts))

	q.add("arrived later")
	link.push([]byte{uint8(event.KindMsgWaiting)})
	assert.Equal(t, "arrived later", recv(t, texts))

	require.Eventually(t, func() bool {
		return s.statsRuns.Load() >= 2 && s.statsMessages.Load() == 2
	}, 2*time.Second, 5*time.Millisecond)
}

type fakeTrimmer struct {
	keep    int64
	trimmed int64
	err     error
}

func (f *fakeTrimmer) TrimDead(_ context.Context, keep int64) (int64, error) {
	f.keep = keep
	return f.trimmed, f.err
}

func TestDeadLetterCleanerTrims(t *testing.T) {
	q := &fakeTrimmer{trimmed: 7}
	c := NewDeadLetterCleaner(q, zap.NewNop())

	c.clean(context.Background())
	c.clean(context.Background())

	assert.Equal(t, int64(1000), q.keep)
	assert.Equal(t, int64(14), c.Stats()["total_cleaned"])
}
