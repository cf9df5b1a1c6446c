package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnReadWriteOverPipe(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	var (
		mu  sync.Mutex
		got []byte
	)
	received := make(chan struct{}, 8)
	var recvBytes int
	c := NewConn(local, WithRecvHook(func(n int) { recvBytes += n }))
	c.SetOnRead(func(p []byte) {
		mu.Lock()
		got = append(got, p...)
		mu.Unlock()
		received <- struct{}{}
	})
	c.Start()

	require.NoError(t, c.Write([]byte{0x3C, 0x01, 0x00, 0x16}))
	buf := make([]byte, 4)
	_, err := remote.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x3C, 0x01, 0x00, 0x16}, buf)

	_, err = remote.Write([]byte{0x3E, 0x01, 0x00, 0x00})
	require.NoError(t, err)
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("no inbound bytes delivered")
	}
	mu.Lock()
	assert.Equal(t, []byte{0x3E, 0x01, 0x00, 0x00}, got)
	mu.Unlock()

	require.NoError(t, c.Close())
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed")
	}
	assert.NoError(t, c.Err())
	assert.ErrorIs(t, c.Write([]byte{1}), ErrClosed)
	assert.Equal(t, 4, recvBytes)
}

func TestConnDoneOnPeerClose(t *testing.T) {
	local, remote := net.Pipe()
	c := NewConn(local)
	c.Start()
	require.NoError(t, remote.Close())
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed after peer close")
	}
}

func TestCloseBeforeStart(t *testing.T) {
	local, _ := net.Pipe()
	c := NewConn(local)
	require.NoError(t, c.Close())
	select {
	case <-c.Done():
	default:
		t.Fatal("done should be closed")
	}
}

func TestDialTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			_, _ = c.Write([]byte{0x3E, 0x01, 0x00, 0x83})
			_ = c.Close()
		}
	}()

	conn, err := Open(context.Background(), Options{Kind: KindTCP, Addr: ln.Addr().String(), DialTimeout: time.Second})
	require.NoError(t, err)
	got := make(chan []byte, 1)
	conn.SetOnRead(func(p []byte) {
		dup := append([]byte(nil), p...)
		select {
		case got <- dup:
		default:
		}
	})
	conn.Start()
	select {
	case p := <-got:
		assert.Equal(t, []byte{0x3E, 0x01, 0x00, 0x83}, p)
	case <-time.After(2 * time.Second):
		t.Fatal("no data from tcp peer")
	}
	<-conn.Done()
}

func TestOpenUnsupported(t *testing.T) {
	_, err := Open(context.Background(), Options{Kind: "ble"})
	assert.Error(t, err)
}
