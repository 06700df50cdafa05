package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-neo/internal/log"
)

// fakeConn records writes; ReadMessage blocks until Close.
type fakeConn struct {
	mu     sync.Mutex
	writes []Message
	closes int
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (f *fakeConn) SetReadLimit(int64) {}
func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}
func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("closed")
}

func (f *fakeConn) WriteMessage(t int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch t {
	case websocket.TextMessage:
		f.writes = append(f.writes, NewJSONMessage(data))
	case websocket.BinaryMessage:
		f.writes = append(f.writes, NewBinaryMessage(data))
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeConn) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.writes...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	return h, cancel
}

func TestBroadcast(t *testing.T) {
	h, _ := startHub(t)

	conn := newFakeConn()
	hello, _ := EncodeJSON(map[string]string{"hello": "renderer"})
	client := NewClient(h, conn, hello)
	go client.Run()
	waitFor(t, "registration", func() bool { return h.ClientCount() == 1 })

	if err := h.BroadcastJSON(map[string]int{"n": 1}); err != nil {
		t.Fatalf("BroadcastJSON() error = %v", err)
	}
	h.BroadcastBinary([]byte{0xff, 0xd8})

	waitFor(t, "three writes", func() bool { return len(conn.messages()) == 3 })
	msgs := conn.messages()
	if string(msgs[0].Data) != `{"hello":"renderer"}` {
		t.Errorf("first message = %s, want the initial snapshot", msgs[0].Data)
	}
	if string(msgs[1].Data) != `{"n":1}` || msgs[1].Type != JSONMessage {
		t.Errorf("second message = %+v", msgs[1])
	}
	if msgs[2].Type != BinaryMessage || len(msgs[2].Data) != 2 {
		t.Errorf("third message = %+v", msgs[2])
	}
}

func TestClientDisconnect(t *testing.T) {
	h, _ := startHub(t)

	conn := newFakeConn()
	client := NewClient(h, conn)
	done := make(chan struct{})
	go func() {
		client.Run()
		close(done)
	}()
	waitFor(t, "registration", func() bool { return h.ClientCount() == 1 })

	conn.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after close")
	}
	// The test's Close plus one from each pump, all before Run returned.
	if n := conn.closeCount(); n != 3 {
		t.Errorf("Close calls when Run returned = %d, want 3", n)
	}
	waitFor(t, "unregistration", func() bool { return h.ClientCount() == 0 })

	// Broadcasting to nobody is fine.
	h.BroadcastJSON("bye")
}

func TestHubShutdown(t *testing.T) {
	h, cancel := startHub(t)

	conn := newFakeConn()
	client := NewClient(h, conn)
	done := make(chan struct{})
	go func() {
		client.Run()
		close(done)
	}()
	waitFor(t, "registration", func() bool { return h.ClientCount() == 1 })

	cancel()
	<-h.Done()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client not disconnected on hub shutdown")
	}
	if n := conn.closeCount(); n != 2 {
		t.Errorf("Close calls when Run returned = %d, want 2", n)
	}
	if n := h.ClientCount(); n != 0 {
		t.Errorf("ClientCount() = %d after shutdown", n)
	}

	// Late clients are refused rather than blocking.
	late := NewClient(h, newFakeConn())
	if _, ok := <-late.send; ok {
		t.Error("late client send channel should be closed")
	}
}

func TestEncodeJSONError(t *testing.T) {
	if _, err := EncodeJSON(make(chan int)); err == nil {
		t.Error("EncodeJSON(chan) should fail")
	}
}
