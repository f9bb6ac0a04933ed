package stream

import (
	"bytes"
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/satindergrewal/beatgrid/internal/audio"
)

// --- Broadcaster ---

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	if b.ListenerCount() != 0 {
		t.Errorf("Initial ListenerCount = %d, want 0", b.ListenerCount())
	}

	l1 := b.Subscribe("one")
	l2 := b.Subscribe("two")
	if b.ListenerCount() != 2 {
		t.Errorf("ListenerCount = %d, want 2", b.ListenerCount())
	}

	b.Unsubscribe(l1)
	b.Unsubscribe(l1)
	if b.ListenerCount() != 1 {
		t.Errorf("After unsubscribe: ListenerCount = %d, want 1", b.ListenerCount())
	}
	select {
	case <-l1.Done():
	default:
		t.Error("Done not closed after unsubscribe")
	}

	b.Unsubscribe(l2)
	if b.ListenerCount() != 0 {
		t.Errorf("ListenerCount = %d, want 0", b.ListenerCount())
	}
}

func TestBroadcastDeliversToAll(t *testing.T) {
	b := NewBroadcaster()
	listeners := make([]*Listener, 5)
	for i := range listeners {
		listeners[i] = b.Subscribe("l")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := make(chan []int16, 10)
	go b.Run(ctx, source)

	source <- []int16{42, -42}

	for i, l := range listeners {
		select {
		case got := <-l.C:
			if got[0] != 42 || got[1] != -42 {
				t.Errorf("Listener %d got %v, want [42 -42]", i, got)
			}
		case <-time.After(time.Second):
			t.Errorf("Listener %d timed out", i)
		}
	}
}

func TestBroadcastCountsDrops(t *testing.T) {
	b := NewBroadcaster()
	slow := b.SubscribeDepth("slow", 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := make(chan []int16)
	go b.Run(ctx, source)

	// unbuffered source: each send completes only once Run has it
	for i := 0; i < 10; i++ {
		source <- []int16{int16(i)}
	}
	// one more round trip so the last frame is fanned out
	source <- []int16{99}

	deadline := time.Now().Add(time.Second)
	for slow.Dropped() < 7 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if slow.Dropped() != 7 {
		t.Errorf("Dropped = %d, want 7", slow.Dropped())
	}
	if len(slow.C) != 4 {
		t.Errorf("buffered = %d, want 4", len(slow.C))
	}

	taps := b.Taps()
	if len(taps) != 1 || taps[0].Name != "slow" || taps[0].Dropped != 7 {
		t.Errorf("Taps = %+v", taps)
	}
}

func TestBroadcastEndsListenersOnSourceClose(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe("x")
	source := make(chan []int16)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Run(context.Background(), source)
	}()
	close(source)
	wg.Wait()

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("listener not ended after source closed")
	}
	if b.ListenerCount() != 0 {
		t.Errorf("ListenerCount = %d, want 0", b.ListenerCount())
	}

	late := b.Subscribe("late")
	select {
	case <-late.Done():
	default:
		t.Error("subscribe after close should return a finished listener")
	}
}

func TestBroadcastStopsOnContextCancel(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx, make(chan []int16))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcaster did not stop after context cancel")
	}
}

// --- HTTP ---

// flushRecorder is an httptest.ResponseRecorder that is safe to read while
// the handler is still writing.
type flushRecorder struct {
	mu     sync.Mutex
	header http.Header
	body   bytes.Buffer
}

func (f *flushRecorder) Header() http.Header { return f.header }
func (f *flushRecorder) WriteHeader(int)     {}
func (f *flushRecorder) Flush()              {}

func (f *flushRecorder) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.body.Write(p)
}

func (f *flushRecorder) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.body.Len()
}

func (f *flushRecorder) Bytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return bytes.Clone(f.body.Bytes())
}

func TestHTTPWAVStream(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := make(chan []int16, 4)
	go b.Run(ctx, source)

	h := NewHTTPHandler(b)
	rec := &flushRecorder{header: http.Header{}}
	req := httptest.NewRequest(http.MethodGet, "/stream?format=wav", nil)

	served := make(chan struct{})
	go func() {
		h.ServeHTTP(rec, req)
		close(served)
	}()

	deadline := time.Now().Add(time.Second)
	for b.ListenerCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	source <- []int16{1, -1}

	for rec.Len() < audio.WAVHeaderSize+4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-served:
	case <-time.After(time.Second):
		t.Fatal("handler did not return after broadcast ended")
	}

	body := rec.Bytes()
	if len(body) != audio.WAVHeaderSize+4 {
		t.Fatalf("body length = %d, want %d", len(body), audio.WAVHeaderSize+4)
	}
	if string(body[:4]) != "RIFF" || string(body[36:40]) != "data" {
		t.Errorf("missing WAV header: %q", body[:44])
	}
	if got := binary.LittleEndian.Uint32(body[40:44]); got != audio.StreamDataLength {
		t.Errorf("data length = %d, want %d", got, uint32(audio.StreamDataLength))
	}
	if got := int16(binary.LittleEndian.Uint16(body[46:48])); got != -1 {
		t.Errorf("second sample = %d, want -1", got)
	}
	if rec.Header().Get("Content-Type") != "audio/wav" {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
}

func TestWebRTCRejectsBadOffer(t *testing.T) {
	h := NewWebRTCHandler(NewBroadcaster())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/offer", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/offer", bytes.NewBufferString("nope")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", rec.Code)
	}
	if h.PeerCount() != 0 {
		t.Errorf("PeerCount = %d, want 0", h.PeerCount())
	}
}
