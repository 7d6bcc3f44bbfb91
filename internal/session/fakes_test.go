package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/internal/config"
	"github.com/BioHazard786/Huddle/internal/media"
	"github.com/BioHazard786/Huddle/internal/rtc"
	"github.com/BioHazard786/Huddle/internal/signaling"
)

type fakeSignaler struct {
	mu     sync.Mutex
	sent   []signaling.Envelope
	leaves int
}

func (s *fakeSignaler) OnMessage(func(signaling.Envelope)) {}

func (s *fakeSignaler) Send(env signaling.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, env)
	return nil
}

func (s *fakeSignaler) Leave() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves++
	return nil
}

func (s *fakeSignaler) envelopes() []signaling.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]signaling.Envelope(nil), s.sent...)
}

type fakeConn struct {
	peerID int64
	role   rtc.Role

	mu       sync.Mutex
	signals  []json.RawMessage
	texts    []string
	binaries [][]byte
	replaced []*media.Track
	closed   bool
	sendErr  error
}

func (c *fakeConn) Signal(p json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals = append(c.signals, p)
	return nil
}

func (c *fakeConn) SendText(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.texts = append(c.texts, s)
	return nil
}

func (c *fakeConn) SendBinary(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.binaries = append(c.binaries, b)
	return nil
}

func (c *fakeConn) ReplaceVideoTrack(t *media.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replaced = append(c.replaced, t)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) lastReplaced() *media.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.replaced) == 0 {
		return nil
	}
	return c.replaced[len(c.replaced)-1]
}

type fakeFactory struct {
	mu     sync.Mutex
	conns  []*fakeConn
	locals []*media.Stream
}

func (f *fakeFactory) Create(role rtc.Role, peerID int64, _ string, local *media.Stream) (rtc.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeConn{peerID: peerID, role: role}
	f.conns = append(f.conns, c)
	f.locals = append(f.locals, local)
	return c, nil
}

// forPeer returns every connection created for peerID, oldest first.
func (f *fakeFactory) forPeer(peerID int64) []*fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeConn
	for _, c := range f.conns {
		if c.peerID == peerID {
			out = append(out, c)
		}
	}
	return out
}

type shown struct {
	tile int64
	ind  Indicator
	ttl  time.Duration
}

type fakePresenter struct {
	mu         sync.Mutex
	tiles      map[int64]string
	messages   []string
	indicators []shown
	local      *media.Stream
	audio      bool
	video      bool
	sharing    bool
	diags      []error
}

func newFakePresenter() *fakePresenter {
	return &fakePresenter{tiles: make(map[int64]string)}
}

func (p *fakePresenter) AddTile(id int64, name string, _ *rtc.RemoteStream) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tiles[id] = name
}

func (p *fakePresenter) RemoveTile(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tiles, id)
}

func (p *fakePresenter) AppendMessage(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, line)
}

func (p *fakePresenter) ShowIndicator(tile int64, ind Indicator, ttl time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.indicators = append(p.indicators, shown{tile: tile, ind: ind, ttl: ttl})
}

func (p *fakePresenter) SetLocalStream(s *media.Stream) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = s
}

func (p *fakePresenter) SetAudioEnabled(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audio = v
}

func (p *fakePresenter) SetVideoEnabled(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.video = v
}

func (p *fakePresenter) SetSharing(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sharing = v
}

func (p *fakePresenter) Diagnostic(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.diags = append(p.diags, err)
}

func (p *fakePresenter) tileCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tiles)
}

func (p *fakePresenter) isSharing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sharing
}

func (p *fakePresenter) diagCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.diags)
}

type fakeCapturer struct {
	user      *media.Stream
	userErr   error
	screen    *media.Stream
	screenErr error
	// gate, when set, holds DisplayMedia until closed.
	gate chan struct{}
}

func (c *fakeCapturer) UserMedia(context.Context) (*media.Stream, error) {
	return c.user, c.userErr
}

func (c *fakeCapturer) DisplayMedia(ctx context.Context) (*media.Stream, error) {
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return c.screen, c.screenErr
}

func newStream(t *testing.T, id string, kinds ...media.Kind) *media.Stream {
	t.Helper()
	var tracks []*media.Track
	for _, k := range kinds {
		tr, err := media.NewTrack(k, id+"-"+k.String(), id)
		if err != nil {
			t.Fatalf("new track: %v", err)
		}
		tracks = append(tracks, tr)
	}
	return media.NewStream(id, tracks...)
}

type harness struct {
	c       *Coordinator
	sig     *fakeSignaler
	factory *fakeFactory
	ui      *fakePresenter
	events  chan rtc.Event
	id      signaling.Identity
}

func newHarness(t *testing.T, capturer media.Capturer, encoding string) *harness {
	t.Helper()
	return newHarnessAs(t, signaling.Identity{Room: "x", UserID: 1, Username: "ana"}, capturer, encoding)
}

func newHarnessAs(t *testing.T, id signaling.Identity, capturer media.Capturer, encoding string) *harness {
	t.Helper()
	h := &harness{
		sig:     &fakeSignaler{},
		factory: &fakeFactory{},
		ui:      newFakePresenter(),
		events:  make(chan rtc.Event, 8),
		id:      id,
	}
	if encoding == "" {
		encoding = config.PayloadJSON
	}
	h.c = New(Config{
		Identity:  h.id,
		Signaling: h.sig,
		Factory:   h.factory,
		Events:    h.events,
		Capturer:  capturer,
		Presenter: h.ui,
		Encoding:  encoding,
		Logger:    zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-h.c.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator never became ready")
	}
	return h
}

// flush waits until everything posted so far has run.
func (h *harness) flush(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	h.c.post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator stalled")
	}
}

func (h *harness) eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		h.flush(t)
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// emit runs a connection event on the loop in order with posted work.
func (h *harness) emit(ev rtc.Event) {
	h.c.post(func() { h.c.handleEvent(ev) })
}

func (h *harness) envelope(typ string, from int64, name string) {
	h.c.HandleEnvelope(signaling.Envelope{Type: typ, Room: "x", UserID: from, Username: name})
}

func (h *harness) signalFrom(from int64, to int64, payload string) {
	env := signaling.Envelope{Type: signaling.TypeSignal, Room: "x", UserID: from, Username: "peer", Signal: json.RawMessage(payload), PeerID: &to}
	h.c.HandleEnvelope(env)
}
