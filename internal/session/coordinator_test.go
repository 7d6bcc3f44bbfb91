package session

import (
	"errors"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/BioHazard786/Huddle/internal/config"
	"github.com/BioHazard786/Huddle/internal/media"
	"github.com/BioHazard786/Huddle/internal/rtc"
	"github.com/BioHazard786/Huddle/internal/signaling"
)

func TestNewUserMakesInitiatorOnce(t *testing.T) {
	h := newHarness(t, nil, "")

	h.envelope(signaling.TypeNewUser, 2, "bo")
	h.envelope(signaling.TypeNewUser, 2, "bo")
	h.signalFrom(2, 1, `{"type":"answer","sdp":"v=0"}`)
	h.flush(t)

	conns := h.factory.forPeer(2)
	if len(conns) != 1 {
		t.Fatalf("expected one connection, got %d", len(conns))
	}
	if conns[0].role != rtc.RoleInitiator {
		t.Fatalf("new-user should make us initiator, got %s", conns[0].role)
	}
	if len(conns[0].signals) != 1 {
		t.Fatalf("answer should reach the existing connection, got %d signals", len(conns[0].signals))
	}
}

// Both sides of a join: A hears new-user from B and calls, B answers A's
// offer. Overlapping announcements must not create a second connection.
func TestScenarioOneInitiatorPerPair(t *testing.T) {
	a := newHarness(t, nil, "")
	b := newHarnessAs(t, signaling.Identity{Room: "x", UserID: 2, Username: "bo"}, nil, "")

	a.envelope(signaling.TypeNewUser, 2, "bo")
	b.signalFrom(1, 2, `{"type":"offer","sdp":"v=0"}`)
	a.flush(t)
	b.flush(t)

	// Late announcements after negotiation began.
	b.envelope(signaling.TypeNewUser, 1, "ana")
	a.signalFrom(2, 1, `{"type":"answer","sdp":"v=0"}`)
	a.flush(t)
	b.flush(t)

	if n := len(a.factory.forPeer(2)); n != 1 {
		t.Fatalf("A created %d connections to B", n)
	}
	if n := len(b.factory.forPeer(1)); n != 1 {
		t.Fatalf("B created %d connections to A", n)
	}
	if a.factory.forPeer(2)[0].role != rtc.RoleInitiator || b.factory.forPeer(1)[0].role != rtc.RoleResponder {
		t.Fatal("exactly one side must initiate")
	}
	if len(b.factory.forPeer(1)[0].signals) != 1 || len(a.factory.forPeer(2)[0].signals) != 1 {
		t.Fatal("each side should receive exactly the other's description")
	}
}

func TestIgnoresOwnAndMisaddressedEnvelopes(t *testing.T) {
	h := newHarness(t, nil, "")

	h.envelope(signaling.TypeNewUser, 1, "ana")
	h.signalFrom(3, 99, `{"type":"offer","sdp":"v=0"}`)
	h.envelope("bogus", 4, "x")
	h.flush(t)

	if n := len(h.factory.conns); n != 0 {
		t.Fatalf("expected no connections, got %d", n)
	}
}

func TestConnectionSignalIsRelayed(t *testing.T) {
	h := newHarness(t, nil, "")
	h.envelope(signaling.TypeNewUser, 2, "bo")
	h.flush(t)

	conn := h.factory.forPeer(2)[0]
	h.emit(rtc.Event{Kind: rtc.EventSignal, PeerID: 2, Conn: conn, Signal: []byte(`{"type":"offer","sdp":"v=0"}`)})
	h.flush(t)

	sent := h.sig.envelopes()
	if len(sent) != 1 {
		t.Fatalf("expected one envelope, got %d", len(sent))
	}
	env := sent[0]
	target, ok := env.Target()
	if env.Type != signaling.TypeSignal || !ok || target != 2 || env.UserID != 1 || env.Room != "x" || env.Username != "ana" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestUserLeftRemovesExactlyOneTile(t *testing.T) {
	h := newHarness(t, nil, "")
	h.envelope(signaling.TypeNewUser, 2, "bo")
	h.envelope(signaling.TypeNewUser, 3, "cy")
	h.flush(t)
	for _, id := range []int64{2, 3} {
		h.emit(rtc.Event{Kind: rtc.EventStream, PeerID: id, Conn: h.factory.forPeer(id)[0], Stream: rtc.NewRemoteStream("s")})
	}
	h.flush(t)
	if h.ui.tileCount() != 2 {
		t.Fatalf("expected 2 tiles, got %d", h.ui.tileCount())
	}

	h.envelope(signaling.TypeUserLeft, 2, "")
	h.flush(t)
	if h.ui.tileCount() != 1 {
		t.Fatalf("expected 1 tile after user-left, got %d", h.ui.tileCount())
	}
	if !h.factory.forPeer(2)[0].closed {
		t.Fatal("connection of departed peer not closed")
	}

	h.envelope(signaling.TypeUserLeft, 2, "")
	h.flush(t)
	if h.ui.tileCount() != 1 || len(h.c.Peers()) != 1 {
		t.Fatal("repeated user-left must be a no-op")
	}
}

func TestStreamMarksConnected(t *testing.T) {
	h := newHarness(t, nil, "")
	h.envelope(signaling.TypeNewUser, 2, "bo")
	h.flush(t)

	h.emit(rtc.Event{Kind: rtc.EventStream, PeerID: 2, Conn: h.factory.forPeer(2)[0], Stream: rtc.NewRemoteStream("s")})
	h.flush(t)

	peers := h.c.Peers()
	if len(peers) != 1 || peers[0].State.String() != "connected" {
		t.Fatalf("unexpected peers %+v", peers)
	}
	if h.ui.tiles[2] != "bo" {
		t.Fatalf("tile should carry display name, got %q", h.ui.tiles[2])
	}
}

func TestStaleCloseKeepsReplacement(t *testing.T) {
	h := newHarness(t, nil, "")
	h.envelope(signaling.TypeNewUser, 2, "bo")
	h.envelope(signaling.TypeUserLeft, 2, "")
	h.envelope(signaling.TypeNewUser, 2, "bo")
	h.flush(t)

	conns := h.factory.forPeer(2)
	if len(conns) != 2 {
		t.Fatalf("expected a replacement connection, got %d", len(conns))
	}

	h.emit(rtc.Event{Kind: rtc.EventClosed, PeerID: 2, Conn: conns[0]})
	h.flush(t)
	if len(h.c.Peers()) != 1 {
		t.Fatal("stale close removed the live peer")
	}

	h.emit(rtc.Event{Kind: rtc.EventClosed, PeerID: 2, Conn: conns[1], Err: rtc.ErrConnectionFailed})
	h.flush(t)
	if len(h.c.Peers()) != 0 || !conns[1].closed {
		t.Fatal("failed connection should be torn down")
	}
}

func TestChatBroadcastsToCurrentPeers(t *testing.T) {
	h := newHarness(t, nil, "")
	for _, id := range []int64{2, 3, 4} {
		h.envelope(signaling.TypeNewUser, id, "p")
	}
	h.envelope(signaling.TypeUserLeft, 3, "")
	h.flush(t)
	h.factory.forPeer(4)[0].sendErr = rtc.ErrChannelNotOpen

	h.c.SendChat("hi")
	h.c.SendChat("")
	h.flush(t)

	if len(h.ui.messages) != 1 || h.ui.messages[0] != "Me: hi" {
		t.Fatalf("unexpected local log %v", h.ui.messages)
	}
	if got := h.factory.forPeer(2)[0].texts; len(got) != 1 || got[0] != "hi" {
		t.Fatalf("peer 2 got %v", got)
	}
	if got := h.factory.forPeer(3)[0].texts; len(got) != 0 {
		t.Fatalf("removed peer received %v", got)
	}
}

func TestReceivePayloads(t *testing.T) {
	h := newHarness(t, nil, "")
	h.envelope(signaling.TypeNewUser, 2, "bo")
	h.flush(t)
	conn := h.factory.forPeer(2)[0]

	hand, _ := msgpack.Marshal(Payload{Type: PayloadHand})
	frames := []rtc.Data{
		{Bytes: []byte(`{"type":"hand"}`), IsString: true},
		{Bytes: []byte(`{"type":"emoji","emoji":"🎉"}`), IsString: true},
		{Bytes: hand},
		{Bytes: []byte("hello"), IsString: true},
		{Bytes: []byte(`{"type":"emoji"}`), IsString: true},
	}
	for _, d := range frames {
		h.emit(rtc.Event{Kind: rtc.EventData, PeerID: 2, Conn: conn, Data: d})
	}
	h.flush(t)

	want := []shown{
		{tile: 2, ind: Indicator{Kind: IndicatorHand, Text: handGlyph}, ttl: HandTTL},
		{tile: 2, ind: Indicator{Kind: IndicatorEmoji, Text: "🎉"}, ttl: EmojiTTL},
		{tile: 2, ind: Indicator{Kind: IndicatorHand, Text: handGlyph}, ttl: HandTTL},
	}
	if len(h.ui.indicators) != len(want) {
		t.Fatalf("got indicators %+v", h.ui.indicators)
	}
	for i, w := range want {
		if h.ui.indicators[i] != w {
			t.Fatalf("indicator %d: got %+v want %+v", i, h.ui.indicators[i], w)
		}
	}
	if len(h.ui.messages) != 2 || h.ui.messages[0] != "bo: hello" || h.ui.messages[1] != `bo: {"type":"emoji"}` {
		t.Fatalf("unexpected chat %v", h.ui.messages)
	}
}

func TestRaiseHandSendsConfiguredEncoding(t *testing.T) {
	h := newHarness(t, nil, config.PayloadMsgpack)
	h.envelope(signaling.TypeNewUser, 2, "bo")
	h.flush(t)

	h.c.RaiseHand()
	h.c.SendEmoji("👍")
	h.flush(t)

	conn := h.factory.forPeer(2)[0]
	if len(conn.binaries) != 2 || len(conn.texts) != 0 {
		t.Fatalf("expected two binary frames, got %d binary %d text", len(conn.binaries), len(conn.texts))
	}
	p, ok := ParsePayload(conn.binaries[1], false)
	if !ok || p.Type != PayloadEmoji || p.Emoji != "👍" {
		t.Fatalf("emoji frame decoded as %+v ok=%v", p, ok)
	}
	if h.ui.indicators[0].tile != LocalTile || h.ui.indicators[0].ttl != HandTTL {
		t.Fatalf("local hand indicator missing: %+v", h.ui.indicators)
	}
}

func TestToggleMuteTwiceRestoresTrack(t *testing.T) {
	local := newStream(t, "cam", media.KindAudio, media.KindVideo)
	h := newHarness(t, &fakeCapturer{user: local}, "")
	h.envelope(signaling.TypeNewUser, 2, "bo")
	h.flush(t)

	audio := local.AudioTracks()[0]
	h.c.ToggleMute()
	h.flush(t)
	if audio.Enabled() || h.ui.audio {
		t.Fatal("first toggle should mute")
	}
	h.c.ToggleMute()
	h.flush(t)
	if !audio.Enabled() || !h.ui.audio {
		t.Fatal("second toggle should unmute")
	}

	h.c.ToggleVideo()
	h.flush(t)
	if local.VideoTracks()[0].Enabled() || h.ui.video {
		t.Fatal("video toggle did not disable the camera")
	}

	conn := h.factory.forPeer(2)[0]
	if len(h.factory.conns) != 1 || len(conn.signals) != 0 || len(conn.replaced) != 0 {
		t.Fatal("toggling must not renegotiate or replace tracks")
	}
	if h.factory.locals[0] != local {
		t.Fatal("connection should carry the local stream")
	}
}

func TestScreenShareRestoresCameraOnEveryPeer(t *testing.T) {
	local := newStream(t, "cam", media.KindAudio, media.KindVideo)
	screen := newStream(t, "screen", media.KindVideo)
	h := newHarness(t, &fakeCapturer{user: local, screen: screen}, "")
	h.envelope(signaling.TypeNewUser, 2, "bo")
	h.envelope(signaling.TypeNewUser, 3, "cy")
	h.flush(t)

	h.c.StartScreenShare()
	h.eventually(t, h.ui.isSharing)

	screenTrack := screen.FirstVideo()
	for _, id := range []int64{2, 3} {
		if h.factory.forPeer(id)[0].lastReplaced() != screenTrack {
			t.Fatalf("peer %d not sending the screen", id)
		}
	}

	// Joiners during a share keep the camera and are not switched.
	h.envelope(signaling.TypeNewUser, 4, "di")
	h.flush(t)
	if h.factory.forPeer(4)[0].lastReplaced() != nil {
		t.Fatal("mid-share joiner should not be switched to the screen")
	}

	screenTrack.Stop()
	h.eventually(t, func() bool { return !h.ui.isSharing() })

	camera := local.FirstVideo()
	for _, id := range []int64{2, 3, 4} {
		if got := h.factory.forPeer(id)[0].lastReplaced(); got != camera {
			t.Fatalf("peer %d ends with %v, want camera", id, got)
		}
	}
}

func TestScreenShareUsesInvokeTimeSnapshot(t *testing.T) {
	local := newStream(t, "cam", media.KindVideo)
	screen := newStream(t, "screen", media.KindVideo)
	gate := make(chan struct{})
	h := newHarness(t, &fakeCapturer{user: local, screen: screen, gate: gate}, "")
	h.envelope(signaling.TypeNewUser, 2, "bo")
	h.envelope(signaling.TypeNewUser, 3, "cy")
	h.flush(t)

	h.c.StartScreenShare()
	h.flush(t)
	h.envelope(signaling.TypeUserLeft, 3, "")
	h.envelope(signaling.TypeNewUser, 5, "ed")
	h.flush(t)
	close(gate)
	h.eventually(t, h.ui.isSharing)

	if h.factory.forPeer(2)[0].lastReplaced() != screen.FirstVideo() {
		t.Fatal("peer from snapshot not switched")
	}
	if len(h.factory.forPeer(3)[0].replaced) != 0 {
		t.Fatal("peer removed during capture was touched")
	}
	if len(h.factory.forPeer(5)[0].replaced) != 0 {
		t.Fatal("peer outside the snapshot was switched")
	}

	h.c.StopScreenShare()
	h.flush(t)
	if h.ui.isSharing() || h.factory.forPeer(2)[0].lastReplaced() != local.FirstVideo() {
		t.Fatal("stop should restore the camera")
	}
}

func TestScreenShareFailureChangesNothing(t *testing.T) {
	local := newStream(t, "cam", media.KindVideo)
	h := newHarness(t, &fakeCapturer{user: local, screenErr: media.ErrUnavailable}, "")
	h.envelope(signaling.TypeNewUser, 2, "bo")
	h.flush(t)

	h.c.StartScreenShare()
	h.eventually(t, func() bool { return h.ui.diagCount() == 1 })

	if !errors.Is(h.ui.diags[0], media.ErrUnavailable) {
		t.Fatalf("unexpected diagnostic %v", h.ui.diags[0])
	}
	if h.ui.isSharing() || len(h.factory.forPeer(2)[0].replaced) != 0 {
		t.Fatal("failed capture must not change state")
	}
}

func TestNoLocalMediaIsReceiveOnly(t *testing.T) {
	h := newHarness(t, &fakeCapturer{userErr: media.ErrUnavailable}, "")
	h.envelope(signaling.TypeNewUser, 2, "bo")
	h.c.ToggleMute()
	h.c.ToggleVideo()
	h.flush(t)

	if h.ui.diagCount() != 1 {
		t.Fatalf("expected one diagnostic, got %d", h.ui.diagCount())
	}
	if h.factory.locals[0] != nil {
		t.Fatal("connection should be receive-only")
	}
}

func TestEventsChannelIsDrained(t *testing.T) {
	h := newHarness(t, nil, "")
	h.envelope(signaling.TypeNewUser, 2, "bo")
	h.flush(t)

	h.events <- rtc.Event{Kind: rtc.EventStream, PeerID: 2, Conn: h.factory.forPeer(2)[0], Stream: rtc.NewRemoteStream("s")}
	h.eventually(t, func() bool { return h.ui.tileCount() == 1 })
}

func TestCloseLeavesAndTearsDown(t *testing.T) {
	h := newHarness(t, nil, "")
	h.envelope(signaling.TypeNewUser, 2, "bo")
	h.flush(t)

	h.c.Close()
	h.c.Close()

	if h.sig.leaves != 1 {
		t.Fatalf("expected one leave, got %d", h.sig.leaves)
	}
	if !h.factory.forPeer(2)[0].closed {
		t.Fatal("connection not closed on shutdown")
	}

	done := make(chan struct{})
	go func() {
		h.c.SendChat("late")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("actions after close must not block")
	}
}
