// Package session coordinates one participant's view of a room: signaling
// envelopes, per-peer connections, local media and data-channel payloads.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/internal/logging"
	"github.com/BioHazard786/Huddle/internal/media"
	"github.com/BioHazard786/Huddle/internal/peer"
	"github.com/BioHazard786/Huddle/internal/rtc"
	"github.com/BioHazard786/Huddle/internal/signaling"
)

const inboxSize = 256

var errAlreadySharing = errors.New("screen share already active")

// Signaler is the relay bus as the coordinator sees it.
type Signaler interface {
	OnMessage(func(signaling.Envelope))
	Send(signaling.Envelope) error
	Leave() error
}

// Config wires a Coordinator.
type Config struct {
	Identity  signaling.Identity
	Signaling Signaler
	Factory   peer.Factory
	Events    <-chan rtc.Event
	Capturer  media.Capturer
	Presenter Presenter
	// Encoding picks the structured payload format (config.PayloadJSON or
	// config.PayloadMsgpack). Chat always goes out as text.
	Encoding string
	Logger   zerolog.Logger
}

// Coordinator is an actor: every envelope, connection event and local action
// runs as one closure on the Run goroutine.
type Coordinator struct {
	id       signaling.Identity
	sig      Signaler
	table    *peer.Table
	events   <-chan rtc.Event
	capturer media.Capturer
	ui       Presenter
	encoding string
	log      zerolog.Logger

	inbox   chan func()
	quit    chan struct{}
	stopped chan struct{}
	ready   chan struct{}
	ctx     context.Context

	running   atomic.Bool
	closeOnce sync.Once

	// Owned by the Run goroutine.
	local  *media.Stream
	screen *media.Stream
}

func New(cfg Config) *Coordinator {
	c := &Coordinator{
		id:       cfg.Identity,
		sig:      cfg.Signaling,
		table:    peer.NewTable(cfg.Factory, cfg.Logger),
		events:   cfg.Events,
		capturer: cfg.Capturer,
		ui:       cfg.Presenter,
		encoding: cfg.Encoding,
		log:      logging.Module(cfg.Logger, "session"),
		inbox:    make(chan func(), inboxSize),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
		ctx:      context.Background(),
	}
	c.sig.OnMessage(c.HandleEnvelope)
	return c
}

// Run processes events until ctx is done or Close is called, then leaves the
// room and tears every connection down.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("coordinator already running")
	}
	defer close(c.stopped)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.ctx = ctx

	c.acquireUserMedia(ctx)

	events := c.events
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case <-c.quit:
			c.shutdown()
			return nil
		case fn := <-c.inbox:
			fn()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.handleEvent(ev)
		}
	}
}

// Ready is closed once the camera/microphone attempt has finished, so
// connections created afterwards carry local media when it is available.
func (c *Coordinator) Ready() <-chan struct{} {
	return c.ready
}

// Close leaves the room and removes every peer. It is safe to call more
// than once and without Run.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		close(c.quit)
		if !c.running.CompareAndSwap(false, true) {
			<-c.stopped
			return
		}
		close(c.stopped)
		c.shutdown()
	})
}

// Peers returns a snapshot of the peer table.
func (c *Coordinator) Peers() []peer.Entry {
	return c.table.All()
}

func (c *Coordinator) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.stopped:
	}
}

func (c *Coordinator) shutdown() {
	if err := c.sig.Leave(); err != nil {
		c.log.Debug().Err(err).Msg("leave")
	}
	c.table.Clear()
	c.screen.Stop()
	c.local.Stop()
	c.log.Info().Msg("session closed")
}

func (c *Coordinator) acquireUserMedia(ctx context.Context) {
	if c.capturer == nil {
		close(c.ready)
		return
	}
	go func() {
		stream, err := c.capturer.UserMedia(ctx)
		c.post(func() {
			defer close(c.ready)
			if err != nil {
				c.log.Warn().Err(err).Msg("no local media, continuing receive-only")
				c.ui.Diagnostic(fmt.Errorf("camera/microphone: %w", err))
				return
			}
			c.local = stream
			c.table.SetLocal(stream)
			c.ui.SetLocalStream(stream)
			c.ui.SetAudioEnabled(allEnabled(stream.AudioTracks()))
			c.ui.SetVideoEnabled(allEnabled(stream.VideoTracks()))
		})
	}()
}

// HandleEnvelope queues an inbound relay envelope.
func (c *Coordinator) HandleEnvelope(env signaling.Envelope) {
	c.post(func() { c.handleEnvelope(env) })
}

func (c *Coordinator) handleEnvelope(env signaling.Envelope) {
	if env.UserID == c.id.UserID {
		return
	}

	switch env.Type {
	case signaling.TypeSignal:
		if target, ok := env.Target(); ok && target != c.id.UserID {
			return
		}
		if _, created, err := c.table.Ensure(env.UserID, displayName(env), rtc.RoleResponder); err != nil {
			c.log.Warn().Err(err).Int64("peer", env.UserID).Msg("cannot create connection")
			return
		} else if created {
			c.log.Info().Int64("peer", env.UserID).Str("name", displayName(env)).Msg("answering peer")
		}
		if err := c.table.DispatchSignal(env.UserID, env.Signal); err != nil {
			c.log.Debug().Err(err).Int64("peer", env.UserID).Msg("signal dropped")
		}

	case signaling.TypeNewUser:
		if _, created, err := c.table.Ensure(env.UserID, displayName(env), rtc.RoleInitiator); err != nil {
			c.log.Warn().Err(err).Int64("peer", env.UserID).Msg("cannot create connection")
		} else if created {
			c.log.Info().Int64("peer", env.UserID).Str("name", displayName(env)).Msg("calling new peer")
		}

	case signaling.TypeUserLeft:
		c.dropPeer(env.UserID)

	default:
		c.log.Debug().Str("type", env.Type).Msg("ignoring envelope")
	}
}

func displayName(env signaling.Envelope) string {
	if env.Username != "" {
		return env.Username
	}
	return strconv.FormatInt(env.UserID, 10)
}

func (c *Coordinator) dropPeer(peerID int64) {
	if c.table.Remove(peerID) {
		c.ui.RemoveTile(peerID)
		c.log.Info().Int64("peer", peerID).Msg("peer left")
	}
}

// handleEvent accepts events only from the connection the table still holds
// for that peer.
func (c *Coordinator) handleEvent(ev rtc.Event) {
	e, ok := c.table.Get(ev.PeerID)
	if !ok || e.Conn != ev.Conn {
		c.log.Debug().Str("event", ev.Kind.String()).Int64("peer", ev.PeerID).Msg("stale connection event")
		return
	}

	switch ev.Kind {
	case rtc.EventSignal:
		if err := c.sig.Send(c.id.SignalTo(ev.PeerID, ev.Signal)); err != nil {
			c.log.Warn().Err(err).Int64("peer", ev.PeerID).Msg("signal not sent")
		}
	case rtc.EventStream:
		c.table.MarkConnected(ev.PeerID)
		c.ui.AddTile(ev.PeerID, e.DisplayName, ev.Stream)
	case rtc.EventData:
		c.receive(e, ev.Data)
	case rtc.EventClosed:
		if ev.Err != nil {
			c.log.Warn().Err(ev.Err).Int64("peer", ev.PeerID).Msg("connection failed")
		}
		if c.table.RemoveConn(ev.PeerID, ev.Conn) {
			c.ui.RemoveTile(ev.PeerID)
		}
	}
}

func (c *Coordinator) receive(from peer.Entry, d rtc.Data) {
	p, ok := ParsePayload(d.Bytes, d.IsString)
	if !ok {
		c.ui.AppendMessage(from.DisplayName + ": " + string(d.Bytes))
		return
	}

	switch p.Type {
	case PayloadHand:
		c.ui.ShowIndicator(from.PeerID, Indicator{Kind: IndicatorHand, Text: handGlyph}, HandTTL)
	case PayloadEmoji:
		c.ui.ShowIndicator(from.PeerID, Indicator{Kind: IndicatorEmoji, Text: p.Emoji}, EmojiTTL)
	}
}

// SendChat shows the line locally and sends the raw text to every peer.
func (c *Coordinator) SendChat(text string) {
	c.post(func() {
		if text == "" {
			return
		}
		c.ui.AppendMessage("Me: " + text)
		for _, e := range c.table.All() {
			if err := e.Conn.SendText(text); err != nil {
				c.log.Debug().Err(err).Int64("peer", e.PeerID).Msg("chat not delivered")
			}
		}
	})
}

func (c *Coordinator) broadcast(p Payload) {
	data, binary, err := EncodePayload(p, c.encoding)
	if err != nil {
		c.log.Error().Err(err).Msg("encode payload")
		return
	}
	for _, e := range c.table.All() {
		if binary {
			err = e.Conn.SendBinary(data)
		} else {
			err = e.Conn.SendText(string(data))
		}
		if err != nil {
			c.log.Debug().Err(err).Int64("peer", e.PeerID).Str("payload", p.Type).Msg("payload not delivered")
		}
	}
}

// RaiseHand shows a local hand and tells every peer.
func (c *Coordinator) RaiseHand() {
	c.post(func() {
		c.ui.ShowIndicator(LocalTile, Indicator{Kind: IndicatorHand, Text: handGlyph}, HandTTL)
		c.broadcast(Payload{Type: PayloadHand})
	})
}

// SendEmoji shows a reaction locally and on every peer's view of this tile.
func (c *Coordinator) SendEmoji(emoji string) {
	c.post(func() {
		if emoji == "" {
			return
		}
		c.ui.ShowIndicator(LocalTile, Indicator{Kind: IndicatorEmoji, Text: emoji}, EmojiTTL)
		c.broadcast(Payload{Type: PayloadEmoji, Emoji: emoji})
	})
}

// ToggleMute flips every local audio track. No renegotiation happens.
func (c *Coordinator) ToggleMute() {
	c.post(func() {
		tracks := c.local.AudioTracks()
		if len(tracks) == 0 {
			c.log.Warn().Msg("no local audio to mute")
			return
		}
		c.ui.SetAudioEnabled(toggle(tracks))
	})
}

// ToggleVideo flips every local video track. No renegotiation happens.
func (c *Coordinator) ToggleVideo() {
	c.post(func() {
		tracks := c.local.VideoTracks()
		if len(tracks) == 0 {
			c.log.Warn().Msg("no local video to toggle")
			return
		}
		c.ui.SetVideoEnabled(toggle(tracks))
	})
}

// toggle flips each track and reports the first track's new state.
func toggle(tracks []*media.Track) bool {
	first := tracks[0].Toggle()
	for _, t := range tracks[1:] {
		t.Toggle()
	}
	return first
}

func allEnabled(tracks []*media.Track) bool {
	for _, t := range tracks {
		if !t.Enabled() {
			return false
		}
	}
	return len(tracks) > 0
}

// StartScreenShare captures the screen off the loop and swaps it in as the
// outgoing video for the peers present now. Peers that join later get the
// camera track.
func (c *Coordinator) StartScreenShare() {
	c.post(func() {
		if c.screen != nil {
			c.ui.Diagnostic(errAlreadySharing)
			return
		}
		if c.capturer == nil {
			c.ui.Diagnostic(fmt.Errorf("screen share: %w", media.ErrUnavailable))
			return
		}

		snapshot := c.table.All()
		ctx := c.ctx
		go func() {
			screen, err := c.capturer.DisplayMedia(ctx)
			c.post(func() { c.applyScreen(snapshot, screen, err) })
		}()
	})
}

func (c *Coordinator) applyScreen(snapshot []peer.Entry, screen *media.Stream, err error) {
	if err != nil {
		c.log.Warn().Err(err).Msg("screen capture failed")
		c.ui.Diagnostic(fmt.Errorf("screen share: %w", err))
		return
	}
	track := screen.FirstVideo()
	if track == nil {
		screen.Stop()
		c.ui.Diagnostic(fmt.Errorf("screen share: %w", media.ErrUnavailable))
		return
	}
	if c.screen != nil {
		screen.Stop()
		return
	}

	for _, e := range snapshot {
		cur, ok := c.table.Get(e.PeerID)
		if !ok || cur.Conn != e.Conn {
			continue
		}
		if err := e.Conn.ReplaceVideoTrack(track); err != nil {
			c.log.Debug().Err(err).Int64("peer", e.PeerID).Msg("replace with screen")
		}
	}

	c.screen = screen
	c.ui.SetSharing(true)
	c.log.Info().Int("peers", len(snapshot)).Msg("screen share started")

	go func() {
		select {
		case <-track.Ended():
			c.post(func() { c.endShare(screen) })
		case <-c.stopped:
		}
	}()
}

// StopScreenShare ends the share as if the capture source had stopped.
func (c *Coordinator) StopScreenShare() {
	c.post(func() {
		if c.screen == nil {
			return
		}
		c.endShare(c.screen)
	})
}

// endShare puts the camera back on every current peer.
func (c *Coordinator) endShare(screen *media.Stream) {
	if c.screen != screen {
		return
	}
	c.screen = nil
	screen.Stop()

	if camera := c.local.FirstVideo(); camera != nil {
		for _, e := range c.table.All() {
			if err := e.Conn.ReplaceVideoTrack(camera); err != nil {
				c.log.Debug().Err(err).Int64("peer", e.PeerID).Msg("restore camera")
			}
		}
	}
	c.ui.SetSharing(false)
	c.log.Info().Msg("screen share stopped")
}
