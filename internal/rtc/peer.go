package rtc

import (
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/internal/media"
)

const (
	dataChannelLabel = "data"
	signalBuffer     = 64
)

// peer is the pion implementation of Connection.
type peer struct {
	id   int64
	name string
	role Role
	pc   *webrtc.PeerConnection
	log  zerolog.Logger

	// polite yields on an offer collision.
	polite bool

	events  chan<- Event
	signals chan SignalPayload
	done    chan struct{}

	mu          sync.Mutex
	dc          *webrtc.DataChannel
	videoSender *webrtc.RTPSender
	streams     map[string]*RemoteStream
	pending     []webrtc.ICECandidateInit

	closeOnce  sync.Once
	closedOnce sync.Once
}

func newPeer(pc *webrtc.PeerConnection, role Role, id int64, name string, events chan<- Event, log zerolog.Logger) *peer {
	return &peer{
		id:      id,
		name:    name,
		role:    role,
		pc:      pc,
		log:     log.With().Int64("peer", id).Logger(),
		events:  events,
		signals: make(chan SignalPayload, signalBuffer),
		done:    make(chan struct{}),
		streams: make(map[string]*RemoteStream),
	}
}

func (p *peer) start(local *media.Stream) error {
	if err := p.attach(local); err != nil {
		return err
	}
	p.bindHandlers()

	if p.role == RoleInitiator {
		ordered := true
		dc, err := p.pc.CreateDataChannel(dataChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
		if err != nil {
			return newError("create data channel", p.id, err)
		}
		p.setChannel(dc)
	}

	go p.negotiate()
	return nil
}

// attach adds local tracks, or receive-only transceivers for an initiator
// without media so the offer still asks for the remote's audio and video.
func (p *peer) attach(local *media.Stream) error {
	tracks := local.Tracks()
	if len(tracks) == 0 {
		if p.role != RoleInitiator {
			return nil
		}
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			_, err := p.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly})
			if err != nil {
				return newError("add transceiver", p.id, err)
			}
		}
		return nil
	}

	for _, t := range tracks {
		sender, err := p.pc.AddTrack(t.Local())
		if err != nil {
			return newError("add track", p.id, err)
		}
		if t.Kind() == media.KindVideo && p.videoSender == nil {
			p.videoSender = sender
		}
		go drainRTCP(sender)
	}
	return nil
}

// drainRTCP keeps interceptors (NACK, reports) running for a sender.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (p *peer) bindHandlers() {
	p.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.log.Debug().Str("state", state.String()).Msg("connection state")
		switch state {
		case webrtc.PeerConnectionStateFailed:
			p.closed(ErrConnectionFailed)
		case webrtc.PeerConnectionStateClosed:
			p.closed(nil)
		}
	})

	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.mu.Lock()
		stream, seen := p.streams[track.StreamID()]
		if !seen {
			stream = newRemoteStream(track.StreamID())
			p.streams[track.StreamID()] = stream
		}
		p.mu.Unlock()

		stream.add(track)
		go stream.drain(track)

		p.log.Debug().Str("kind", track.Kind().String()).Str("stream", track.StreamID()).Msg("remote track")
		if !seen {
			p.emit(Event{Kind: EventStream, Stream: stream})
		}
	})

	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != dataChannelLabel {
			p.log.Debug().Str("label", dc.Label()).Msg("ignoring data channel")
			return
		}
		p.setChannel(dc)
	})
}

func (p *peer) setChannel(dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.log.Debug().Msg("data channel open")
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		p.emit(Event{Kind: EventData, Data: Data{Bytes: msg.Data, IsString: msg.IsString}})
	})
	dc.OnClose(func() {
		p.closed(nil)
	})
}

func (p *peer) channel() *webrtc.DataChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dc
}

// negotiate owns every SDP operation for this connection so payloads are
// applied strictly in arrival order.
func (p *peer) negotiate() {
	if p.role == RoleInitiator {
		if err := p.offer(); err != nil {
			p.log.Warn().Err(err).Msg("offer failed")
			p.closed(err)
			return
		}
	}

	for {
		select {
		case <-p.done:
			return
		case sp := <-p.signals:
			if err := p.apply(sp); err != nil {
				p.log.Warn().Err(err).Str("type", sp.Type).Msg("signal failed")
				p.closed(err)
				return
			}
		}
	}
}

func (p *peer) offer() error {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return newError("create offer", p.id, err)
	}
	return p.publish(offer)
}

func (p *peer) answer() error {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return newError("create answer", p.id, err)
	}
	return p.publish(answer)
}

// publish sets the local description and emits it once gathering is complete.
func (p *peer) publish(desc webrtc.SessionDescription) error {
	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(desc); err != nil {
		return newError("set local description", p.id, err)
	}

	select {
	case <-gathered:
	case <-p.done:
		return ErrClosed
	}

	raw, err := EncodeDescription(p.pc.LocalDescription())
	if err != nil {
		return newError("encode description", p.id, err)
	}
	p.emit(Event{Kind: EventSignal, Signal: raw})
	return nil
}

func (p *peer) apply(sp SignalPayload) error {
	switch {
	case sp.control():
		p.log.Debug().Msg("ignoring renegotiation request")
		return nil
	case sp.Type == SignalOffer:
		if p.pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
			if !p.polite {
				p.log.Debug().Msg("ignoring colliding offer")
				return nil
			}
			if err := p.rollback(); err != nil {
				return err
			}
		}
		if err := p.setRemote(webrtc.SDPTypeOffer, sp.SDP); err != nil {
			return err
		}
		return p.answer()
	case sp.Type == SignalAnswer:
		if p.pc.SignalingState() == webrtc.SignalingStateStable {
			p.log.Debug().Msg("ignoring answer in stable state")
			return nil
		}
		return p.setRemote(webrtc.SDPTypeAnswer, sp.SDP)
	case sp.Candidate != nil:
		return p.addCandidate(*sp.Candidate)
	default:
		return wrapError("handle signal", p.id, ErrUnexpectedSignal, sp.Type)
	}
}

// rollback drops the pending local offer so a colliding remote offer can be
// answered instead.
func (p *peer) rollback() error {
	pending := p.pc.PendingLocalDescription()
	if pending == nil {
		return nil
	}
	p.log.Debug().Msg("offer collision, rolling back local offer")
	err := p.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback, SDP: pending.SDP})
	if err != nil {
		return newError("rollback local offer", p.id, err)
	}
	return nil
}

func (p *peer) setRemote(typ webrtc.SDPType, sdp string) error {
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: sdp}); err != nil {
		return newError("set remote description", p.id, err)
	}

	pending := p.pending
	p.pending = nil
	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			return newError("add ICE candidate", p.id, err)
		}
	}
	return nil
}

// addCandidate queues candidates that arrive before the remote description.
func (p *peer) addCandidate(c webrtc.ICECandidateInit) error {
	if p.pc.RemoteDescription() == nil {
		p.pending = append(p.pending, c)
		return nil
	}
	if err := p.pc.AddICECandidate(c); err != nil {
		return newError("add ICE candidate", p.id, err)
	}
	return nil
}

func (p *peer) emit(ev Event) {
	ev.PeerID = p.id
	ev.PeerName = p.name
	ev.Conn = p

	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.events <- ev:
	case <-p.done:
	}
}

// closed reports the end of the connection once. The owner tears it down.
func (p *peer) closed(err error) {
	p.closedOnce.Do(func() {
		p.emit(Event{Kind: EventClosed, Err: err})
	})
}

func (p *peer) Signal(payload json.RawMessage) error {
	sp, err := DecodeSignal(payload)
	if err != nil {
		return err
	}

	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.signals <- sp:
		return nil
	case <-p.done:
		return ErrClosed
	}
}

func (p *peer) SendText(text string) error {
	dc := p.channel()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	if err := dc.SendText(text); err != nil {
		return newError("send text", p.id, err)
	}
	return nil
}

func (p *peer) SendBinary(data []byte) error {
	dc := p.channel()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	if err := dc.Send(data); err != nil {
		return newError("send binary", p.id, err)
	}
	return nil
}

func (p *peer) ReplaceVideoTrack(track *media.Track) error {
	if p.videoSender == nil {
		return ErrNoVideoSender
	}
	if track == nil {
		return newError("replace track", p.id, ErrNoVideoSender)
	}
	if err := p.videoSender.ReplaceTrack(track.Local()); err != nil {
		return newError("replace track", p.id, err)
	}
	return nil
}

func (p *peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		if cerr := p.pc.Close(); cerr != nil {
			err = newError("close", p.id, cerr)
		}
	})
	return err
}
