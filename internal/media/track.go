package media

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// Kind is the media type of a local track.
type Kind int

const (
	KindAudio Kind = iota
	KindVideo
)

func (k Kind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "audio"
}

// ErrTrackEnded is returned when writing to a stopped track.
var ErrTrackEnded = errors.New("track ended")

// Track is a local outgoing track. Its enabled flag is shared by every peer
// connection the track is attached to: a disabled track drops samples instead
// of sending them, so toggling it never touches negotiation.
type Track struct {
	kind    Kind
	local   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool

	ended   chan struct{}
	endOnce sync.Once
}

// NewTrack creates an enabled Opus (audio) or VP8 (video) track.
func NewTrack(kind Kind, id, streamID string) (*Track, error) {
	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	if kind == KindVideo {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}

	local, err := webrtc.NewTrackLocalStaticSample(capability, id, streamID)
	if err != nil {
		return nil, err
	}

	t := &Track{kind: kind, local: local, ended: make(chan struct{})}
	t.enabled.Store(true)
	return t, nil
}

func (t *Track) ID() string { return t.local.ID() }
func (t *Track) Kind() Kind { return t.kind }
func (t *Track) Enabled() bool { return t.enabled.Load() }

// Local is the pion track handed to AddTrack / ReplaceTrack.
func (t *Track) Local() webrtc.TrackLocal { return t.local }

// Toggle inverts the enabled flag and returns the new value.
func (t *Track) Toggle() bool {
	for {
		old := t.enabled.Load()
		if t.enabled.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// WriteSample forwards a sample to every bound connection. Disabled tracks
// swallow the sample.
func (t *Track) WriteSample(s pionmedia.Sample) error {
	select {
	case <-t.ended:
		return ErrTrackEnded
	default:
	}
	if !t.enabled.Load() {
		return nil
	}
	return t.local.WriteSample(s)
}

// Stop ends the track. Ended() is closed exactly once.
func (t *Track) Stop() {
	t.endOnce.Do(func() { close(t.ended) })
}

// Ended is closed when the track stops, for example when the user ends a
// screen share from the capture source itself.
func (t *Track) Ended() <-chan struct{} { return t.ended }
