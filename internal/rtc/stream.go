package rtc

import (
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// RemoteStream is the set of remote tracks sharing a stream id.
type RemoteStream struct {
	id string

	mu     sync.Mutex
	tracks []*webrtc.TrackRemote

	packets atomic.Uint64
	bytes   atomic.Uint64
}

func newRemoteStream(id string) *RemoteStream {
	return &RemoteStream{id: id}
}

// NewRemoteStream builds an empty stream; used by presenters and tests.
func NewRemoteStream(id string) *RemoteStream {
	return newRemoteStream(id)
}

func (s *RemoteStream) ID() string { return s.id }

// Tracks returns the tracks seen so far.
func (s *RemoteStream) Tracks() []*webrtc.TrackRemote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*webrtc.TrackRemote(nil), s.tracks...)
}

// Kinds lists the kinds of the tracks seen so far.
func (s *RemoteStream) Kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t.Kind().String())
	}
	return out
}

// Packets is the number of RTP packets received across all tracks.
func (s *RemoteStream) Packets() uint64 { return s.packets.Load() }

// Bytes is the payload volume received across all tracks.
func (s *RemoteStream) Bytes() uint64 { return s.bytes.Load() }

func (s *RemoteStream) add(t *webrtc.TrackRemote) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

// drain reads a track until it ends so pion's buffers never back up.
func (s *RemoteStream) drain(t *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		n, _, err := t.Read(buf)
		if err != nil {
			return
		}
		s.packets.Add(1)
		s.bytes.Add(uint64(n))
	}
}
