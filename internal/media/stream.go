package media

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by capturers that cannot provide a source.
var ErrUnavailable = errors.New("media source unavailable")

// Stream groups local tracks captured together.
type Stream struct {
	id     string
	tracks []*Track
}

// NewStream wraps already created tracks.
func NewStream(id string, tracks ...*Track) *Stream {
	return &Stream{id: id, tracks: tracks}
}

func (s *Stream) ID() string { return s.id }

// Tracks returns every track in capture order.
func (s *Stream) Tracks() []*Track {
	if s == nil {
		return nil
	}
	return append([]*Track(nil), s.tracks...)
}

// AudioTracks returns the audio tracks.
func (s *Stream) AudioTracks() []*Track { return s.byKind(KindAudio) }

// VideoTracks returns the video tracks.
func (s *Stream) VideoTracks() []*Track { return s.byKind(KindVideo) }

// FirstVideo returns the first video track or nil.
func (s *Stream) FirstVideo() *Track {
	if v := s.VideoTracks(); len(v) > 0 {
		return v[0]
	}
	return nil
}

func (s *Stream) byKind(kind Kind) []*Track {
	if s == nil {
		return nil
	}
	var out []*Track
	for _, t := range s.tracks {
		if t.kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// Stop ends every track.
func (s *Stream) Stop() {
	if s == nil {
		return
	}
	for _, t := range s.tracks {
		t.Stop()
	}
}

// Capturer acquires local media. Both calls may block until the source is
// ready or the user grants access.
type Capturer interface {
	// UserMedia returns a camera and microphone stream.
	UserMedia(ctx context.Context) (*Stream, error)
	// DisplayMedia returns a screen-capture stream with one video track.
	DisplayMedia(ctx context.Context) (*Stream, error)
}
