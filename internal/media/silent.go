package media

import (
	"context"
	"time"

	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/internal/logging"
)

// opusSilence is a single Opus frame carrying 20ms of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const silenceFrame = 20 * time.Millisecond

// SilentCapturer stands in for a camera on a terminal: it produces an audio
// track that streams Opus silence and a video track that never carries frames.
// Remote peers see the participant join and can toggle against real tracks.
// Screen capture is not available.
type SilentCapturer struct {
	log zerolog.Logger
}

// NewSilentCapturer returns a capturer with no real devices behind it.
func NewSilentCapturer(log zerolog.Logger) *SilentCapturer {
	return &SilentCapturer{log: logging.Module(log, "media")}
}

// UserMedia returns the silent audio track plus an idle video track. The
// silence pump stops with the track.
func (c *SilentCapturer) UserMedia(ctx context.Context) (*Stream, error) {
	audio, err := NewTrack(KindAudio, "audio", "huddle")
	if err != nil {
		return nil, err
	}
	video, err := NewTrack(KindVideo, "video", "huddle")
	if err != nil {
		return nil, err
	}

	go c.pump(audio)
	c.log.Debug().Msg("silent user media ready")
	return NewStream("huddle", audio, video), nil
}

// DisplayMedia always fails: a terminal has no screen source.
func (c *SilentCapturer) DisplayMedia(ctx context.Context) (*Stream, error) {
	return nil, ErrUnavailable
}

func (c *SilentCapturer) pump(t *Track) {
	ticker := time.NewTicker(silenceFrame)
	defer ticker.Stop()

	for {
		select {
		case <-t.Ended():
			return
		case <-ticker.C:
			if err := t.WriteSample(pionmedia.Sample{Data: opusSilence, Duration: silenceFrame}); err != nil && err != ErrTrackEnded {
				c.log.Debug().Err(err).Msg("write silence")
			}
		}
	}
}
