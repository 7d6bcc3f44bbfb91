package session

import (
	"time"

	"github.com/BioHazard786/Huddle/internal/media"
	"github.com/BioHazard786/Huddle/internal/rtc"
)

// LocalTile addresses the local participant's tile. User ids are never
// negative.
const LocalTile int64 = -1

// Indicator display times.
const (
	HandTTL  = 2 * time.Second
	EmojiTTL = time.Second
)

const handGlyph = "✋"

// IndicatorKind tags a transient overlay.
type IndicatorKind int

const (
	IndicatorHand IndicatorKind = iota
	IndicatorEmoji
)

// Indicator is a transient overlay on a tile.
type Indicator struct {
	Kind IndicatorKind
	Text string
}

// Presenter renders session state. Calls arrive from the coordinator
// goroutine; implementations must be safe to call from it.
type Presenter interface {
	AddTile(peerID int64, name string, stream *rtc.RemoteStream)
	RemoveTile(peerID int64)
	AppendMessage(line string)
	ShowIndicator(tile int64, ind Indicator, ttl time.Duration)
	SetLocalStream(stream *media.Stream)
	SetAudioEnabled(enabled bool)
	SetVideoEnabled(enabled bool)
	SetSharing(sharing bool)
	Diagnostic(err error)
}
