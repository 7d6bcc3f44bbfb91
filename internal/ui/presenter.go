package ui

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/Huddle/internal/media"
	"github.com/BioHazard786/Huddle/internal/rtc"
	"github.com/BioHazard786/Huddle/internal/session"
)

// Presenter forwards session updates into a bubbletea program. Calls made
// before a program is attached are buffered.
type Presenter struct {
	mu      sync.Mutex
	program *tea.Program
	backlog []tea.Msg
}

func NewPresenter() *Presenter {
	return &Presenter{}
}

// Attach starts delivering to program. The backlog is replayed first so
// updates keep their order. Attach blocks until the program is running.
func (p *Presenter) Attach(program *tea.Program) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.program = program
	for _, msg := range p.backlog {
		program.Send(msg)
	}
	p.backlog = nil
}

func (p *Presenter) send(msg tea.Msg) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.program == nil {
		p.backlog = append(p.backlog, msg)
		return
	}
	p.program.Send(msg)
}

func (p *Presenter) AddTile(peerID int64, name string, stream *rtc.RemoteStream) {
	p.send(tileAddedMsg{peerID: peerID, name: name, stream: stream})
}

func (p *Presenter) RemoveTile(peerID int64) { p.send(tileRemovedMsg{peerID: peerID}) }

func (p *Presenter) AppendMessage(line string) { p.send(chatMsg{line: line}) }

func (p *Presenter) ShowIndicator(tile int64, ind session.Indicator, ttl time.Duration) {
	p.send(indicatorMsg{tile: tile, ind: ind, ttl: ttl})
}

func (p *Presenter) SetLocalStream(stream *media.Stream) { p.send(localStreamMsg{stream: stream}) }

func (p *Presenter) SetAudioEnabled(enabled bool) { p.send(audioMsg{enabled: enabled}) }

func (p *Presenter) SetVideoEnabled(enabled bool) { p.send(videoMsg{enabled: enabled}) }

func (p *Presenter) SetSharing(sharing bool) { p.send(sharingMsg{sharing: sharing}) }

func (p *Presenter) Diagnostic(err error) {
	if err != nil {
		p.send(diagnosticMsg{err: err})
	}
}
