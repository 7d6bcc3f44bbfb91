package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/Huddle/internal/media"
	"github.com/BioHazard786/Huddle/internal/peer"
	"github.com/BioHazard786/Huddle/internal/rtc"
	"github.com/BioHazard786/Huddle/internal/session"
)

const (
	maxMessages   = 200
	statsInterval = time.Second
)

// Actions are the local controls the room view drives.
type Actions interface {
	SendChat(text string)
	ToggleMute()
	ToggleVideo()
	StartScreenShare()
	StopScreenShare()
	RaiseHand()
	SendEmoji(emoji string)
	Peers() []peer.Entry
}

// Messages delivered by Presenter.
type (
	tileAddedMsg struct {
		peerID int64
		name   string
		stream *rtc.RemoteStream
	}
	tileRemovedMsg struct{ peerID int64 }
	chatMsg        struct{ line string }
	indicatorMsg   struct {
		tile int64
		ind  session.Indicator
		ttl  time.Duration
	}
	overlayExpiredMsg struct {
		tile int64
		id   uint64
	}
	localStreamMsg struct{ stream *media.Stream }
	audioMsg       struct{ enabled bool }
	videoMsg       struct{ enabled bool }
	sharingMsg     struct{ sharing bool }
	diagnosticMsg  struct{ err error }
	statsTickMsg   struct{}
)

type overlay struct {
	id  uint64
	ind session.Indicator
}

type tile struct {
	peerID   int64
	name     string
	stream   *rtc.RemoteStream
	overlays []overlay

	lastBytes uint64
	rate      uint64
}

// RoomModel is the bubbletea model for one room.
type RoomModel struct {
	room    string
	self    string
	actions Actions

	input   textinput.Model
	spinner spinner.Model

	local    tile
	hasLocal bool
	audio    bool
	video    bool
	sharing  bool

	tiles     []*tile
	messages  []string
	diag      string
	showPeers bool

	nextOverlay   uint64
	width, height int
}

// NewRoomModel builds the view for room as seen by self.
func NewRoomModel(room, self string, actions Actions) *RoomModel {
	in := textinput.New()
	in.Placeholder = "Type a message or /help"
	in.Prompt = "› "
	in.CharLimit = 2000
	in.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &RoomModel{
		room:    room,
		self:    self,
		actions: actions,
		input:   in,
		spinner: s,
		local:   tile{peerID: session.LocalTile, name: self},
	}
}

func (m *RoomModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, statsTick())
}

func statsTick() tea.Cmd {
	return tea.Tick(statsInterval, func(time.Time) tea.Msg { return statsTickMsg{} })
}

func (m *RoomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.SetValue("")
			return m, m.submit(line)
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statsTickMsg:
		for _, t := range m.tiles {
			if t.stream == nil {
				continue
			}
			total := t.stream.Bytes()
			t.rate = (total - t.lastBytes) * uint64(time.Second/statsInterval)
			t.lastBytes = total
		}
		return m, statsTick()

	case tileAddedMsg:
		if m.findTile(msg.peerID) == nil {
			m.tiles = append(m.tiles, &tile{peerID: msg.peerID, name: msg.name, stream: msg.stream})
		}
		return m, nil

	case tileRemovedMsg:
		for i, t := range m.tiles {
			if t.peerID == msg.peerID {
				m.tiles = append(m.tiles[:i], m.tiles[i+1:]...)
				break
			}
		}
		return m, nil

	case chatMsg:
		m.appendMessage(msg.line)
		return m, nil

	case indicatorMsg:
		t := m.findTile(msg.tile)
		if t == nil {
			return m, nil
		}
		m.nextOverlay++
		id := m.nextOverlay
		t.overlays = append(t.overlays, overlay{id: id, ind: msg.ind})
		target := msg.tile
		return m, tea.Tick(msg.ttl, func(time.Time) tea.Msg {
			return overlayExpiredMsg{tile: target, id: id}
		})

	case overlayExpiredMsg:
		if t := m.findTile(msg.tile); t != nil {
			for i, o := range t.overlays {
				if o.id == msg.id {
					t.overlays = append(t.overlays[:i], t.overlays[i+1:]...)
					break
				}
			}
		}
		return m, nil

	case localStreamMsg:
		m.hasLocal = msg.stream != nil
		return m, nil

	case audioMsg:
		m.audio = msg.enabled
		return m, nil

	case videoMsg:
		m.video = msg.enabled
		return m, nil

	case sharingMsg:
		m.sharing = msg.sharing
		return m, nil

	case diagnosticMsg:
		m.diag = msg.err.Error()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *RoomModel) submit(line string) tea.Cmd {
	if strings.TrimSpace(line) == "" {
		return nil
	}

	c := ParseCommand(line)
	switch c.Kind {
	case CmdChat:
		m.actions.SendChat(c.Arg)
	case CmdMute:
		m.actions.ToggleMute()
	case CmdVideo:
		m.actions.ToggleVideo()
	case CmdShare:
		m.actions.StartScreenShare()
	case CmdUnshare:
		m.actions.StopScreenShare()
	case CmdHand:
		m.actions.RaiseHand()
	case CmdReact:
		if c.Arg == "" {
			m.diag = "usage: /react <emoji>"
			return nil
		}
		m.actions.SendEmoji(c.Arg)
	case CmdPeers:
		m.showPeers = !m.showPeers
	case CmdHelp:
		m.appendMessage(helpText)
	case CmdQuit:
		return tea.Quit
	case CmdUnknown:
		m.diag = fmt.Sprintf("unknown command /%s (try /help)", c.Arg)
	}
	return nil
}

func (m *RoomModel) findTile(id int64) *tile {
	if id == session.LocalTile {
		return &m.local
	}
	for _, t := range m.tiles {
		if t.peerID == id {
			return t
		}
	}
	return nil
}

func (m *RoomModel) appendMessage(line string) {
	m.messages = append(m.messages, line)
	if len(m.messages) > maxMessages {
		m.messages = m.messages[len(m.messages)-maxMessages:]
	}
}

// TileCount is the number of remote tiles on screen.
func (m *RoomModel) TileCount() int {
	return len(m.tiles)
}

func (m *RoomModel) View() string {
	var b strings.Builder

	b.WriteString(m.headerView())
	b.WriteString("\n")

	if len(m.tiles) == 0 {
		b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), MutedStyle.Render("Waiting for peers to join "+m.room)))
	} else {
		cols := Columns(len(m.tiles))
		width := tileWidth(m.width, cols)
		rendered := make([]string, 0, len(m.tiles))
		for _, t := range m.tiles {
			rendered = append(rendered, m.tileView(t, width))
		}
		b.WriteString(renderGrid(rendered, cols))
		b.WriteString("\n")
	}

	if m.showPeers {
		b.WriteString(PeerTableView(m.actions.Peers()))
		b.WriteString("\n")
	}

	b.WriteString(ChatStyle.Render(strings.Join(m.visibleMessages(), "\n")))
	b.WriteString("\n")

	if m.diag != "" {
		b.WriteString(WarningStyle.Render(IconWarning + " " + m.diag))
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(FooterStyle.Render("enter send • /help commands • esc quit"))
	return b.String()
}

func (m *RoomModel) headerView() string {
	title := HeaderStyle.Render(fmt.Sprintf("%s %s", IconRoom, m.room))
	badges := []string{title, BoldStyle.Render(IconPeer + " " + m.self)}

	if m.hasLocal {
		badges = append(badges, badge(IconMic, m.audio), badge(IconCamera, m.video))
	} else {
		badges = append(badges, MutedStyle.Render("receive-only"))
	}
	if m.sharing {
		badges = append(badges, BadgeShareStyle.Render(IconScreen+" sharing"))
	}
	for _, o := range m.local.overlays {
		badges = append(badges, OverlayStyle.Render(o.ind.Text))
	}
	return strings.Join(badges, " ")
}

func badge(icon string, on bool) string {
	if on {
		return BadgeOnStyle.Render(icon + " on")
	}
	return BadgeOffStyle.Render(icon + " off")
}

func (m *RoomModel) tileView(t *tile, width int) string {
	lines := []string{TileNameStyle.Render(truncate(t.name, width))}

	if t.stream != nil {
		kinds := strings.Join(t.stream.Kinds(), "+")
		lines = append(lines, MutedStyle.Render(fmt.Sprintf("%s %d pkts", kinds, t.stream.Packets())))
		lines = append(lines, MutedStyle.Render(fmt.Sprintf("%s · %s", formatSize(t.lastBytes), formatRate(t.rate))))
	}

	var marks []string
	for _, o := range t.overlays {
		marks = append(marks, o.ind.Text)
	}
	lines = append(lines, OverlayStyle.Render(strings.Join(marks, " ")))

	return TileStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m *RoomModel) visibleMessages() []string {
	const tileHeight, chrome = 6, 8
	visible := 8
	if m.height > 0 {
		cols := Columns(len(m.tiles))
		rows := (len(m.tiles) + cols - 1) / cols
		visible = max(m.height-chrome-tileHeight*rows, 3)
	}
	if len(m.messages) <= visible {
		return m.messages
	}
	return m.messages[len(m.messages)-visible:]
}
