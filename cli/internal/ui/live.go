package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BioHazard786/Warpcast/cli/internal/utils"
)

// Tone colours the status line.
type Tone int

const (
	ToneInfo Tone = iota
	ToneSuccess
	ToneWarning
	ToneError
)

// Action is a request the user made from the live view.
type Action int

const (
	ActionToggleShare Action = iota + 1
	ActionQuit
)

// Peer is one link as shown to the user.
type Peer struct {
	ID    string
	Role  string
	State string
}

// TrackStats is one received track as shown to the user.
type TrackStats struct {
	Remote  string
	Kind    string
	Codec   string
	Packets uint64
	Frames  uint64
	Lost    uint64
	Bytes   uint64
	Bitrate float64
}

// Snapshot is everything the live view renders.
type Snapshot struct {
	Room        string
	Self        string
	Broadcaster string
	Sharing     bool
	Users       []string
	Links       []Peer
	Tracks      []TrackStats
	Status      string
	StatusTone  Tone
	Started     time.Time
}

type snapshotMsg Snapshot

type tickMsg time.Time

// LiveView runs the bubbletea status screen of a session.
type LiveView struct {
	program *tea.Program
	model   *liveModel
	wg      sync.WaitGroup
}

type liveModel struct {
	snapshot Snapshot
	spinner  spinner.Model
	canShare bool
	updates  chan Snapshot
	actions  chan Action
	quitting bool
}

// NewLiveView creates a live view. canShare enables the share toggle key.
func NewLiveView(canShare bool) *LiveView {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &LiveView{
		model: &liveModel{
			spinner:  s,
			canShare: canShare,
			updates:  make(chan Snapshot, 16),
			actions:  make(chan Action, 4),
		},
	}
}

// Actions delivers key presses the session must act on.
func (v *LiveView) Actions() <-chan Action { return v.model.actions }

// Start runs the UI in a goroutine, inline so earlier output stays visible.
func (v *LiveView) Start() {
	v.program = tea.NewProgram(v.model)
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		if _, err := v.program.Run(); err != nil {
			PrintErrorf("UI error: %v", err)
		}
	}()
}

// Update replaces what the view shows. Stale snapshots are dropped when
// the view falls behind.
func (v *LiveView) Update(s Snapshot) {
	for {
		select {
		case v.model.updates <- s:
			return
		default:
		}
		select {
		case <-v.model.updates:
		default:
		}
	}
}

func (v *LiveView) Stop() {
	if v.program != nil {
		v.program.Quit()
	}
	v.wg.Wait()
}

func (m *liveModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *liveModel) listen() tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(<-m.updates)
	}
}

func (m *liveModel) act(a Action) {
	select {
	case m.actions <- a:
	default:
	}
}

func (m *liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.act(ActionQuit)
			return m, tea.Quit
		case "s":
			if m.canShare {
				m.act(ActionToggleShare)
			}
		}

	case snapshotMsg:
		m.snapshot = Snapshot(msg)
		return m, m.listen()

	case tickMsg:
		if !m.quitting {
			return m, tick()
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *liveModel) View() string {
	if m.quitting {
		return ""
	}

	s := m.snapshot
	var b strings.Builder

	header := fmt.Sprintf("%s Watching", IconWatch)
	if s.Sharing {
		header = fmt.Sprintf("%s Sharing", IconLive)
	}
	b.WriteString("\n" + HeaderStyle.Render(fmt.Sprintf("%s · %s", header, s.Room)) + "\n")

	sharer := MutedStyle.Render("nobody")
	switch {
	case s.Broadcaster == "":
	case s.Broadcaster == s.Self:
		sharer = SuccessStyle.Render("you")
	default:
		sharer = BoldStyle.Render(utils.TruncateString(s.Broadcaster, 36))
	}
	fmt.Fprintf(&b, "%s Sharer: %s   %s Online: %d", IconScreen, sharer, IconPeer, len(s.Users))
	if !s.Started.IsZero() {
		fmt.Fprintf(&b, "   %s %s", IconTime, utils.FormatTimeDuration(time.Since(s.Started)))
	}
	b.WriteString("\n\n")

	if len(s.Links) == 0 {
		fmt.Fprintf(&b, "  %s %s\n", m.spinner.View(), MutedStyle.Render("No peer connections yet"))
	}
	for _, l := range s.Links {
		fmt.Fprintf(&b, "  %s %s %s %s\n",
			IconConnect,
			lipgloss.NewStyle().Width(38).Render(utils.TruncateString(l.ID, 36)),
			MutedStyle.Width(8).Render(l.Role),
			StateStyle(l.State).Render(l.State),
		)
	}

	for _, t := range s.Tracks {
		fmt.Fprintf(&b, "  %s %s %s  %d frames  %s  %d lost\n",
			IconSpeed, t.Kind, MutedStyle.Render(t.Codec), t.Frames,
			utils.FormatBitrate(t.Bitrate), t.Lost)
	}

	if s.Status != "" {
		b.WriteString("\n" + statusStyle(s.StatusTone).Render(s.Status) + "\n")
	}

	help := "q quit"
	if m.canShare {
		help = "s start/stop sharing · " + help
	}
	b.WriteString(FooterStyle.Render(help))

	return b.String()
}

func statusStyle(t Tone) lipgloss.Style {
	switch t {
	case ToneSuccess:
		return SuccessStyle
	case ToneWarning:
		return WarningStyle
	case ToneError:
		return ErrorStyle
	}
	return lipgloss.NewStyle()
}
