package ui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/Warpcast/cli/internal/utils"
)

// RoomInfo is the box printed after joining a room.
type RoomInfo struct {
	RoomID   string
	RoomLink string
	Sharing  bool
}

func NewRoomInfo(roomID, roomLink string, sharing bool) *RoomInfo {
	return &RoomInfo{
		RoomID:   roomID,
		RoomLink: roomLink,
		Sharing:  sharing,
	}
}

func (r *RoomInfo) View() string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Success).
		Padding(1, 2)

	title := fmt.Sprintf("%s Joined room", IconWatch)
	if r.Sharing {
		title = fmt.Sprintf("%s Sharing in room", IconScreen)
	}

	content := fmt.Sprintf("%s\n\n%s Room ID:    %s\n%s Room Link:  %s\n%s Watch:      %s",
		title,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconWeb, MutedStyle.Render(r.RoomLink),
		IconLink, MutedStyle.Render("warpcast watch "+r.RoomID),
	)

	return boxStyle.Render(content)
}

func RenderRoomInfo(roomID, roomLink string, sharing bool) {
	fmt.Println(NewRoomInfo(roomID, roomLink, sharing).View())
}

// SourceItem is the recording a sharer is about to broadcast.
type SourceItem struct {
	Name       string
	Codec      string
	Resolution string
	FrameRate  float64
	Size       int64
}

// SourceView renders the source as a lipgloss table.
func SourceView(item SourceItem) string {
	headers := []string{"Name", "Codec", "Resolution", "FPS", "Size"}
	rows := [][]string{{
		utils.TruncateString(item.Name, 40),
		item.Codec,
		item.Resolution,
		fmt.Sprintf("%.0f", item.FrameRate),
		utils.FormatSize(uint64(max(item.Size, 0))),
	}}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableRowStyle
		})

	return tbl.Render()
}

func RenderSource(item SourceItem) {
	fmt.Println(SourceView(item))
}

// ParticipantsView lists everyone in the session with their link to us.
func ParticipantsView(s Snapshot) string {
	t := prettytable.NewWriter()
	t.SetTitle("%s Participants", IconPeer)
	t.AppendHeader(prettytable.Row{"#", "Participant", "Role", "Link"})

	links := make(map[string]Peer, len(s.Links))
	for _, l := range s.Links {
		links[l.ID] = l
	}

	for i, id := range s.Users {
		role, link := "viewer", "-"
		if id == s.Broadcaster {
			role = "sharer"
		}
		if id == s.Self {
			link = "you"
		} else if l, ok := links[id]; ok {
			link = l.State
		}
		t.AppendRow(prettytable.Row{i + 1, utils.TruncateString(id, 36), role, link})
	}

	t.SetStyle(prettytable.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.Style().Color.Header = text.Colors{text.FgCyan, text.Bold}
	return t.Render()
}

func RenderParticipants(s Snapshot) {
	fmt.Println(ParticipantsView(s))
}

// SessionSummary is printed when a session ends.
type SessionSummary struct {
	Room     string
	Role     string
	Duration string
	Links    int
	Packets  uint64
	Frames   uint64
	Received string
}

func SessionSummaryView(summary SessionSummary) string {
	headers := []string{"Metric", "Value"}
	rows := [][]string{
		{"Room", summary.Room},
		{"Role", summary.Role},
		{"Duration", summary.Duration},
		{"Peak links", strconv.Itoa(summary.Links)},
	}
	if summary.Packets > 0 {
		rows = append(rows,
			[]string{"Packets", strconv.FormatUint(summary.Packets, 10)},
			[]string{"Frames", strconv.FormatUint(summary.Frames, 10)},
			[]string{"Received", summary.Received},
		)
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func RenderSessionSummary(summary SessionSummary) {
	fmt.Println(SessionSummaryView(summary))
}
