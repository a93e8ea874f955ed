package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jwulff/voicenote/internal/capture"
	"github.com/jwulff/voicenote/internal/ui"
	"github.com/jwulff/voicenote/internal/voice"
)

// Screen geometry. Rows from the bottom: divider, composer status, composer
// waveform, error bar, footer.
const (
	headerRows    = 2
	footerRows    = 5
	waveLeft      = 2
	messagePrefix = 19
	nameWidth     = 8
	maxMsgWave    = 40
)

func (m Model) listHeight() int {
	return max(1, m.height-headerRows-footerRows)
}

// listStart keeps the selected message on screen.
func (m Model) listStart() int {
	return max(0, m.selected-m.listHeight()+1)
}

func (m Model) composerWaveRow() int {
	return m.height - 3
}

func (m Model) composerWaveWidth() int {
	return max(10, m.width-2*waveLeft)
}

func (m Model) messageWaveWidth() int {
	return max(10, min(maxMsgWave, m.width-messagePrefix-16))
}

// View renders the full composer.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderMessages())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, m.renderComposerWave())
	sections = append(sections, m.renderErrorBar())
	sections = append(sections, m.help.View(m.keys))

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("VOICENOTE")
	peer := m.peerID
	if peer == "" {
		peer = m.conversationID
	}
	return title + ui.DimStyle.Render(" — "+m.userID+" ↔ "+peer)
}

func (m Model) renderMessages() string {
	height := m.listHeight()
	var lines []string

	switch {
	case m.messagesError != "":
		lines = append(lines, ui.ErrorTextStyle.Render("  Could not load messages: "+m.messagesError))
	case len(m.messages) == 0:
		lines = append(lines, ui.DimStyle.Render("  No voice messages yet"))
	default:
		start := m.listStart()
		end := min(len(m.messages), start+height)
		for i := start; i < end; i++ {
			lines = append(lines, m.renderMessage(i))
		}
	}

	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines[:height], "\n")
}

func (m Model) renderMessage(i int) string {
	msg := m.messages[i]

	marker := "  "
	if i == m.selected && m.focusedPanel == FocusMessages {
		marker = ui.SelectedStyle.Render("> ")
	}

	name := fmt.Sprintf("%-*.*s", nameWidth, nameWidth, msg.SenderID)
	if msg.SenderID == m.userID {
		name = ui.OwnLabelStyle.Render(fmt.Sprintf("%-*s", nameWidth, "you"))
	} else {
		name = ui.PeerLabelStyle.Render(name)
	}

	progress, playing := 0.0, false
	if m.msgPlayer != nil && m.msgPlayerID == msg.ID && m.msgLoaded {
		progress, playing = m.msgPlayer.Progress(), m.msgPlayer.Playing()
	}
	duration := fmt.Sprintf("%5s", ui.FormatDuration(msg.Clip.DurationSeconds()))
	if playing {
		duration = ui.UnreadBadgeStyle.Render(duration)
	}

	wave := ui.RenderWaveform(msg.Clip.Waveform(), progress, false, m.messageWaveWidth())
	ts := ui.TimestampStyle.Render(msg.CreatedAt.Format("15:04"))

	var status string
	switch {
	case msg.SenderID != m.userID && !msg.Read:
		status = ui.UnreadBadgeStyle.Render(" ●")
	case msg.SenderID == m.userID && msg.Read:
		status = ui.DimStyle.Render(" ✓✓")
	case msg.SenderID == m.userID:
		status = ui.DimStyle.Render(" ✓")
	}

	// marker(2) name(8) space duration(5) space(3) = messagePrefix
	return marker + name + " " + duration + "   " + wave + " " + ts + status
}

func (m Model) renderStatusBar() string {
	var dot string
	switch m.mode {
	case capture.ModeRecording:
		dot = ui.RecordingDotStyle.Render("● REC ") + ui.FormatDuration(float64(m.elapsed))
	case capture.ModeReview:
		dot = ui.ReviewDotStyle.Render("■ REVIEW ") + ui.FormatDuration(m.clip.DurationSeconds())
		if m.reviewPlayer != nil && m.reviewLoaded {
			pos := ui.FormatDuration(m.reviewPlayer.Position())
			dot += ui.DimStyle.Render("  ▶ " + pos)
		}
	default:
		dot = ui.IdleDotStyle.Render("○ IDLE")
	}
	return dot + "  " + ui.StatusStyle.Render(m.statusText)
}

func (m Model) renderComposerWave() string {
	width := m.composerWaveWidth()
	pad := strings.Repeat(" ", waveLeft)
	switch m.mode {
	case capture.ModeRecording:
		return pad + ui.RenderWaveform(m.liveBars, 0, true, width)
	case capture.ModeReview:
		progress := 0.0
		if m.reviewPlayer != nil && m.reviewLoaded {
			progress = m.reviewPlayer.Progress()
		}
		return pad + ui.RenderWaveform(m.clip.Waveform(), progress, false, width)
	}
	return pad + ui.DimStyle.Render(padRight("Press space to record a voice message", width))
}

func (m Model) renderErrorBar() string {
	if m.errorMessage == "" {
		return ""
	}
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

// Helpers

func padRight(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

// ReviewClip returns the clip awaiting send, if any.
func (m Model) ReviewClip() (voice.Clip, bool) {
	return m.clip, m.mode == capture.ModeReview && !m.clip.IsZero()
}
