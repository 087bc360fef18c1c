// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/heliboot/pkg/hal"
	"github.com/Thermoquad/heliboot/pkg/image"
	"github.com/Thermoquad/heliboot/pkg/ymodem"
)

// Send TUI model
type sendModel struct {
	connInfo string
	img      *image.Image
	cancel   context.CancelFunc

	progress progress.Model
	last     ymodem.SendProgress
	started  time.Time
	done     bool
	err      error
	stats    *ymodem.Statistics
	width    int
}

// Messages
type sendProgressMsg ymodem.SendProgress
type sendDoneMsg struct {
	err   error
	stats *ymodem.Statistics
}
type sendTickMsg time.Time

func newSendModel(img *image.Image, connInfo string, cancel context.CancelFunc) sendModel {
	return sendModel{
		connInfo: connInfo,
		img:      img,
		cancel:   cancel,
		progress: progress.New(progress.WithDefaultGradient()),
		width:    80,
	}
}

func (m sendModel) Init() tea.Cmd {
	return sendTickCmd()
}

func sendTickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return sendTickMsg(t)
	})
}

func (m sendModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = msg.Width - 8
		if m.progress.Width > 72 {
			m.progress.Width = 72
		}

	case sendTickMsg:
		if m.done {
			return m, nil
		}
		return m, sendTickCmd()

	case sendProgressMsg:
		if m.started.IsZero() {
			m.started = time.Now()
		}
		m.last = ymodem.SendProgress(msg)

	case sendDoneMsg:
		m.done = true
		m.err = msg.err
		m.stats = msg.stats
		return m, tea.Quit
	}

	return m, nil
}

func (m sendModel) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("HELIBOOT - SEND"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | %s (%d bytes) | Press 'q' to abort",
		m.connInfo, m.img.Name, m.img.Size())))
	s.WriteString("\n\n")

	switch {
	case m.started.IsZero() && !m.done:
		s.WriteString(warningStyle.Render("⏳ Waiting for bootloader probe..."))
	case m.done && m.err != nil:
		s.WriteString(errorStyle.Render("✗ " + m.err.Error()))
	case m.done:
		s.WriteString(valueStyle.Render("✓ Transfer complete"))
	default:
		s.WriteString(valueStyle.Render("Transferring"))
	}
	s.WriteString("\n\n")

	ratio := 0.0
	if m.last.TotalBytes > 0 {
		ratio = float64(m.last.BytesSent) / float64(m.last.TotalBytes)
	}
	s.WriteString(m.progress.ViewAs(ratio))
	s.WriteString("\n\n")

	content := strings.Builder{}
	content.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		labelStyle.Render("Sent:"), valueStyle.Render(fmt.Sprintf("%d / %d", m.last.BytesSent, m.last.TotalBytes)),
		labelStyle.Render("Seq:"), valueStyle.Render(fmt.Sprintf("%d", m.last.Seq)),
		labelStyle.Render("Retries:"), func() string {
			if m.last.Retries > 0 {
				return warningStyle.Render(fmt.Sprintf("%d", m.last.Retries))
			}
			return valueStyle.Render("0")
		}(),
	))
	if !m.started.IsZero() {
		elapsed := time.Since(m.started).Seconds()
		if elapsed > 0 {
			content.WriteString(fmt.Sprintf("\n%s %s",
				labelStyle.Render("Throughput:"),
				valueStyle.Render(fmt.Sprintf("%.0f bytes/s", float64(m.last.BytesSent)/elapsed))))
		}
	}
	s.WriteString(boxStyle.Render(content.String()))
	s.WriteString("\n")

	return s.String()
}

// runSendTUI runs the transfer with a progress bar
func runSendTUI(ctx context.Context, link hal.Serial, img *image.Image, connInfo string, opts []ymodem.SenderOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newSendModel(img, connInfo, cancel))

	opts = append(opts, ymodem.WithSendProgress(func(sp ymodem.SendProgress) {
		p.Send(sendProgressMsg(sp))
	}))

	go func() {
		sender := ymodem.NewSender(link, opts...)
		err := sender.Send(ctx, img.Name, img.Data)
		p.Send(sendDoneMsg{err: err, stats: sender.Statistics()})
	}()

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	m := final.(sendModel)
	if m.stats != nil {
		fmt.Print(m.stats.String())
	}
	if m.err != nil {
		return fmt.Errorf("transfer failed: %w", m.err)
	}
	if !m.done {
		return context.Canceled
	}
	return nil
}
