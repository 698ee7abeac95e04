// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/session"
	"github.com/jeranaias/relaychat/internal/util"
)

// =============================================================================
// MARKDOWN
// =============================================================================

// markdownRenderer renders completed replies. A nil renderer prints raw text.
type markdownRenderer struct {
	r *glamour.TermRenderer
}

// newMarkdownRenderer builds a glamour renderer for the configured theme and
// width. Rendering is disabled when enabled is false or glamour fails.
func newMarkdownRenderer(enabled bool, theme string, width int) *markdownRenderer {
	if !enabled || !ColorsEnabled() {
		return &markdownRenderer{}
	}
	style := "dark"
	if !darkBackground(theme) {
		style = "light"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return &markdownRenderer{}
	}
	return &markdownRenderer{r: r}
}

// Render returns content formatted for the terminal, or unchanged when
// rendering is off or fails.
func (m *markdownRenderer) Render(content string) string {
	if m == nil || m.r == nil {
		return content
	}
	out, err := m.r.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}

// =============================================================================
// CONVERSATION VIEWS
// =============================================================================

// writeConversationList prints one numbered line per conversation. The
// numbers are the indexes accepted by resolveConversation.
func writeConversationList(w io.Writer, convs []*model.Conversation, activeID string, width int) {
	if len(convs) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No conversations."))
		return
	}
	titleWidth := width - 48
	if titleWidth < 12 {
		titleWidth = 12
	}
	for i, c := range convs {
		marker := "  "
		if c.ID == activeID {
			marker = ActiveStyle.Render("* ")
		}
		title := util.PadWidth(c.Title, titleWidth)
		fmt.Fprintf(w, "%s%3d  %s  %s  %s\n",
			marker,
			i+1,
			title,
			DimStyle.Render(fmt.Sprintf("%3d msgs", c.MessageCount())),
			DimStyle.Render(shortID(c.ID)),
		)
	}
}

// writeHistory prints every message of conv. Assistant replies go through
// the markdown renderer; unfinished replies are flagged.
func writeHistory(w io.Writer, conv *model.Conversation, md *markdownRenderer) {
	fmt.Fprintf(w, "%s  %s\n", TitleStyle.Render(conv.Title), DimStyle.Render(conv.Model))
	if conv.IsEmpty() {
		fmt.Fprintln(w, DimStyle.Render("(no messages yet)"))
		return
	}
	for _, m := range conv.Messages {
		fmt.Fprintln(w)
		switch m.Role {
		case model.RoleUser:
			fmt.Fprintln(w, UserStyle.Render(m.Role.DisplayName()+":"))
			fmt.Fprintln(w, m.Content)
		default:
			label := m.Role.DisplayName() + ":"
			if !m.IsCompleted() {
				label += " " + WarningStyle.Render("(incomplete)")
			}
			fmt.Fprintln(w, AssistantStyle.Render(label))
			if m.Content == "" {
				fmt.Fprintln(w, DimStyle.Render("(no content)"))
				continue
			}
			fmt.Fprintln(w, md.Render(m.Content))
		}
	}
}

// shortID is the random tail of an id. The leading blocks of a UUIDv7 are a
// timestamp and repeat across conversations created close together.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}

// =============================================================================
// DELTA PRINTER
// =============================================================================

// deltaPrinter writes content deltas of one conversation as they arrive. It
// is subscribed to the store, so Observe runs under the store lock and only
// writes.
type deltaPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	convID string
	wrote  bool
}

func newDeltaPrinter(w io.Writer) *deltaPrinter {
	return &deltaPrinter{w: w}
}

// Follow starts printing deltas for convID.
func (p *deltaPrinter) Follow(convID string) {
	p.mu.Lock()
	p.convID = convID
	p.wrote = false
	p.mu.Unlock()
}

// Stop stops printing and reports whether anything was written since the
// last Follow.
func (p *deltaPrinter) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	wrote := p.wrote
	p.convID = ""
	p.wrote = false
	return wrote
}

// Observe is a session.Observer.
func (p *deltaPrinter) Observe(c session.Change) {
	if c.Kind != session.MessageGrown {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.convID == "" || c.ConversationID != p.convID {
		return
	}
	io.WriteString(p.w, c.Delta)
	p.wrote = true
}
