// Package render formats chat state for a terminal.
package render

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/microcosm-cc/bluemonday"

	"github.com/wavoo-crm/crmchat/shared/domain"
)

var strict = bluemonday.StrictPolicy()

// Text strips any markup from pushed text and collapses it to what a
// terminal should print.
func Text(s string) string {
	clean := html.UnescapeString(strict.Sanitize(s))
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, clean)
}

func AckGlyph(a domain.Ack) string {
	switch a {
	case domain.AckSent:
		return "✓"
	case domain.AckDelivered:
		return "✓✓"
	case domain.AckRead:
		return "✓✓ read"
	default:
		return ""
	}
}

// Timestamp prints clock time for today and a relative time otherwise.
func Timestamp(t, now time.Time) string {
	if t.IsZero() {
		return "--:--"
	}
	local := t.Local()
	y1, m1, d1 := local.Date()
	y2, m2, d2 := now.Local().Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return local.Format("15:04")
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func mediaLabel(m domain.Message) string {
	name := m.Meta.FileName
	if name == "" {
		name = m.Meta.MediaURL
	}
	if name == "" {
		return "[" + string(m.Type) + "]"
	}
	return fmt.Sprintf("[%s: %s]", m.Type, name)
}

// Message renders one line of the conversation.
func Message(m domain.Message, now time.Time) string {
	var b strings.Builder
	b.WriteString(Timestamp(m.CreatedAt, now))
	if m.Direction == domain.DirectionOut {
		b.WriteString(" → ")
	} else {
		b.WriteString(" ← ")
	}

	switch {
	case m.Deleted:
		if m.DeletedForEveryone {
			b.WriteString("🚫 message deleted for everyone")
		} else {
			b.WriteString("🚫 message deleted")
		}
	case m.Type == domain.KindText || m.Type == "":
		b.WriteString(Text(m.Body))
	default:
		b.WriteString(mediaLabel(m))
		if body := Text(m.Body); body != "" {
			b.WriteString(" " + body)
		}
	}

	if m.Direction == domain.DirectionOut {
		if m.Pending {
			b.WriteString(" ⏳")
		} else if glyph := AckGlyph(m.Meta.Ack); glyph != "" {
			b.WriteString(" " + glyph)
		}
	}
	if !m.Pending && !m.Deleted {
		b.WriteString("  #" + m.ID.String())
	}
	return b.String()
}

// StatusBadge renders the WhatsApp link state next to the socket state.
func StatusBadge(s domain.StatusSnapshot, socketConnected bool) string {
	var link string
	switch s.State {
	case domain.StateConnected, domain.StateReady:
		link = "Connected"
	case domain.StateScan:
		link = "Scan QR"
	case domain.StateLoading:
		link = "Loading..."
	case domain.StateInitializing:
		link = "Initializing"
	case domain.StateNotConfigured:
		link = "Not configured"
	case "":
		link = "Error"
	default:
		link = string(s.State)
	}
	sock := "Socket: Off"
	if socketConnected {
		sock = "Socket: OK"
	}
	return fmt.Sprintf("[%s] [%s]", link, sock)
}

func Contact(c domain.Contact, now time.Time) string {
	line := fmt.Sprintf("%-8s %-24s %-16s", c.ID, Text(c.DisplayName()), c.Phone)
	if c.Stage != "" {
		line += " " + c.Stage
	}
	if c.LastSeen != nil {
		line += " (" + humanize.RelTime(*c.LastSeen, now, "ago", "from now") + ")"
	}
	return strings.TrimRight(line, " ")
}

func Presence(p domain.Presence, now time.Time) string {
	line := fmt.Sprintf("%s: %s", p.UserID, p.State)
	if p.State == domain.PresenceOffline && p.LastSeen != nil {
		line += ", last seen " + humanize.RelTime(*p.LastSeen, now, "ago", "from now")
	}
	return line
}

func Notification(n domain.Notification, now time.Time) string {
	marker := " "
	if !n.IsRead {
		marker = "•"
	}
	line := fmt.Sprintf("%s %s  %s", marker, Text(n.Text), Timestamp(n.CreatedAt, now))
	if n.Link != "" {
		line += "  " + n.Link
	}
	return line
}

func FileSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.Bytes(uint64(bytes))
}

// Elapsed formats a recording timer as m:ss.
func Elapsed(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
