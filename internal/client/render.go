package client

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/Tyrowin/chatrelay/internal/chat"
)

// Renderer formats envelopes for a terminal.
type Renderer struct {
	Colours bool
	// Location controls how timestamps are shown; nil means time.Local.
	Location *time.Location
}

func (r Renderer) clock(e chat.Envelope) string {
	loc := r.Location
	if loc == nil {
		loc = time.Local
	}
	return e.Time().In(loc).Format(time.TimeOnly)
}

// Line renders one envelope as "<time> <sender> <text>".
func (r Renderer) Line(e chat.Envelope) string {
	ts, sender := r.clock(e), e.Sender
	if sender == "" {
		sender = "anonymous"
	}
	if r.Colours {
		ts = color.FgBlue.Render(ts)
		sender = color.FgYellow.Render(sender)
	}
	return fmt.Sprintf("%s %s %s", ts, sender, e.Text)
}

// Notice renders a status line from the client itself.
func (r Renderer) Notice(msg string) string {
	if r.Colours {
		return color.FgDarkGray.Render("-- " + msg)
	}
	return "-- " + msg
}

// Print writes the envelope line to w.
func (r Renderer) Print(w io.Writer, e chat.Envelope) {
	_, _ = fmt.Fprintln(w, r.Line(e))
}

// Table writes envelopes as an aligned table with their raw timestamps.
func (r Renderer) Table(w io.Writer, envelopes []chat.Envelope) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"TS", "Time", "Sender", "Text"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	table.AppendBulk(lo.Map(envelopes, func(e chat.Envelope, _ int) []string {
		return []string{strconv.FormatInt(e.Timestamp, 10), r.clock(e), e.Sender, e.Text}
	}))
	table.Render()
}
