package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"crashmap/internal/filter"
	"crashmap/internal/session"
	"crashmap/internal/types"
)

type key int

const (
	keyNone key = iota
	keyUp
	keyDown
	keyExpand
	keyCollapse
	keyToggle
	keyApply
	keyExport
	keyQuit
)

// readKey decodes one keystroke. Arrow keys arrive as ANSI CSI sequences or,
// on Windows consoles, as a 0/224 prefix byte followed by a scan code.
func readKey(reader *bufio.Reader) (key, error) {
	b1, err := reader.ReadByte()
	if err != nil {
		return keyNone, err
	}
	if b1 == 0 || b1 == 224 {
		b2, err := reader.ReadByte()
		if err != nil {
			return keyNone, err
		}
		switch b2 {
		case 72:
			return keyUp, nil
		case 80:
			return keyDown, nil
		case 75:
			return keyCollapse, nil
		case 77:
			return keyExpand, nil
		}
		return keyNone, nil
	}

	switch b1 {
	case 27: // ESC or ANSI sequence
		if reader.Buffered() == 0 {
			return keyQuit, nil
		}
		b2, _ := reader.ReadByte()
		if b2 != '[' || reader.Buffered() == 0 {
			return keyNone, nil
		}
		b3, _ := reader.ReadByte()
		switch b3 {
		case 'A':
			return keyUp, nil
		case 'B':
			return keyDown, nil
		case 'C':
			return keyExpand, nil
		case 'D':
			return keyCollapse, nil
		}
	case 'k':
		return keyUp, nil
	case 'j':
		return keyDown, nil
	case 'l':
		return keyExpand, nil
	case 'h':
		return keyCollapse, nil
	case ' ', '\r', '\n':
		return keyToggle, nil
	case 'f', 'F':
		return keyApply, nil
	case 'e', 'E':
		return keyExport, nil
	case 'q', 'Q', 3: // 3 is Ctrl-C in raw mode
		return keyQuit, nil
	}
	return keyNone, nil
}

// panelRow is one line of the filter tree: a group header or a value.
type panelRow struct {
	attr   types.Attribute
	value  string
	header bool
}

// panelModel is the cursor and expansion state of the filter tree. Groups
// start collapsed.
type panelModel struct {
	domains  filter.Domains
	expanded map[types.Attribute]bool
	cursor   int
}

func newPanelModel(d filter.Domains) *panelModel {
	return &panelModel{domains: d, expanded: make(map[types.Attribute]bool)}
}

func (m *panelModel) rows() []panelRow {
	var rows []panelRow
	for _, attr := range m.domains.Attributes() {
		rows = append(rows, panelRow{attr: attr, header: true})
		if m.expanded[attr] {
			for _, v := range m.domains.Values(attr) {
				rows = append(rows, panelRow{attr: attr, value: v})
			}
		}
	}
	return rows
}

func (m *panelModel) current() panelRow {
	return m.rows()[m.cursor]
}

func (m *panelModel) move(delta int) {
	n := len(m.rows())
	m.cursor = min(max(m.cursor+delta, 0), n-1)
}

// setExpanded opens or closes the group under the cursor and keeps the
// cursor on its header.
func (m *panelModel) setExpanded(open bool) {
	attr := m.current().attr
	m.expanded[attr] = open
	for i, r := range m.rows() {
		if r.header && r.attr == attr {
			m.cursor = i
			return
		}
	}
}

// activate handles space/enter. On a header it flips expansion; on a value
// it returns that value for toggling.
func (m *panelModel) activate() (panelRow, bool) {
	row := m.current()
	if row.header {
		m.setExpanded(!m.expanded[row.attr])
		return panelRow{}, false
	}
	return row, true
}

// lines renders the tree with checkbox states from sel.
func (m *panelModel) lines(sel filter.Selection) []string {
	var out []string
	for i, r := range m.rows() {
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}
		if r.header {
			marker := "[+]"
			if m.expanded[r.attr] {
				marker = "[-]"
			}
			active, total := len(sel.Active(r.attr)), len(m.domains.Values(r.attr))
			out = append(out, fmt.Sprintf("%s%s %s%s%s (%d/%d)", cursor, marker, colorBold, r.attr.Title(), colorReset, active, total))
			continue
		}
		box := colorRed + "[ ]" + colorReset
		if sel.IsActive(r.attr, r.value) {
			box = colorGreen + "[x]" + colorReset
		}
		out = append(out, fmt.Sprintf("%s    %s %s", cursor, box, r.value))
	}
	return out
}

// panel is the terminal filter panel driving a session.
type panel struct {
	sess      *session.Session
	model     *panelModel
	in        io.Reader
	out       io.Writer
	exportDir string
	url       string
	logger    *slog.Logger
	now       func() time.Time
	status    string
}

func newPanel(sess *session.Session, in io.Reader, out io.Writer, exportDir, url string, logger *slog.Logger) *panel {
	return &panel{
		sess:      sess,
		model:     newPanelModel(sess.Domains()),
		in:        in,
		out:       out,
		exportDir: exportDir,
		url:       url,
		logger:    logger,
		now:       time.Now,
	}
}

// run drives the panel until the user quits, input ends or ctx is
// cancelled. An invalid toggle is returned as an error: it means the panel
// and the store disagree about the domains.
func (p *panel) run(ctx context.Context) error {
	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		enableVT()
		fd := int(f.Fd())
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("terminal raw mode: %w", err)
		}
		defer term.Restore(fd, oldState)
		defer fmt.Fprint(p.out, "\r\n")
	}

	done := make(chan error, 1)
	go func() { done <- p.loop(bufio.NewReader(p.in)) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return nil
	}
}

func (p *panel) loop(reader *bufio.Reader) error {
	p.redraw()
	for {
		k, err := readKey(reader)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		switch k {
		case keyUp:
			p.model.move(-1)
		case keyDown:
			p.model.move(1)
		case keyExpand:
			p.model.setExpanded(true)
		case keyCollapse:
			p.model.setExpanded(false)
		case keyToggle:
			row, ok := p.model.activate()
			if !ok {
				break
			}
			if _, err := p.sess.Toggle(row.attr, row.value); err != nil {
				return err
			}
			p.status = "Press f to apply."
		case keyApply:
			res, err := p.sess.Apply()
			if err != nil {
				return err
			}
			p.status = fmt.Sprintf("Showing %d crashes (%s clustering, render %d).", res.Records, res.Tier, res.Generation)
		case keyExport:
			path, err := exportFiltered(p.exportDir, p.sess.Filtered(), p.now())
			if err != nil {
				p.logger.Error("export failed", "error", err)
				p.status = colorRed + "Export failed: " + err.Error() + colorReset
			} else {
				p.logger.Info("export written", "path", path)
				p.status = "Exported to " + path
			}
		case keyQuit:
			return nil
		default:
			continue
		}
		p.redraw()
	}
}

// redraw clears the screen and prints the tree. Lines end in \r\n because
// raw mode disables output newline translation.
func (p *panel) redraw() {
	var b strings.Builder
	b.WriteString("\033[H\033[2J")
	fmt.Fprintf(&b, "Crash filters  (map: %s)\r\n\r\n", p.url)
	for _, l := range p.model.lines(p.sess.Selection()) {
		b.WriteString(l)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	pending := ""
	if p.sess.Pending() {
		pending = " [changes not applied]"
	}
	fmt.Fprintf(&b, "%s%s\r\n", p.status, pending)
	b.WriteString("(↑/↓ move, →/← open/close, space toggle, f filter, e export, Esc quit)\r\n")
	io.WriteString(p.out, b.String())
}
