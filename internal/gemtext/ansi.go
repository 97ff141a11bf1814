package gemtext

import (
	"fmt"
	"html"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// sgrStyle is the text style selected by SGR escape sequences.
type sgrStyle struct {
	bold      bool
	faint     bool
	italic    bool
	underline bool
	strike    bool
	fg        string
	bg        string
}

func (s sgrStyle) isZero() bool {
	return s == sgrStyle{}
}

func (s sgrStyle) css() string {
	var decls []string
	if s.bold {
		decls = append(decls, "font-weight:bold")
	}
	if s.faint {
		decls = append(decls, "opacity:0.6")
	}
	if s.italic {
		decls = append(decls, "font-style:italic")
	}
	switch {
	case s.underline && s.strike:
		decls = append(decls, "text-decoration:underline line-through")
	case s.underline:
		decls = append(decls, "text-decoration:underline")
	case s.strike:
		decls = append(decls, "text-decoration:line-through")
	}
	if s.fg != "" {
		decls = append(decls, "color:"+s.fg)
	}
	if s.bg != "" {
		decls = append(decls, "background-color:"+s.bg)
	}
	return strings.Join(decls, ";")
}

// ansiState turns text containing SGR escape sequences into escaped HTML
// with inline styled spans. Other escape and control sequences are dropped.
type ansiState struct {
	parser *ansi.Parser
	style  sgrStyle
	open   bool
}

func newANSIState() *ansiState {
	return &ansiState{parser: ansi.NewParser()}
}

// write renders s into b. Style carries over between calls until reset.
func (a *ansiState) write(b *strings.Builder, s string) {
	s = strings.ToValidUTF8(s, "�")

	var state byte
	for len(s) > 0 {
		seq, _, n, newState := ansi.DecodeSequence(s, state, a.parser)
		if n == 0 {
			break
		}
		state = newState
		s = s[n:]

		switch {
		case ansi.HasCsiPrefix(seq):
			if ansi.Cmd(a.parser.Command()).Final() == 'm' {
				a.applySGR(b, a.parser.Params())
			}
		case ansi.HasEscPrefix(seq):
		case len(seq) == 1 && seq[0] < 0x20 && seq[0] != '\t':
		case seq == "\x7f":
		default:
			if !a.open && !a.style.isZero() {
				a.openSpan(b)
			}
			b.WriteString(html.EscapeString(seq))
		}
	}
}

// flush closes any open span; the style is kept for the next write.
func (a *ansiState) flush(b *strings.Builder) {
	if a.open {
		b.WriteString("</span>")
		a.open = false
	}
}

// reset flushes and forgets the current style.
func (a *ansiState) reset(b *strings.Builder) {
	a.flush(b)
	a.style = sgrStyle{}
}

func (a *ansiState) openSpan(b *strings.Builder) {
	fmt.Fprintf(b, `<span style="%s">`, a.style.css())
	a.open = true
}

func (a *ansiState) applySGR(b *strings.Builder, params ansi.Params) {
	next := a.style
	if len(params) == 0 {
		next = sgrStyle{}
	}

	for i := 0; i < len(params); i++ {
		p, _, _ := params.Param(i, 0)
		switch {
		case p == 0:
			next = sgrStyle{}
		case p == 1:
			next.bold = true
		case p == 2:
			next.faint = true
		case p == 3:
			next.italic = true
		case p == 4:
			next.underline = true
		case p == 9:
			next.strike = true
		case p == 22:
			next.bold, next.faint = false, false
		case p == 23:
			next.italic = false
		case p == 24:
			next.underline = false
		case p == 29:
			next.strike = false
		case p >= 30 && p <= 37:
			next.fg = palette16[p-30]
		case p >= 90 && p <= 97:
			next.fg = palette16[p-90+8]
		case p == 39:
			next.fg = ""
		case p >= 40 && p <= 47:
			next.bg = palette16[p-40]
		case p >= 100 && p <= 107:
			next.bg = palette16[p-100+8]
		case p == 49:
			next.bg = ""
		case p == 38 || p == 48:
			color, consumed := extendedColor(params, i+1)
			i += consumed
			if color == "" {
				continue
			}
			if p == 38 {
				next.fg = color
			} else {
				next.bg = color
			}
		}
	}

	if next == a.style {
		return
	}
	a.flush(b)
	a.style = next
}

// extendedColor decodes "5;n" or "2;r;g;b" starting at params[i]. It returns
// the CSS colour and how many params it consumed.
func extendedColor(params ansi.Params, i int) (string, int) {
	mode, _, ok := params.Param(i, -1)
	if !ok {
		return "", 0
	}
	switch mode {
	case 5:
		n, _, ok := params.Param(i+1, -1)
		if !ok || n < 0 || n > 255 {
			return "", 1
		}
		return palette256(n), 2
	case 2:
		r, _, okR := params.Param(i+1, -1)
		g, _, okG := params.Param(i+2, -1)
		bl, _, okB := params.Param(i+3, -1)
		if !okR || !okG || !okB || r < 0 || g < 0 || bl < 0 || r > 255 || g > 255 || bl > 255 {
			return "", min(len(params)-i, 4)
		}
		return fmt.Sprintf("#%02x%02x%02x", r, g, bl), 4
	}
	return "", 1
}

// xterm default 16 colours.
var palette16 = [16]string{
	"#000000", "#cd0000", "#00cd00", "#cdcd00", "#0000ee", "#cd00cd", "#00cdcd", "#e5e5e5",
	"#7f7f7f", "#ff0000", "#00ff00", "#ffff00", "#5c5cff", "#ff00ff", "#00ffff", "#ffffff",
}

func palette256(n int) string {
	switch {
	case n < 16:
		return palette16[n]
	case n < 232:
		n -= 16
		levels := [6]int{0, 95, 135, 175, 215, 255}
		return fmt.Sprintf("#%02x%02x%02x", levels[n/36], levels[(n/6)%6], levels[n%6])
	default:
		v := 8 + (n-232)*10
		return fmt.Sprintf("#%02x%02x%02x", v, v, v)
	}
}
