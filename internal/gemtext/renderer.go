// Package gemtext converts text/gemini documents to HTML.
//
// Rendering is a single forward pass driven by Renderer, a small state
// machine: outside a preformatted block each line is classified by its
// prefix; inside one, lines are escaped and emitted verbatim. Inline ANSI SGR
// sequences are honoured everywhere.
package gemtext

import (
	"errors"
	"fmt"
	"html"
	"net/url"
	"path"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/pitr/gemini-ios-sub000/internal/gemini"
	"github.com/pitr/gemini-ios-sub000/internal/log"
	"github.com/pitr/gemini-ios-sub000/internal/page"
)

// DefaultCaption labels preformatted blocks that have no alt text.
const DefaultCaption = "unlabelled preformatted text"

// Link classes.
const (
	ClassExternal   = "external"
	ClassDiffDomain = "diffdomain"
	ClassImage      = "image"
	ClassSameDomain = "samedomain"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".svg":  true,
}

// ErrNoPageURL is returned when rendering without a base URL.
var ErrNoPageURL = errors.New("gemtext: page url is required")

// Renderer holds the state of one document render.
type Renderer struct {
	base   *url.URL
	out    strings.Builder
	ansi   *ansiState
	title  string
	pre    bool
	blocks int
	inList bool
}

// NewRenderer starts a render of a document located at pageURL. With a nil
// pageURL only absolute link targets are rendered as links.
func NewRenderer(pageURL *url.URL) *Renderer {
	return &Renderer{base: pageURL, ansi: newANSIState()}
}

// InPreformatted reports whether the last line opened a preformatted block
// that is still open.
func (r *Renderer) InPreformatted() bool {
	return r.pre
}

// Title is the text of the first heading seen so far.
func (r *Renderer) Title() string {
	return r.title
}

// Blocks is the number of preformatted blocks opened so far.
func (r *Renderer) Blocks() int {
	return r.blocks
}

// Line renders one line of input, without its trailing newline.
func (r *Renderer) Line(line string) {
	line = strings.TrimSuffix(line, "\r")

	if strings.HasPrefix(line, "```") {
		r.togglePreformatted(strings.TrimSpace(line[3:]))
		return
	}
	if r.pre {
		r.ansi.write(&r.out, line)
		r.out.WriteByte('\n')
		return
	}

	isItem := strings.HasPrefix(line, "* ")
	if r.inList && !isItem {
		r.out.WriteString("</ul>\n")
		r.inList = false
	}

	switch {
	case strings.HasPrefix(line, "###"):
		r.heading(3, line[3:])
	case strings.HasPrefix(line, "##"):
		r.heading(2, line[2:])
	case strings.HasPrefix(line, "#"):
		r.heading(1, line[1:])
	case isItem:
		if !r.inList {
			r.out.WriteString("<ul>\n")
			r.inList = true
		}
		r.element("li", "", line[2:])
	case strings.HasPrefix(line, ">"):
		text := strings.TrimSpace(line[1:])
		if text == "" {
			r.out.WriteString("<br>\n")
			return
		}
		r.element("blockquote", "", text)
	case strings.HasPrefix(line, "=>"):
		r.link(strings.TrimSpace(line[2:]), line)
	case strings.TrimSpace(line) == "":
		r.out.WriteString("<br>\n")
	default:
		r.element("p", "", line)
	}
}

// Finish closes any open list or preformatted block and returns the body
// HTML.
func (r *Renderer) Finish() string {
	if r.inList {
		r.out.WriteString("</ul>\n")
		r.inList = false
	}
	if r.pre {
		r.closePreformatted()
	}
	return r.out.String()
}

func (r *Renderer) togglePreformatted(caption string) {
	if r.pre {
		r.closePreformatted()
		return
	}

	if r.inList {
		r.out.WriteString("</ul>\n")
		r.inList = false
	}
	if caption == "" {
		caption = DefaultCaption
	}
	r.blocks++
	id := fmt.Sprintf("preformatted-%d", r.blocks)
	caption = html.EscapeString(ansi.Strip(caption))
	fmt.Fprintf(&r.out, "<figure role=\"figure\" aria-labelledby=\"%s\">\n<figcaption id=\"%s\">%s</figcaption>\n<pre aria-label=\"%s\">",
		id, id, caption, caption)
	r.ansi.reset(&r.out)
	r.pre = true
}

func (r *Renderer) closePreformatted() {
	r.ansi.reset(&r.out)
	r.out.WriteString("</pre>\n</figure>\n")
	r.pre = false
}

func (r *Renderer) heading(level int, text string) {
	text = strings.TrimSpace(text)
	if r.title == "" {
		r.title = ansi.Strip(text)
	}
	r.element(fmt.Sprintf("h%d", level), "", text)
}

// element writes <tag attrs>text</tag> with text run through the ANSI
// interpreter. Styles never leak past the element.
func (r *Renderer) element(tag, attrs, text string) {
	r.out.WriteString("<" + tag + attrs + ">")
	r.ansi.write(&r.out, text)
	r.ansi.reset(&r.out)
	r.out.WriteString("</" + tag + ">\n")
}

func (r *Renderer) link(body, rawLine string) {
	target, label := body, ""
	if i := strings.IndexAny(body, " \t"); i >= 0 {
		target, label = body[:i], body[i+1:]
	}
	label = strings.TrimSpace(label)

	if target == "" {
		r.element("p", "", rawLine)
		return
	}

	ref, err := url.Parse(target)
	if err != nil {
		log.Debug(log.CatGemtext, "unparsable link target", "target", target, "error", err)
		r.element("p", "", rawLine)
		return
	}
	resolved := ref
	switch {
	case r.base != nil:
		resolved = r.base.ResolveReference(ref)
	case !ref.IsAbs():
		log.Debug(log.CatGemtext, "relative link without page url", "target", target)
		r.element("p", "", rawLine)
		return
	}
	class := Classify(r.base, resolved)
	href := html.EscapeString(resolved.String())

	if label == "" || label == target {
		label = target
	}

	if class == ClassImage {
		r.out.WriteString("<p class=\"link\">")
		fmt.Fprintf(&r.out, `<a class="image" href="%s" onclick="return geminiToggleImage(this)">`, href)
		r.ansi.write(&r.out, label)
		r.ansi.reset(&r.out)
		fmt.Fprintf(&r.out, `<img loading="lazy" data-src="%s" alt="%s"></a></p>`+"\n",
			href, html.EscapeString(ansi.Strip(label)))
		return
	}

	r.out.WriteString("<p class=\"link\">")
	fmt.Fprintf(&r.out, `<a class="%s" href="%s">`, class, href)
	r.ansi.write(&r.out, label)
	r.ansi.reset(&r.out)
	r.out.WriteString("</a></p>\n")
}

// Classify returns the CSS class for a link found on from pointing at
// target. Images are recognised on any gemini host.
func Classify(from, target *url.URL) string {
	if !strings.EqualFold(target.Scheme, gemini.Scheme) {
		return ClassExternal
	}
	if imageExtensions[strings.ToLower(path.Ext(target.Path))] {
		return ClassImage
	}
	if from == nil || !strings.EqualFold(from.Hostname(), target.Hostname()) {
		return ClassDiffDomain
	}
	return ClassSameDomain
}

const imageScript = `<script>
function geminiToggleImage(a) {
  var img = a.querySelector("img");
  if (img && !img.getAttribute("src")) { img.setAttribute("src", img.dataset.src); }
  a.classList.toggle("expanded");
  return false;
}
</script>
`

// Render converts a complete gemtext document to an HTML page.
func Render(text string, pageURL *url.URL, opts page.Options) (string, error) {
	if pageURL == nil {
		return "", ErrNoPageURL
	}

	r := NewRenderer(pageURL)
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for _, line := range lines {
		r.Line(line)
	}
	body := r.Finish()

	log.Debug(log.CatGemtext, "rendered", "url", pageURL.String(), "lines", len(lines), "blocks", r.Blocks())
	return page.Header(pageURL, r.Title(), opts) + body + imageScript + page.Footer(), nil
}
