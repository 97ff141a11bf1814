package dispatch

import (
	"encoding/base64"
	"fmt"
	"html"
	"net/url"
	"path"

	"github.com/bytedance/sonic"

	"github.com/pitr/gemini-ios-sub000/internal/gemini"
	"github.com/pitr/gemini-ios-sub000/internal/log"
	"github.com/pitr/gemini-ios-sub000/internal/page"
)

// DownloadPayload is posted to the host message handler so it can save a
// body the web view cannot display.
type DownloadPayload struct {
	URL          string `json:"url"`
	Filename     string `json:"filename"`
	MIMEType     string `json:"mimeType"`
	Size         int    `json:"size"`
	Base64String string `json:"base64String"`
}

const downloadScript = `<script>
(function () {
  var handlers = window.webkit && window.webkit.messageHandlers;
  var name = %s;
  if (handlers && handlers[name]) {
    handlers[name].postMessage(%s);
  }
})();
</script>
`

func filename(pageURL *url.URL) string {
	if pageURL == nil {
		return "download"
	}
	name := path.Base(pageURL.Path)
	if name == "." || name == "/" || name == "" {
		return "download"
	}
	return name
}

func (n *Navigation) download(m gemini.MIME, body []byte, pageURL *url.URL) Result {
	p := DownloadPayload{
		Filename:     filename(pageURL),
		MIMEType:     m.ContentType,
		Size:         len(body),
		Base64String: base64.StdEncoding.EncodeToString(body),
	}
	if pageURL != nil {
		p.URL = pageURL.String()
	}

	payload, err := sonic.ConfigStd.MarshalToString(&p)
	if err != nil {
		log.ErrorErr(log.CatDispatch, "encoding download payload", err, "url", pageURL)
		return n.errorPage(pageURL, "Download", "Could not prepare download")
	}

	log.Info(log.CatDispatch, "download", "url", pageURL, "mime", m.ContentType, "bytes", len(body))
	text := fmt.Sprintf("<p class=\"gemini-download\">Downloading %s (%s, %d bytes)</p>\n",
		html.EscapeString(p.Filename), html.EscapeString(m.ContentType), len(body))
	doc := page.Document(pageURL, "Download", text+fmt.Sprintf(downloadScript, jsString(n.cfg.DownloadHandler), payload), n.cfg.Page)
	return Result{MIME: MIMEHTML, Body: []byte(doc)}
}
