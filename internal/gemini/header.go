package gemini

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

const (
	// MaxMetaLength is the protocol limit on the meta field.
	MaxMetaLength = 1024

	// MaxHeaderLength is the longest header line accepted: two status
	// digits, one space and the meta field.
	MaxHeaderLength = 2 + 1 + MaxMetaLength
)

var crlf = []byte("\r\n")

// Header is a parsed response status line. Status selects the variant and
// only the payload field belonging to that variant is populated:
//
//   - Prompt for input statuses (1x)
//   - MIME for success statuses (2x)
//   - Target for redirects (3x)
//   - Seconds for slow down (44)
//   - Message for every other failure and certificate status
type Header struct {
	Status  Status
	Prompt  string
	MIME    MIME
	Target  string
	Seconds uint64
	Message string
}

// NewHeader builds the variant for status from its meta string.
func NewHeader(status Status, meta string) (Header, error) {
	meta = strings.TrimSpace(meta)
	h := Header{Status: status}

	switch status.Category() {
	case CategoryInput:
		h.Prompt = meta
	case CategorySuccess:
		h.MIME = ParseMIME(meta)
	case CategoryRedirect:
		h.Target = meta
	case CategoryTemporaryFailure, CategoryPermanentFailure, CategoryClientCertificate:
		if status == StatusSlowDown {
			secs, err := strconv.ParseUint(meta, 10, 64)
			if err != nil {
				return Header{}, &InvalidHeaderError{
					Line:   fmt.Sprintf("%d %s", int(status), meta),
					Reason: "slow down delay is not an unsigned integer",
				}
			}
			h.Seconds = secs
			break
		}
		h.Message = meta
	default:
		return Header{}, &InvalidHeaderError{
			Line:   fmt.Sprintf("%d %s", int(status), meta),
			Reason: "unmapped status code",
		}
	}
	return h, nil
}

// Category is shorthand for h.Status.Category().
func (h Header) Category() Category {
	return h.Status.Category()
}

// Meta renders the variant payload back into its wire form.
func (h Header) Meta() string {
	switch h.Category() {
	case CategoryInput:
		return h.Prompt
	case CategorySuccess:
		return h.MIME.String()
	case CategoryRedirect:
		return h.Target
	}
	if h.Status == StatusSlowDown {
		return strconv.FormatUint(h.Seconds, 10)
	}
	return h.Message
}

// String returns the header line without its trailing CRLF.
func (h Header) String() string {
	return fmt.Sprintf("%d %s", int(h.Status), h.Meta())
}

// ParseHeader splits a raw response into its status header and body. The body
// is returned unmodified.
func ParseHeader(raw []byte) (Header, []byte, error) {
	window := raw
	if len(window) > MaxHeaderLength+len(crlf) {
		window = window[:MaxHeaderLength+len(crlf)]
	}
	idx := bytes.Index(window, crlf)
	if idx < 0 {
		return Header{}, nil, ErrInvalidResponse
	}

	line := string(raw[:idx])
	body := raw[idx+len(crlf):]

	code, meta, _ := strings.Cut(line, " ")
	if len(code) != 2 || code[0] < '0' || code[0] > '9' || code[1] < '0' || code[1] > '9' {
		return Header{}, nil, &InvalidHeaderError{Line: line, Reason: "status is not a two-digit number"}
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return Header{}, nil, &InvalidHeaderError{Line: line, Reason: err.Error()}
	}

	status := Status(n)
	if !status.Valid() {
		return Header{}, nil, &InvalidHeaderError{Line: line, Reason: "unmapped status code"}
	}

	h, err := NewHeader(status, meta)
	if err != nil {
		return Header{}, nil, &InvalidHeaderError{Line: line, Reason: "slow down delay is not an unsigned integer"}
	}
	return h, body, nil
}
