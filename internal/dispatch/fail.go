package dispatch

import (
	"context"
	"errors"
	"net/url"

	"github.com/pitr/gemini-ios-sub000/internal/gemini"
	"github.com/pitr/gemini-ios-sub000/internal/log"
	"github.com/pitr/gemini-ios-sub000/internal/transport"
)

// Fail produces the error page for a request that never yielded a usable
// header. The navigation ends, so the redirect counter is reset.
func (n *Navigation) Fail(err error, pageURL *url.URL) Result {
	n.redirects = 0
	title, msg := describe(err)
	log.Warn(log.CatDispatch, "request failed", "url", pageURL, "error", err)
	return n.errorPage(pageURL, title, msg)
}

// describe maps a failure to a page title and message.
func describe(err error) (string, string) {
	var (
		transportErr *transport.TransportError
		headerErr    *gemini.InvalidHeaderError
		decodeErr    *gemini.DecodeError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return "Cancelled", "The request was cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout", "The server did not respond in time"
	case errors.As(err, &transportErr):
		cause := transportErr.Op
		if transportErr.Err != nil {
			cause = transportErr.Err.Error()
		}
		if transportErr.Op == transport.OpHandshake {
			return "Connection error", "Could not establish a secure connection: " + cause
		}
		return "Connection error", "Could not connect: " + cause
	case errors.Is(err, gemini.ErrNoContent):
		return "No content", "Server responded with no content"
	case errors.Is(err, gemini.ErrInvalidResponse):
		return "Invalid response", "Invalid response"
	case errors.As(err, &headerErr):
		return "Invalid header", "Invalid header: " + headerErr.Line
	case errors.Is(err, gemini.ErrRequestEncoding):
		return "Invalid request", "Could not encode request"
	case errors.Is(err, gemini.ErrURLTooLong):
		return "Invalid request", "URL exceeds 1024 bytes"
	case errors.As(err, &decodeErr):
		return "Decoding error", "Could not parse body with encoding " + decodeErr.Charset
	case err == nil:
		return "Error", "Unknown error"
	default:
		return "Error", err.Error()
	}
}
