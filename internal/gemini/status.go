// Package gemini provides the wire-level model of the Gemini protocol:
// requests, status headers and MIME descriptors.
package gemini

import "fmt"

// Status is a two-digit Gemini response status code.
type Status int

const (
	StatusInput          Status = 10
	StatusSensitiveInput Status = 11

	StatusSuccess                 Status = 20
	StatusSuccessEndOfCertSession Status = 21

	StatusRedirectTemporary Status = 30
	StatusRedirectPermanent Status = 31

	StatusTemporaryFailure  Status = 40
	StatusServerUnavailable Status = 41
	StatusCGIError          Status = 42
	StatusProxyError        Status = 43
	StatusSlowDown          Status = 44

	StatusPermanentFailure    Status = 50
	StatusNotFound            Status = 51
	StatusGone                Status = 52
	StatusProxyRequestRefused Status = 53
	StatusBadRequest          Status = 59

	StatusClientCertRequired     Status = 60
	StatusTransientCertRequested Status = 61
	StatusAuthorisedCertRequired Status = 62
	StatusCertNotAccepted        Status = 63
	StatusFutureCertRejected     Status = 64
	StatusExpiredCertRejected    Status = 65
)

// Category groups statuses by their first digit.
type Category int

const (
	CategoryInput Category = iota + 1
	CategorySuccess
	CategoryRedirect
	CategoryTemporaryFailure
	CategoryPermanentFailure
	CategoryClientCertificate
)

func (c Category) String() string {
	switch c {
	case CategoryInput:
		return "input"
	case CategorySuccess:
		return "success"
	case CategoryRedirect:
		return "redirect"
	case CategoryTemporaryFailure:
		return "temporary failure"
	case CategoryPermanentFailure:
		return "permanent failure"
	case CategoryClientCertificate:
		return "client certificate"
	default:
		return "unknown"
	}
}

// statusLabels holds every mapped status. A code missing here is not a
// valid Gemini status.
var statusLabels = map[Status]string{
	StatusInput:                   "Input",
	StatusSensitiveInput:          "Sensitive input",
	StatusSuccess:                 "Success",
	StatusSuccessEndOfCertSession: "Success (end of certificate session)",
	StatusRedirectTemporary:       "Temporary redirect",
	StatusRedirectPermanent:       "Permanent redirect",
	StatusTemporaryFailure:        "Temporary failure",
	StatusServerUnavailable:       "Server unavailable",
	StatusCGIError:                "CGI error",
	StatusProxyError:              "Proxy error",
	StatusSlowDown:                "Slow down",
	StatusPermanentFailure:        "Permanent failure",
	StatusNotFound:                "Not found",
	StatusGone:                    "Gone",
	StatusProxyRequestRefused:     "Proxy request refused",
	StatusBadRequest:              "Bad request",
	StatusClientCertRequired:      "Client certificate required",
	StatusTransientCertRequested:  "Transient certificate requested",
	StatusAuthorisedCertRequired:  "Authorised certificate required",
	StatusCertNotAccepted:         "Certificate not accepted",
	StatusFutureCertRejected:      "Future certificate rejected",
	StatusExpiredCertRejected:     "Expired certificate rejected",
}

// Statuses returns every mapped status code in ascending order.
func Statuses() []Status {
	out := make([]Status, 0, len(statusLabels))
	for s := Status(10); s <= 69; s++ {
		if _, ok := statusLabels[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Valid reports whether s is a mapped status code.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns a human readable label such as "Not found".
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return fmt.Sprintf("Unknown status %d", int(s))
}

// Category returns the status family. Unmapped codes return 0.
func (s Status) Category() Category {
	if !s.Valid() {
		return 0
	}
	return Category(int(s) / 10)
}

func (s Status) String() string {
	return fmt.Sprintf("%d %s", int(s), s.Label())
}
