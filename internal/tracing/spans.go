package tracing

// Span names.
const (
	SpanFetch    = "gemini.fetch"
	SpanDispatch = "gemini.dispatch"
	SpanLoad     = "bridge.load"
)

// Span attribute keys.
const (
	AttrURL          = "gemini.url"
	AttrHost         = "net.peer.name"
	AttrPort         = "net.peer.port"
	AttrStatus       = "gemini.status"
	AttrMeta         = "gemini.meta"
	AttrMIME         = "gemini.mime"
	AttrBytes        = "gemini.response.bytes"
	AttrIdentity     = "gemini.identity"
	AttrFingerprint  = "tls.peer.fingerprint"
	AttrRedirects    = "gemini.redirects"
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// Span events.
const (
	EventHandshake     = "tls.handshake"
	EventFingerprint   = "tofu.recorded"
	EventFingerprintCh = "tofu.changed"
	EventRequestSent   = "request.sent"
)
