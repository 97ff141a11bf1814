package testutil

import "time"

// routeData is the canned response for one request path.
type routeData struct {
	status int
	meta   string
	body   []byte
	raw    []byte // written verbatim instead of status/meta/body
	delay  time.Duration
	hang   bool
}

func defaultRoute() routeData {
	return routeData{status: 20, meta: "text/gemini; charset=utf-8"}
}

// RouteOption configures a route during builder setup.
type RouteOption func(*routeData)

// Status sets the response status code.
func Status(code int) RouteOption {
	return func(r *routeData) { r.status = code }
}

// Meta sets the response meta field.
func Meta(meta string) RouteOption {
	return func(r *routeData) { r.meta = meta }
}

// Body sets the response body.
func Body(body string) RouteOption {
	return func(r *routeData) { r.body = []byte(body) }
}

// BodyBytes sets a binary response body.
func BodyBytes(body []byte) RouteOption {
	return func(r *routeData) { r.body = body }
}

// Raw writes b instead of a well formed header and body.
func Raw(b []byte) RouteOption {
	return func(r *routeData) { r.raw = b }
}

// Delay waits before answering.
func Delay(d time.Duration) RouteOption {
	return func(r *routeData) { r.delay = d }
}

// Hang never answers; the connection stays open until the client gives up.
func Hang() RouteOption {
	return func(r *routeData) { r.hang = true }
}
