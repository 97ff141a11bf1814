package testutil

// WithStandardCapsule adds the routes most client tests need.
func (b *Builder) WithStandardCapsule() *Builder {
	return b.
		WithRoute("/", Body("# Welcome\n\nHello capsule\n=> /about About\n")).
		WithRoute("/about", Body("## About\n* one\n* two\n")).
		WithRoute("/plain", Meta("text/plain"), Body("a < b\n")).
		WithRoute("/latin1", Meta("text/plain; charset=iso-8859-1"), BodyBytes([]byte{'c', 'a', 'f', 0xe9})).
		WithRoute("/image.png", Meta("image/png"), BodyBytes([]byte{0x89, 'P', 'N', 'G'})).
		WithRoute("/archive.zip", Meta("application/zip"), BodyBytes([]byte{'P', 'K', 3, 4})).
		WithRoute("/redirect", Status(30), Meta("/")).
		WithRoute("/loop", Status(31), Meta("/loop")).
		WithRoute("/away", Status(30), Meta("gemini://elsewhere.example/")).
		WithRoute("/search", Status(10), Meta("Search terms")).
		WithRoute("/search?gemini", Body("# Results\n")).
		WithRoute("/password", Status(11), Meta("Password")).
		WithRoute("/slow", Status(44), Meta("5")).
		WithRoute("/gone", Status(52), Meta("Moved on")).
		WithRoute("/private", Status(60), Meta("Certificate needed")).
		WithRoute("/empty", Raw([]byte{})).
		WithRoute("/garbage", Raw([]byte("HTTP/1.1 200 OK\r\n\r\n")))
}
