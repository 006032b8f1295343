// Package broadcast serves one live byte stream to any number of HTTP
// consumers.
//
// A Server listens on a single endpoint. "GET /" admits the requester as a
// consumer and keeps the connection open; "HEAD /" returns the same headers
// with no body; anything else gets 400 Bad Request. The producer pushes the
// stream through Write, which is an io.Writer:
//
//	srv, err := broadcast.New(broadcast.Config{Port: 3000, ContentType: "audio/mp3"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Stop()
//
//	fmt.Println("stream at", srv.URL())
//	_, err = io.Copy(srv, os.Stdin)
//
// # Port Selection
//
// New binds immediately, starting at port 3000 unless Config.Port says
// otherwise. If that port is in use the following ports are tried in order
// (1000 by default) and Port reports the one bound. Config.Ephemeral asks
// the kernel for any free port instead.
//
// # Fan-out
//
// Each Write hands the chunk to every consumer connected when the call
// started, concurrently, and returns when all of them have taken it. A
// consumer whose write fails or times out is dropped and the others are not
// affected. Writes are serialized, so chunks reach each consumer in order
// and the slowest consumer paces the producer.
//
// # Response Headers
//
//	HTTP/1.1 200 OK
//	Content-Type: <configured>
//	Cache-Control: no-cache, no-store, must-revalidate
//	Pragma: no-cache
//	Expires: 0
//	Connection: close
//
// No Content-Length is sent.
package broadcast
