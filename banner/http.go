// Package banner implements the engine's parser-stream capability set:
// a Stream exposes Parse and, optionally, a static or dynamically-built
// hello payload (see tcpengine.HelloBuffer / HelloTransmitter).
package banner

import (
	"bytes"
	"fmt"

	"github.com/kestrelscan/tcpstack/tcpengine"
)

// HTTPOptions configures the templated GET request an HTTP stream sends as
// its hello.
type HTTPOptions struct {
	Method  string
	URL     string
	Host    string
	Version string
	UserAgent string
	Payload []byte
}

func (o HTTPOptions) withDefaults() HTTPOptions {
	if o.Method == "" {
		o.Method = "GET"
	}
	if o.URL == "" {
		o.URL = "/"
	}
	if o.Version == "" {
		o.Version = "HTTP/1.0"
	}
	if o.UserAgent == "" {
		o.UserAgent = "kestrelscan"
	}
	return o
}

// HTTP is a minimal request/response banner grabber: it sends one
// configured request and returns everything the peer sends back as the
// banner, truncated at a generous cap.
type HTTP struct {
	opts  HTTPOptions
	hello []byte
}

const maxBannerLen = 8192

// NewHTTP builds an HTTP stream, pre-rendering its hello template and
// recomputing Content-Length when a request payload is present, matching
// the http-payload/http-user-agent/... configuration surface.
func NewHTTP(opts HTTPOptions) *HTTP {
	opts = opts.withDefaults()
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s %s\r\n", opts.Method, opts.URL, opts.Version)
	if opts.Host != "" {
		fmt.Fprintf(&buf, "Host: %s\r\n", opts.Host)
	}
	fmt.Fprintf(&buf, "User-Agent: %s\r\n", opts.UserAgent)
	if len(opts.Payload) > 0 {
		fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(opts.Payload))
	}
	buf.WriteString("\r\n")
	buf.Write(opts.Payload)
	return &HTTP{opts: opts, hello: buf.Bytes()}
}

func (h *HTTP) Name() string { return "http" }

func (h *HTTP) Hello() []byte { return h.hello }

func (h *HTTP) Parse(state any, payload []byte, out []byte, api tcpengine.NetAPI) (any, []byte) {
	if len(out)+len(payload) > maxBannerLen {
		payload = payload[:max(0, maxBannerLen-len(out))]
	}
	return state, append(out, payload...)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Raw sends a literal, pre-built hello payload verbatim and collects
// whatever comes back, for the masscan-style hello-string[port] option
// where the caller supplies the exact bytes to transmit rather than a
// templated request.
type Raw struct {
	hello []byte
}

// NewRaw wraps a literal hello payload as a Stream.
func NewRaw(hello []byte) *Raw {
	return &Raw{hello: hello}
}

func (r *Raw) Name() string { return "raw" }

func (r *Raw) Hello() []byte { return r.hello }

func (r *Raw) Parse(state any, payload []byte, out []byte, api tcpengine.NetAPI) (any, []byte) {
	if len(out)+len(payload) > maxBannerLen {
		payload = payload[:max(0, maxBannerLen-len(out))]
	}
	return state, append(out, payload...)
}
