// Package config parses the scanner's TCP-probe option surface — the
// timeout/hello/http-*/heartbleed-style name=value options a caller passes
// on the command line — into a typed Options value, mirroring the
// tcpcon_set_parameter dispatch table the engine's original implementation
// used.
package config

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HelloKind selects which stream family is forced on every port.
type HelloKind uint8

const (
	HelloNone HelloKind = iota
	HelloSSL
	HelloHTTP
	HelloSMBv1
)

// HTTPTemplate holds the per-field HTTP hello overrides.
type HTTPTemplate struct {
	Payload   []byte
	UserAgent string
	Host      string
	Method    string
	URL       string
	Version   string
}

// TLSProbe selects a named TLS vulnerability probe template.
type TLSProbe uint8

const (
	TLSProbeNone TLSProbe = iota
	TLSProbeHeartbleed
	TLSProbeTicketbleed
	TLSProbePoodle
)

// Options is the parsed result of applying a sequence of Set calls.
type Options struct {
	Timeout           time.Duration
	ConnectionTimeout time.Duration
	HelloTimeout      time.Duration
	Hello             HelloKind
	HelloStrings      map[uint16][]byte
	HTTP              HTTPTemplate
	TLSProbe          TLSProbe
	SmallWindow       bool
}

// Option is a functional option for programmatic construction, the
// idiomatic counterpart to Set for callers that are not parsing strings.
type Option func(*Options)

func WithTimeout(d time.Duration) Option            { return func(o *Options) { o.Timeout = d; o.ConnectionTimeout = d } }
func WithConnectionTimeout(d time.Duration) Option   { return func(o *Options) { o.ConnectionTimeout = d } }
func WithHelloTimeout(d time.Duration) Option        { return func(o *Options) { o.HelloTimeout = d } }
func WithHello(k HelloKind) Option                   { return func(o *Options) { o.Hello = k } }

// New builds Options from functional options, applying the same defaults
// Set would apply to an empty Options.
func New(opts ...Option) Options {
	var o Options
	o.applyDefaults()
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func (o *Options) applyDefaults() {
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	if o.ConnectionTimeout == 0 {
		o.ConnectionTimeout = o.Timeout
	}
	if o.HelloTimeout == 0 {
		o.HelloTimeout = 2 * time.Second
	}
	if o.HelloStrings == nil {
		o.HelloStrings = make(map[uint16][]byte)
	}
}

// Set applies one "name=value" (or bare "name") option string, matching the
// masscan-style option surface described in SPEC_FULL.md §6. Unknown names
// return an error rather than being silently ignored.
func (o *Options) Set(name, value string) error {
	if o.HelloStrings == nil {
		o.applyDefaults()
	}
	switch {
	case name == "timeout":
		if err := o.setSeconds(&o.Timeout, value); err != nil {
			return err
		}
		o.ConnectionTimeout = o.Timeout
		return nil
	case name == "connection-timeout":
		return o.setSeconds(&o.ConnectionTimeout, value)
	case name == "hello-timeout":
		return o.setSeconds(&o.HelloTimeout, value)
	case name == "hello":
		switch value {
		case "ssl":
			o.Hello = HelloSSL
		case "http":
			o.Hello = HelloHTTP
		case "smbv1":
			o.Hello = HelloSMBv1
		default:
			return fmt.Errorf("config: unknown hello kind %q", value)
		}
	case strings.HasPrefix(name, "hello-string"):
		port, err := parseBracketedPort(name)
		if err != nil {
			return err
		}
		decoded, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return fmt.Errorf("config: hello-string[%d]: %w", port, err)
		}
		o.HelloStrings[port] = decoded
	case name == "http-payload":
		o.HTTP.Payload = []byte(value)
	case name == "http-user-agent":
		o.HTTP.UserAgent = value
	case name == "http-host":
		o.HTTP.Host = value
	case name == "http-method":
		o.HTTP.Method = value
	case name == "http-url":
		o.HTTP.URL = value
	case name == "http-version":
		o.HTTP.Version = value
	case name == "heartbleed":
		o.TLSProbe = TLSProbeHeartbleed
		o.Hello = HelloSSL
		o.SmallWindow = true
	case name == "ticketbleed":
		o.TLSProbe = TLSProbeTicketbleed
		o.Hello = HelloSSL
	case name == "poodle", name == "sslv3":
		o.TLSProbe = TLSProbePoodle
		o.Hello = HelloSSL
	default:
		return fmt.Errorf("config: unknown option %q", name)
	}
	return nil
}

func (o *Options) setSeconds(dst *time.Duration, value string) error {
	secs, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("config: expected integer seconds, got %q: %w", value, err)
	}
	*dst = time.Duration(secs) * time.Second
	return nil
}

// parseBracketedPort extracts N from "hello-string[N]".
func parseBracketedPort(name string) (uint16, error) {
	open := strings.IndexByte(name, '[')
	close := strings.IndexByte(name, ']')
	if open < 0 || close < 0 || close < open {
		return 0, fmt.Errorf("config: expected hello-string[port], got %q", name)
	}
	n, err := strconv.ParseUint(name[open+1:close], 10, 16)
	if err != nil {
		return 0, fmt.Errorf("config: bad port in %q: %w", name, err)
	}
	return uint16(n), nil
}
