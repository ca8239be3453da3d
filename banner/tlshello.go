package banner

import (
	"encoding/binary"

	"github.com/kestrelscan/tcpstack/tcpengine"
	"golang.org/x/crypto/cryptobyte"
)

// TLSVariant selects which ClientHello template TLSHello builds, matching
// the heartbleed/ticketbleed/poodle|sslv3 configuration options.
type TLSVariant uint8

const (
	// VariantPlain sends an ordinary TLS 1.0 ClientHello with no probe
	// extensions, useful for generic certificate collection.
	VariantPlain TLSVariant = iota
	// VariantHeartbleed adds a TLS heartbeat extension (RFC 6520) so a
	// vulnerable peer's HeartbeatResponse can be distinguished in Parse.
	VariantHeartbleed
	// VariantTicketbleed adds an empty SessionTicket extension, probing for
	// F5 BIG-IP's ticketbleed (CVE-2016-9244) echo-back behavior.
	VariantTicketbleed
	// VariantPoodle forces the record and handshake version to SSLv3
	// (0x0300), the precondition for the POODLE padding oracle.
	VariantPoodle
)

// TLSOptions configures TLSHello's ClientHello template. SmallWindow is
// stored but not read by TLSHello; the advertised TCP window comes from
// template.IPv4.Window, which cmd/scanconnect sets to 536 when
// config.Options.SmallWindow is true.
type TLSOptions struct {
	Variant     TLSVariant
	ServerName  string
	SmallWindow bool
}

// TLSHello builds and sends a templated ClientHello and classifies whatever
// comes back.
type TLSHello struct {
	opts  TLSOptions
	hello []byte
}

func NewTLSHello(opts TLSOptions) *TLSHello {
	return &TLSHello{opts: opts, hello: buildClientHello(opts)}
}

func (t *TLSHello) Name() string {
	switch t.opts.Variant {
	case VariantHeartbleed:
		return "tls-heartbleed"
	case VariantTicketbleed:
		return "tls-ticketbleed"
	case VariantPoodle:
		return "tls-poodle"
	default:
		return "tlshello"
	}
}

// TransmitHello sends the pre-built ClientHello record. TLSHello implements
// HelloTransmitter rather than the simpler HelloBuffer interface only
// because a future revision may need to vary the hello per-connection
// (e.g. SNI from the target IP's reverse DNS); today it just forwards the
// static template.
func (t *TLSHello) TransmitHello(api tcpengine.NetAPI) error {
	return api.Send(t.hello, tcpengine.OwnershipStatic, false)
}

func (t *TLSHello) Parse(state any, payload []byte, out []byte, api tcpengine.NetAPI) (any, []byte) {
	if len(payload) >= 6 && payload[0] == 0x18 {
		// content type 24 = Heartbeat: the peer echoed (or over-echoed)
		// our HeartbeatRequest, the heartbleed tell.
		out = append(out, []byte("HEARTBEAT-RESPONSE ")...)
	}
	if len(payload) >= 3 && payload[0] == 0x16 && payload[1] == 0x03 {
		out = append(out, []byte("HANDSHAKE ")...)
	}
	if len(out)+len(payload) > maxBannerLen {
		payload = payload[:max(0, maxBannerLen-len(out))]
	}
	return state, append(out, payload...)
}

// buildClientHello assembles a TLS record containing a ClientHello using
// cryptobyte's length-prefixed builder helpers rather than hand-counted
// byte offsets, matching how a hand-rolled record would otherwise need
// three separate length patch-ups (record, handshake, extensions).
func buildClientHello(opts TLSOptions) []byte {
	recordVersion := uint16(0x0301) // TLS 1.0
	helloVersion := uint16(0x0301)
	if opts.Variant == VariantPoodle {
		recordVersion = 0x0300 // SSLv3
		helloVersion = 0x0300
	}

	var record cryptobyte.Builder
	record.AddUint8(0x16) // handshake content type
	record.AddUint16(recordVersion)
	record.AddUint16LengthPrefixed(func(rec *cryptobyte.Builder) {
		rec.AddUint8(0x01) // ClientHello handshake type
		rec.AddUint24LengthPrefixed(func(hs *cryptobyte.Builder) {
			hs.AddUint16(helloVersion)
			hs.AddBytes(make([]byte, 32)) // client random, zeroed: no session state needed for a probe
			hs.AddUint8LengthPrefixed(func(*cryptobyte.Builder) {}) // session id, empty
			hs.AddUint16LengthPrefixed(func(ciphers *cryptobyte.Builder) {
				// A broad, conservative cipher list so obsolete servers
				// still negotiate far enough to respond to our extension.
				for _, c := range []uint16{0x002f, 0x0035, 0x000a, 0xc013, 0xc014} {
					ciphers.AddUint16(c)
				}
			})
			hs.AddUint8LengthPrefixed(func(methods *cryptobyte.Builder) {
				methods.AddUint8(0) // compression: null
			})
			if opts.Variant != VariantPoodle {
				hs.AddUint16LengthPrefixed(func(ext *cryptobyte.Builder) {
					addExtensions(ext, opts)
				})
			}
		})
	})

	out, err := record.Bytes()
	if err != nil {
		// cryptobyte.Builder only errors when a length prefix overflows its
		// field width, which cannot happen for a fixed, small template.
		panic(err)
	}
	return out
}

func addExtensions(ext *cryptobyte.Builder, opts TLSOptions) {
	if opts.ServerName != "" {
		addSNI(ext, opts.ServerName)
	}
	switch opts.Variant {
	case VariantHeartbleed:
		ext.AddUint16(0x000f) // heartbeat
		ext.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint8(1) // peer_allowed_to_send
		})
	case VariantTicketbleed:
		ext.AddUint16(0x0023) // session_ticket
		ext.AddUint16LengthPrefixed(func(*cryptobyte.Builder) {})
	}
}

func addSNI(ext *cryptobyte.Builder, name string) {
	ext.AddUint16(0x0000) // server_name
	ext.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint16LengthPrefixed(func(list *cryptobyte.Builder) {
			list.AddUint8(0) // host_name
			list.AddUint16LengthPrefixed(func(host *cryptobyte.Builder) {
				host.AddBytes([]byte(name))
			})
		})
	})
}

// heartbeatRequestSize is a package-level helper for tests that want to assert the probe
// over-reads relative to its declared payload length (the heartbleed
// signature), without constructing a full TLS session.
func heartbeatRequestSize(declaredLen uint16) []byte {
	buf := make([]byte, 3)
	buf[0] = 1 // heartbeat_request
	binary.BigEndian.PutUint16(buf[1:], declaredLen)
	return buf
}
