// Command scanconnect drives a single active-open TCP connection through
// the userspace engine against one target, printing whatever banner its
// assigned probe stream collects. It exists to exercise the engine's full
// wiring end to end — ARP resolution, the connection table, the state
// machine, and a probe stream — the way a real scan would invoke it for one
// target at a time.
package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kestrelscan/tcpstack/arp"
	"github.com/kestrelscan/tcpstack/banner"
	"github.com/kestrelscan/tcpstack/config"
	"github.com/kestrelscan/tcpstack/metrics"
	"github.com/kestrelscan/tcpstack/rawsock"
	"github.com/kestrelscan/tcpstack/seqnum"
	"github.com/kestrelscan/tcpstack/tcpengine"
	"github.com/kestrelscan/tcpstack/template"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		iface      = flag.String("iface", "", "network interface index, e.g. 2 (ignored outside Linux)")
		localMAC   = flag.String("local-mac", "", "our MAC address, required")
		gatewayIP  = flag.String("gateway-ip", "", "gateway IPv4 address, required for ARP resolution")
		localIP    = flag.String("local-ip", "", "our IPv4 address, required")
		targetIP   = flag.String("target-ip", "", "scan target IPv4 address, required")
		targetPort = flag.Uint("target-port", 80, "scan target TCP port")
		helloOpt   = flag.String("hello", "http", "hello kind: http, ssl, heartbleed, ticketbleed, poodle")
		metricsAddr = flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address, e.g. :9256")
	)
	flag.Parse()
	if *localMAC == "" || *localIP == "" || *targetIP == "" {
		return fmt.Errorf("scanconnect: -local-mac, -local-ip and -target-ip are required")
	}

	cfg := config.New()
	if kind := helloKindFor(*helloOpt); kind != "" {
		if err := cfg.Set("hello", kind); err != nil {
			return err
		}
	}
	if probeName := probeFor(*helloOpt); probeName != "" {
		if err := cfg.Set(probeName, "1"); err != nil {
			return err
		}
	}

	lmac, err := template.ParseHardwareAddr(*localMAC)
	if err != nil {
		return fmt.Errorf("scanconnect: bad -local-mac: %w", err)
	}
	lip, err := ip4(*localIP)
	if err != nil {
		return err
	}
	tip, err := ip4(*targetIP)
	if err != nil {
		return err
	}

	adapter, err := openAdapter(*iface)
	if err != nil {
		return fmt.Errorf("scanconnect: opening transport: %w", err)
	}
	defer adapter.Close()

	var remoteMAC [6]byte
	if *gatewayIP != "" {
		gip, err := ip4(*gatewayIP)
		if err != nil {
			return err
		}
		remoteMAC, err = arp.Resolve(adapter, lmac, lip, gip)
		if err != nil {
			return fmt.Errorf("scanconnect: resolving gateway MAC: %w", err)
		}
	}

	tpl := template.IPv4{LocalMAC: lmac, RemoteMAC: remoteMAC}
	if cfg.SmallWindow {
		tpl.Window = 536
	}

	reporter := stdoutReporter{}

	var entropy [16]byte
	if _, err := rand.Read(entropy[:]); err != nil {
		return fmt.Errorf("scanconnect: seeding syn cookie entropy: %w", err)
	}

	table, err := tcpengine.NewTable(tcpengine.Options{
		Capacity:     1024,
		Template:     tpl,
		Reporter:     reporter,
		ConnTimeout:  cfg.ConnectionTimeout,
		HelloTimeout: cfg.HelloTimeout,
		Entropy:      entropy,
		Logger:       slog.Default(),
		DefaultStream: func(port uint16) tcpengine.Stream {
			return streamFor(cfg, port)
		},
	})
	if err != nil {
		return err
	}

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewTableCollector(table))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				slog.Default().Warn("metrics server exited", "err", err)
			}
		}()
	}

	clock := &wallClock{start: time.Now()}
	driver := tcpengine.NewDriver(table, clock, &tcpengine.AppConfig{HelloTimeout: cfg.HelloTimeout})

	tuple := tcpengine.FourTuple{
		Local:      tcpengine.AddrFromBytes(lip[:]),
		Remote:     tcpengine.AddrFromBytes(tip[:]),
		LocalPort:  44000,
		RemotePort: uint16(*targetPort),
	}
	stream := streamFor(cfg, tuple.RemotePort)
	if _, err := driver.Connect(tuple, 64, stream); err != nil {
		return fmt.Errorf("scanconnect: connect: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sig
		fmt.Fprintln(os.Stderr, "scanconnect: terminating on signal", s)
		adapter.Close()
		os.Exit(0)
	}()

	return pumpLoop(adapter, table, driver, clock)
}

// pumpLoop is the single-threaded RX loop: it drains whatever the engine
// queued onto its transmit ring, reads a frame off the adapter (classifying
// and dispatching it to the driver), and drains expired timers, matching
// the one-thread-owns-the-table invariant from SPEC_FULL.md's concurrency
// model. A production build would run drainTx on its own goroutine instead
// of interleaving it here, as Component H describes.
func pumpLoop(adapter rawsock.Adapter, table *tcpengine.Table, driver *tcpengine.Driver, clock *wallClock) error {
	for {
		drained := drainTx(adapter, table)

		if tcb := table.ExpireOne(clock.Tick()); tcb != nil {
			driver.HandleTimeout(tcb)
			continue
		}
		frame, _, _, err := adapter.RecvFrame()
		if err == rawsock.ErrNoFrame {
			if table.Stats().Active == 0 && !drained {
				return nil
			}
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if err != nil {
			return err
		}
		seg, err := tcpengine.DecodeIPv4TCP(frame)
		if err != nil {
			continue
		}
		tcb := table.Lookup(seg.Tuple)
		if tcb == nil {
			continue
		}
		dispatch(driver, tcb, seg)
	}
}

// drainTx flushes every frame the state machine has queued this iteration
// onto the real wire. The receive loop above never builds or sends a frame
// itself; it only reacts to what the engine already queued, matching the
// RX-thread/TX-ring split the engine is built around even though this demo
// runs both sides on one goroutine. Returns whether anything was sent.
func drainTx(adapter rawsock.Adapter, table *tcpengine.Table) bool {
	sent := false
	for {
		frame, ok := table.DequeueTx()
		if !ok {
			return sent
		}
		if err := adapter.SendFrame(frame, true); err != nil {
			slog.Default().Warn("send failed", "err", err)
		}
		sent = true
	}
}

func dispatch(driver *tcpengine.Driver, tcb *tcpengine.TCB, seg tcpengine.IncomingSegment) {
	switch {
	case seg.RST:
		driver.HandleRst(tcb)
	case seg.SYN && seg.ACK:
		driver.HandleSynAck(tcb, seg.Seq)
	case seg.FIN:
		if len(seg.Payload) > 0 {
			driver.HandleData(tcb, seg.Seq, seg.Payload)
		}
		driver.HandleFin(tcb, seqnum.Add(seg.Seq, seqnum.Size(len(seg.Payload))))
	case len(seg.Payload) > 0:
		driver.HandleData(tcb, seg.Seq, seg.Payload)
	case seg.ACK:
		driver.HandleAck(tcb, seg.Ack)
	}
}

func streamFor(cfg config.Options, port uint16) tcpengine.Stream {
	if raw, ok := cfg.HelloStrings[port]; ok {
		return banner.NewRaw(raw)
	}
	switch cfg.TLSProbe {
	case config.TLSProbeHeartbleed:
		return banner.NewTLSHello(banner.TLSOptions{Variant: banner.VariantHeartbleed, SmallWindow: cfg.SmallWindow})
	case config.TLSProbeTicketbleed:
		return banner.NewTLSHello(banner.TLSOptions{Variant: banner.VariantTicketbleed})
	case config.TLSProbePoodle:
		return banner.NewTLSHello(banner.TLSOptions{Variant: banner.VariantPoodle})
	}
	switch cfg.Hello {
	case config.HelloSSL:
		return banner.NewTLSHello(banner.TLSOptions{Variant: banner.VariantPlain})
	default:
		return banner.NewHTTP(banner.HTTPOptions{
			Method:    cfg.HTTP.Method,
			URL:       cfg.HTTP.URL,
			Host:      cfg.HTTP.Host,
			Version:   cfg.HTTP.Version,
			UserAgent: cfg.HTTP.UserAgent,
			Payload:   cfg.HTTP.Payload,
		})
	}
}

func helloKindFor(opt string) string {
	switch opt {
	case "ssl", "http":
		return opt
	default:
		return ""
	}
}

func probeFor(opt string) string {
	switch opt {
	case "heartbleed", "ticketbleed", "poodle", "sslv3":
		return opt
	default:
		return ""
	}
}

func ip4(s string) ([4]byte, error) {
	var out [4]byte
	var a, b, c, d int
	if n, err := fmt.Sscanf(s, "%d.%d.%d.%d", &a, &b, &c, &d); n != 4 || err != nil {
		return out, fmt.Errorf("scanconnect: bad IPv4 address %q", s)
	}
	out = [4]byte{byte(a), byte(b), byte(c), byte(d)}
	return out, nil
}

// stdoutReporter prints each connection's collected banner as it is
// destroyed, standing in for the scanner's real output sink (JSON/ndjson
// in a full deployment).
type stdoutReporter struct{}

func (stdoutReporter) Report(id xid.ID, tuple tcpengine.FourTuple, ttl uint8, subproto string, bannerBytes []byte, secs int64, usecs int32) {
	fmt.Printf("%s %d/tcp %s ttl=%d: %q\n", id.String(), tuple.RemotePort, subproto, ttl, bannerBytes)
}

// wallClock implements tcpengine.Clock over the real wall clock, ticking
// once per second.
type wallClock struct{ start time.Time }

func (c *wallClock) Tick() uint64 { return uint64(time.Since(c.start).Seconds()) }
func (c *wallClock) Now() (int64, int32) {
	now := time.Now()
	return now.Unix(), int32(now.Nanosecond() / 1000)
}
