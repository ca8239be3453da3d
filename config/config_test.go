package config

import (
	"encoding/base64"
	"testing"
	"time"
)

func TestSetTimeoutOptions(t *testing.T) {
	var o Options
	if err := o.Set("timeout", "10"); err != nil {
		t.Fatal(err)
	}
	if o.Timeout != 10*time.Second {
		t.Fatalf("timeout = %v, want 10s", o.Timeout)
	}
}

func TestSetHeartbleedForcesTLSAndSmallWindow(t *testing.T) {
	var o Options
	if err := o.Set("heartbleed", ""); err != nil {
		t.Fatal(err)
	}
	if o.TLSProbe != TLSProbeHeartbleed {
		t.Fatalf("TLSProbe = %v, want heartbleed", o.TLSProbe)
	}
	if o.Hello != HelloSSL {
		t.Fatalf("Hello = %v, want ssl", o.Hello)
	}
	if !o.SmallWindow {
		t.Fatal("expected SmallWindow=true for heartbleed")
	}
}

func TestSetHelloStringDecodesBase64PerPort(t *testing.T) {
	var o Options
	payload := base64.StdEncoding.EncodeToString([]byte("PING\r\n"))
	if err := o.Set("hello-string[7]", payload); err != nil {
		t.Fatal(err)
	}
	got := o.HelloStrings[7]
	if string(got) != "PING\r\n" {
		t.Fatalf("got %q", got)
	}
}

func TestSetUnknownOptionErrors(t *testing.T) {
	var o Options
	if err := o.Set("bogus-option", "1"); err == nil {
		t.Fatal("expected error for unknown option")
	}
}

func TestPoodleAndSslv3Alias(t *testing.T) {
	var a, b Options
	a.Set("poodle", "")
	b.Set("sslv3", "")
	if a.TLSProbe != b.TLSProbe {
		t.Fatal("poodle and sslv3 should set the same probe")
	}
}
