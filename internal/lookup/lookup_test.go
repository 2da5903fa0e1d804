package lookup

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// serve starts a UDP DNS server on loopback answering with handler.
func serve(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go srv.ActivateAndServe()
	t.Cleanup(func() { srv.Shutdown() })
	<-started
	return pc.LocalAddr().String()
}

func TestResolve(t *testing.T) {
	addr := serve(t, func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		if req.Question[0].Name == "seeds.example.org." {
			for _, ip := range []string{"5.6.7.8", "1.2.3.4"} {
				m.Answer = append(m.Answer, &dns.A{
					Hdr: dns.RR_Header{Name: req.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
					A:   net.ParseIP(ip),
				})
			}
		} else {
			m.Rcode = dns.RcodeNameError
		}
		w.WriteMsg(m)
	})

	r := NewResolver(addr, time.Second)
	answers, err := r.Resolve(context.Background(), "seeds.example.org")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(answers) != 2 || answers[0].Address != "1.2.3.4" || answers[1].Address != "5.6.7.8" {
		t.Errorf("unexpected answers %+v", answers)
	}
	if answers[0].TTL != 300*time.Second {
		t.Errorf("expected 300s TTL, got %v", answers[0].TTL)
	}

	none, err := r.Resolve(context.Background(), "missing.example.org")
	if err != nil {
		t.Fatalf("Resolve NXDOMAIN: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no answers for NXDOMAIN, got %+v", none)
	}
}

func TestResolve_ServerFailure(t *testing.T) {
	addr := serve(t, func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(req, dns.RcodeServerFailure)
		w.WriteMsg(m)
	})
	if _, err := NewResolver(addr, time.Second).Resolve(context.Background(), "seeds.example.org"); err == nil {
		t.Fatal("expected error for SERVFAIL")
	}
}

func TestSystemServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolv.conf")
	if err := os.WriteFile(path, []byte("nameserver 9.9.9.9\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := SystemServer(path); got != "9.9.9.9:53" {
		t.Errorf("expected 9.9.9.9:53, got %q", got)
	}
	if got := SystemServer("/nonexistent/resolv.conf"); got != DefaultServer {
		t.Errorf("expected default server, got %q", got)
	}
}
