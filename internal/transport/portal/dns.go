package portal

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/miekg/dns"
	"github.com/muurk/edgent/internal/logging"
	"go.uber.org/zap"
)

// captiveTTL is the TTL of every redirect answer, in seconds.
const captiveTTL = 300

// captiveDNS answers every A query with the access point's own address so
// that clients land on the portal whatever name they look up.
type captiveDNS struct {
	addr   netip.Addr
	server *dns.Server
}

func newCaptiveDNS(addr netip.Addr) *captiveDNS {
	return &captiveDNS{addr: addr}
}

// ServeDNS implements dns.Handler. Queries other than A get SERVFAIL.
func (c *captiveDNS) ServeDNS(w dns.ResponseWriter, req *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(req)
	m.Authoritative = true

	if req.Opcode == dns.OpcodeQuery && c.addr.Is4() {
		for _, q := range req.Question {
			if q.Qtype != dns.TypeA || q.Qclass != dns.ClassINET {
				continue
			}
			m.Answer = append(m.Answer, &dns.A{
				Hdr: dns.RR_Header{
					Name:   q.Name,
					Rrtype: dns.TypeA,
					Class:  dns.ClassINET,
					Ttl:    captiveTTL,
				},
				A: net.IP(c.addr.AsSlice()),
			})
		}
	}

	if len(m.Answer) == 0 {
		m.SetRcode(req, dns.RcodeServerFailure)
	}

	if err := w.WriteMsg(m); err != nil {
		logging.Debug("Failed to write DNS reply", zap.Error(err))
	}
}

// start serves on a UDP socket bound to listenAddr and returns the bound
// address.
func (c *captiveDNS) start(listenAddr string) (net.Addr, error) {
	pc, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for DNS: %w", err)
	}

	started := make(chan struct{})
	c.server = &dns.Server{
		PacketConn:        pc,
		Handler:           c,
		NotifyStartedFunc: func() { close(started) },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.server.ActivateAndServe()
	}()

	select {
	case <-started:
	case err := <-errCh:
		_ = pc.Close()
		c.server = nil
		return nil, fmt.Errorf("captive DNS failed to start: %w", err)
	}

	return pc.LocalAddr(), nil
}

func (c *captiveDNS) stop() {
	if c.server == nil {
		return
	}
	if err := c.server.Shutdown(); err != nil {
		logging.Debug("Captive DNS shutdown", zap.Error(err))
	}
	c.server = nil
}
