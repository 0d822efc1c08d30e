package portal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/edgent/internal/config"
	"github.com/muurk/edgent/internal/logging"
	"github.com/muurk/edgent/internal/ota"
	"github.com/muurk/edgent/internal/radio"
	"github.com/muurk/edgent/internal/state"
	"github.com/muurk/edgent/internal/transport"
	"github.com/muurk/edgent/internal/wait"
	"go.uber.org/zap"
)

const (
	// Radio settle delays while bringing up the access point.
	offSettle     = 100 * time.Millisecond
	apSettle      = 2 * time.Second
	apStartSettle = 500 * time.Millisecond

	// DefaultReplyTimeout bounds how long an HTTP request waits for the
	// main loop. It must exceed the scan timeout.
	DefaultReplyTimeout = 30 * time.Second

	// updateRestartDelay is the delay between a firmware upload and the
	// restart that boots it.
	updateRestartDelay = time.Second

	shutdownTimeout = 2 * time.Second
	queueDepth      = 8
	replyBuffer     = 32

	mdnsService = "_http._tcp"
	mdnsDomain  = "local."
)

var (
	errBusy         = errors.New("portal busy")
	errReplyTimeout = errors.New("no reply from device")
)

// Config wires a Portal to its collaborators.
type Config struct {
	WiFi     radio.WiFi
	Settings config.PortalSettings
	// Name is the access point SSID and the mDNS instance name.
	Name string
	// TXT records advertised over mDNS.
	TXT []string
	// Updater receives firmware uploads. Nil disables /update.
	Updater ota.Updater
	// State receives the restart request after a firmware upload.
	State  *state.Context
	Waiter wait.Waiter

	ReplyTimeout time.Duration
}

type request struct {
	cmd     transport.Command
	replies chan transport.Response
}

// Portal is the soft-AP + HTTP configuration transport.
type Portal struct {
	cfg    Config
	apAddr netip.Addr

	incoming chan *request
	// current is the request being answered. Main loop only.
	current *request

	attached bool
	http     *http.Server
	listener net.Listener
	dns      *captiveDNS
	dnsAddr  net.Addr
	mdns     *zeroconf.Server
}

// New returns a detached portal.
func New(cfg Config) (*Portal, error) {
	addr, err := netip.ParseAddr(cfg.Settings.APAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid access point address %q: %w", cfg.Settings.APAddress, err)
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = DefaultReplyTimeout
	}
	return &Portal{
		cfg:      cfg,
		apAddr:   addr,
		incoming: make(chan *request, queueDepth),
	}, nil
}

var _ transport.Transport = (*Portal)(nil)

func (p *Portal) Name() string { return config.TransportPortal }

// Attach brings up the access point, DNS responder, HTTP server and mDNS
// advertisement.
func (p *Portal) Attach(ctx context.Context) error {
	if p.attached {
		return nil
	}
	// requests left over from the previous attachment
	p.drain()

	if err := p.startAP(); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", p.cfg.Settings.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen for HTTP: %w", err)
	}
	p.listener = ln
	p.http = &http.Server{
		Handler:           p.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Portal HTTP server stopped", zap.Error(err))
		}
	}(p.http)

	if p.cfg.Settings.DNSAddr != "" {
		p.dns = newCaptiveDNS(p.apAddr)
		addr, err := p.dns.start(p.cfg.Settings.DNSAddr)
		if err != nil {
			logging.Warn("Captive DNS unavailable", zap.Error(err))
			p.dns = nil
		} else {
			p.dnsAddr = addr
		}
	}

	if p.cfg.Settings.MDNS {
		port := ln.Addr().(*net.TCPAddr).Port
		srv, err := zeroconf.Register(p.cfg.Name, mdnsService, mdnsDomain, port, p.cfg.TXT, nil)
		if err != nil {
			logging.Warn("mDNS advertisement unavailable", zap.Error(err))
		} else {
			p.mdns = srv
		}
	}

	p.attached = true
	logging.Info("Portal attached",
		zap.String("ssid", p.cfg.Name),
		zap.String("ap", p.apAddr.String()),
		zap.String("http", ln.Addr().String()),
	)
	return nil
}

func (p *Portal) startAP() error {
	w := p.cfg.WiFi
	if err := w.SetMode(radio.ModeOff); err != nil {
		return fmt.Errorf("failed to switch radio off: %w", err)
	}
	if p.cfg.Waiter.Sleep(offSettle) == wait.Cancelled {
		return errors.New("portal attach interrupted")
	}
	if err := w.SetMode(radio.ModeAP); err != nil {
		return fmt.Errorf("failed to enter AP mode: %w", err)
	}
	if p.cfg.Waiter.Sleep(apSettle) == wait.Cancelled {
		return errors.New("portal attach interrupted")
	}
	if err := w.StartAP(p.cfg.Name, p.apAddr); err != nil {
		return fmt.Errorf("failed to start access point: %w", err)
	}
	p.cfg.Waiter.Sleep(apStartSettle)
	return nil
}

// Detach stops every server. Pending requests are failed.
func (p *Portal) Detach() error {
	if !p.attached {
		return nil
	}
	p.attached = false

	if p.mdns != nil {
		p.mdns.Shutdown()
		p.mdns = nil
	}
	if p.dns != nil {
		p.dns.stop()
		p.dns = nil
		p.dnsAddr = nil
	}

	p.finish()
	p.drain()

	var err error
	if p.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := p.http.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("failed to stop portal HTTP server: %w", shutdownErr)
			_ = p.http.Close()
		}
		p.http = nil
		p.listener = nil
	}
	// handlers may have enqueued while the server was shutting down
	p.drain()

	logging.Info("Portal detached")
	return err
}

// drain fails every request still waiting in the queue.
func (p *Portal) drain() {
	for {
		select {
		case req := <-p.incoming:
			select {
			case req.replies <- unhandled():
			default:
			}
		default:
			return
		}
	}
}

// Poll fails the last request if the session left it unanswered.
func (p *Portal) Poll() {
	p.finish()
}

func (p *Portal) HasMessage() bool {
	return len(p.incoming) > 0
}

func (p *Portal) Receive() transport.Command {
	p.finish()
	select {
	case req := <-p.incoming:
		p.current = req
		logging.LogCommand(p.Name(), "recv", req.cmd)
		return req.cmd
	default:
		return nil
	}
}

func (p *Portal) Send(r transport.Response) error {
	if !p.attached {
		return transport.ErrNotAttached
	}
	if p.current == nil {
		return transport.ErrNoPeer
	}

	select {
	case p.current.replies <- r:
	default:
		logging.Warn("Dropping portal response, reply buffer full", zap.String("type", r.Type))
	}
	if !r.Intermediate() {
		p.current = nil
	}
	return nil
}

// PeerConnected reports whether any station is associated with the AP.
func (p *Portal) PeerConnected() bool {
	return p.cfg.WiFi.StationCount() > 0
}

// Addr returns the bound HTTP address while attached.
func (p *Portal) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// DNSAddr returns the bound captive DNS address while attached.
func (p *Portal) DNSAddr() net.Addr {
	return p.dnsAddr
}

func (p *Portal) finish() {
	if p.current == nil {
		return
	}
	select {
	case p.current.replies <- unhandled():
	default:
	}
	p.current = nil
}

func unhandled() transport.Response {
	return transport.Response{Type: transport.TypeError, Status: transport.StatusError, Msg: "Request not handled"}
}

// exchange queues cmd for the main loop and collects its responses up to
// and including the terminal one.
func (p *Portal) exchange(ctx context.Context, cmd transport.Command) ([]transport.Response, error) {
	req := &request{cmd: cmd, replies: make(chan transport.Response, replyBuffer)}
	select {
	case p.incoming <- req:
	default:
		return nil, errBusy
	}

	timer := time.NewTimer(p.cfg.ReplyTimeout)
	defer timer.Stop()

	var out []transport.Response
	for {
		select {
		case r := <-req.replies:
			out = append(out, r)
			if !r.Intermediate() {
				return out, nil
			}
		case <-timer.C:
			return out, errReplyTimeout
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
}
