package machine

import (
	"context"

	"github.com/muurk/edgent/internal/transport"
)

// scripted is a transport that replays queued commands and records responses.
type scripted struct {
	queue     []transport.Command
	sent      []transport.Response
	peer      bool
	attachErr error

	attached bool
	attaches int
	detaches int
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Attach(context.Context) error {
	if s.attachErr != nil {
		return s.attachErr
	}
	s.attached = true
	s.attaches++
	return nil
}

func (s *scripted) Detach() error {
	s.attached = false
	s.detaches++
	return nil
}

func (s *scripted) Poll()            {}
func (s *scripted) HasMessage() bool { return len(s.queue) > 0 }

func (s *scripted) Receive() transport.Command {
	if len(s.queue) == 0 {
		return nil
	}
	cmd := s.queue[0]
	s.queue = s.queue[1:]
	return cmd
}

func (s *scripted) Send(r transport.Response) error {
	s.sent = append(s.sent, r)
	return nil
}

func (s *scripted) PeerConnected() bool { return s.peer }

func (s *scripted) push(cmds ...string) {
	for _, c := range cmds {
		s.queue = append(s.queue, transport.Command(c))
	}
}

func (s *scripted) types() []string {
	out := make([]string, len(s.sent))
	for i, r := range s.sent {
		out[i] = r.Type
	}
	return out
}

// fakeCloud connects after a configurable number of polls.
type fakeCloud struct {
	// connectAfter is how many Connected polls an attempt takes; negative
	// never connects.
	connectAfter int
	rejectToken  bool

	token string
	host  string
	port  int

	attempts    int
	polls       int
	connected   bool
	rejected    bool
	disconnects int

	events []string
	meta   map[string]string
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{meta: make(map[string]string)}
}

func (c *fakeCloud) Configure(token, host string, port int) {
	c.token, c.host, c.port = token, host, port
	c.rejected = false
}

func (c *fakeCloud) Connect() error {
	c.attempts++
	c.polls = 0
	c.rejected = c.rejectToken
	return nil
}

func (c *fakeCloud) Connected() bool {
	if c.connected || c.rejected || c.connectAfter < 0 || c.attempts == 0 {
		return c.connected
	}
	c.polls++
	if c.polls > c.connectAfter {
		c.connected = true
	}
	return c.connected
}

func (c *fakeCloud) TokenInvalid() bool { return c.rejected }

func (c *fakeCloud) Disconnect() {
	c.disconnects++
	c.connected = false
	c.attempts = 0
}

func (c *fakeCloud) SendEvent(name, value string) error {
	c.events = append(c.events, name+"="+value)
	return nil
}

func (c *fakeCloud) SetMetadata(key, value string) error {
	c.meta[key] = value
	return nil
}
