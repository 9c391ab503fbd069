// Package session implements XMPP-signalled P2P sessions: the session state
// machine, the per-content transport proxies, and the manager that routes
// stanzas to sessions. Everything here runs on the signaling loop.
package session

import (
	"github.com/peertalk/peertalk/signaling"
	"github.com/peertalk/peertalk/transport"
)

// TransportProxy mediates between a session's content and its Transport. It
// hands out channel proxies before negotiation completes, buffers candidate
// traffic, and can be repointed at another content's transport when the
// session bundles.
type TransportProxy struct {
	sid         string
	contentName string
	transport   *transport.Transport

	connecting          bool
	negotiated          bool
	candidatesAllocated bool

	channels     map[int]*transport.ChannelProxy
	channelNames map[int]string

	sentCandidates   []transport.Candidate
	unsentCandidates []transport.Candidate
	// pendingRemoteCandidates arrive between the offer and the answer, when
	// the channels cannot receive them yet.
	pendingRemoteCandidates []transport.Candidate
}

func newTransportProxy(sid, contentName string, t *transport.Transport) *TransportProxy {
	return &TransportProxy{
		sid:          sid,
		contentName:  contentName,
		transport:    t,
		channels:     make(map[int]*transport.ChannelProxy),
		channelNames: make(map[int]string),
	}
}

func (p *TransportProxy) SID() string                     { return p.sid }
func (p *TransportProxy) ContentName() string             { return p.contentName }
func (p *TransportProxy) Transport() *transport.Transport { return p.transport }
func (p *TransportProxy) Type() string                    { return p.transport.Type() }
func (p *TransportProxy) Negotiated() bool                { return p.negotiated }

// CreateChannel returns the channel proxy for component, creating it with
// the given legacy channel name. Once the proxy has negotiated, new channels
// are immediately backed by an implementation.
func (p *TransportProxy) CreateChannel(channelName string, component int) transport.Channel {
	if ch, ok := p.channels[component]; ok {
		return ch
	}
	ch := transport.NewChannelProxy(p.contentName, component)
	p.channels[component] = ch
	p.channelNames[component] = channelName
	if p.negotiated {
		ch.SetImpl(p.transport.CreateChannel(component))
	} else if p.connecting {
		// Already connecting: the raw channel must exist so it gathers,
		// even though the proxy stays unbound until negotiation.
		p.transport.CreateChannel(component)
	}
	return ch
}

func (p *TransportProxy) HasChannel(component int) bool {
	_, ok := p.channels[component]
	return ok
}

func (p *TransportProxy) GetChannel(component int) transport.Channel {
	if ch, ok := p.channels[component]; ok {
		return ch
	}
	return nil
}

func (p *TransportProxy) DestroyChannel(component int) {
	ch, ok := p.channels[component]
	if !ok {
		return
	}
	delete(p.channels, component)
	delete(p.channelNames, component)
	if ch.Impl() != nil {
		ch.SetImpl(nil)
		p.transport.DestroyChannel(component)
	}
}

// ConnectChannels asks the transport to start connecting, once. Before
// negotiation the proxies have no implementations, so the raw channels are
// created here to let gathering begin while the offer is in flight.
func (p *TransportProxy) ConnectChannels() {
	if p.connecting {
		return
	}
	if !p.negotiated {
		for component := range p.channels {
			p.transport.CreateChannel(component)
		}
	}
	p.connecting = true
	p.transport.ConnectChannels()
}

// CompleteNegotiation backs every channel proxy with a real channel and
// delivers candidates that arrived early. Safe to call more than once.
func (p *TransportProxy) CompleteNegotiation() error {
	if p.negotiated {
		return nil
	}
	p.negotiated = true
	for component, ch := range p.channels {
		impl := p.transport.GetChannel(component)
		if impl == nil {
			impl = p.transport.CreateChannel(component)
		}
		ch.SetImpl(impl)
	}

	pending := p.pendingRemoteCandidates
	p.pendingRemoteCandidates = nil
	if len(pending) > 0 {
		return p.transport.OnRemoteCandidates(pending)
	}
	return nil
}

// SetupMux repoints this proxy at selected's transport, so all its channels
// share the bundled content's transport.
func (p *TransportProxy) SetupMux(selected *TransportProxy) {
	if p == selected {
		return
	}
	old := p.transport
	p.transport = selected.transport
	p.negotiated = true
	// Candidates held for the old transport no longer apply.
	p.pendingRemoteCandidates = nil
	for component, ch := range p.channels {
		ch.SetImpl(p.transport.CreateChannel(component))
	}
	if old != selected.transport {
		old.DestroyAllChannels()
	}
}

// SetLocalDescription pushes one side's transport parameters down. An answer
// finalizes negotiation.
func (p *TransportProxy) SetLocalDescription(desc *transport.Description, action transport.ContentAction) error {
	if err := p.transport.SetLocalDescription(desc, action); err != nil {
		return err
	}
	if action == transport.ActionAnswer {
		return p.CompleteNegotiation()
	}
	return nil
}

func (p *TransportProxy) SetRemoteDescription(desc *transport.Description, action transport.ContentAction) error {
	if err := p.transport.SetRemoteDescription(desc, action); err != nil {
		return err
	}
	if action == transport.ActionAnswer {
		return p.CompleteNegotiation()
	}
	return nil
}

// OnRemoteCandidates delivers candidates to the transport, or holds them
// until negotiation completes.
func (p *TransportProxy) OnRemoteCandidates(candidates []transport.Candidate) error {
	if !p.negotiated {
		for _, c := range candidates {
			if err := c.Validate(); err != nil {
				return err
			}
		}
		p.pendingRemoteCandidates = append(p.pendingRemoteCandidates, candidates...)
		return nil
	}
	return p.transport.OnRemoteCandidates(candidates)
}

// Candidate outboxes. Sent candidates are kept for redirect replay; unsent
// candidates wait for the initiate ack.

func (p *TransportProxy) AddSentCandidates(candidates []transport.Candidate) {
	p.sentCandidates = append(p.sentCandidates, candidates...)
}

func (p *TransportProxy) AddUnsentCandidates(candidates []transport.Candidate) {
	p.unsentCandidates = append(p.unsentCandidates, candidates...)
}

func (p *TransportProxy) SentCandidates() []transport.Candidate   { return p.sentCandidates }
func (p *TransportProxy) UnsentCandidates() []transport.Candidate { return p.unsentCandidates }
func (p *TransportProxy) ClearSentCandidates()                    { p.sentCandidates = nil }
func (p *TransportProxy) ClearUnsentCandidates()                  { p.unsentCandidates = nil }

func (p *TransportProxy) CandidatesAllocated() bool        { return p.candidatesAllocated }
func (p *TransportProxy) SetCandidatesAllocated(done bool) { p.candidatesAllocated = done }

// ChannelNameFromComponent and ComponentFromChannelName implement
// signaling.CandidateTranslator over the proxy's channel map.
func (p *TransportProxy) ChannelNameFromComponent(component int) (string, bool) {
	name, ok := p.channelNames[component]
	return name, ok
}

func (p *TransportProxy) ComponentFromChannelName(name string) (int, bool) {
	for component, n := range p.channelNames {
		if n == name {
			return component, true
		}
	}
	return 0, false
}

var _ signaling.CandidateTranslator = (*TransportProxy)(nil)
