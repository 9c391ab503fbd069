// Package switchboard routes iq stanzas between connected peers by JID. It
// is the stand-in for a full XMPP server: enough to carry session signalling
// between two peertalk endpoints.
package switchboard

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/peertalk/peertalk/internal/metrics"
	"github.com/peertalk/peertalk/xmpp"
)

var (
	ErrJIDInUse    = errors.New("switchboard: jid already connected")
	ErrNoRoute     = errors.New("switchboard: no connected peer for jid")
	ErrInvalidSend = errors.New("switchboard: stanza missing to attribute")
)

// Peer receives stanzas routed to its JID. Deliver must not block; the
// websocket layer backs it with a buffered send queue.
type Peer interface {
	JID() xmpp.JID
	Deliver(stanza *xmpp.Element) error
}

// Switchboard is the in-memory stanza router. Peers register under their
// full JID; routing matches full JID first and falls back to any resource
// of the bare JID.
type Switchboard struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	peers map[string]Peer
}

func New(log *slog.Logger, m *metrics.Metrics) *Switchboard {
	return &Switchboard{
		log:     log,
		metrics: m,
		peers:   make(map[string]Peer),
	}
}

// Register adds the peer. A second connection for the same full JID is
// rejected rather than stealing the registration.
func (sb *Switchboard) Register(p Peer) error {
	key := p.JID().String()

	sb.mu.Lock()
	defer sb.mu.Unlock()
	if _, exists := sb.peers[key]; exists {
		return ErrJIDInUse
	}
	sb.peers[key] = p
	return nil
}

// Unregister drops the peer, if it is still the registered one.
func (sb *Switchboard) Unregister(p Peer) {
	key := p.JID().String()

	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.peers[key] == p {
		delete(sb.peers, key)
	}
}

// Connected reports whether any resource of jid's bare form is registered.
func (sb *Switchboard) Connected(jid string) bool {
	_, err := sb.lookup(jid)
	return err == nil
}

// Route delivers stanza on behalf of from. The stanza's from attribute is
// overwritten with the sender's full JID so peers cannot spoof each other.
func (sb *Switchboard) Route(from xmpp.JID, stanza *xmpp.Element) error {
	to := stanza.Attr(xmpp.QNTo)
	if to == "" {
		sb.metrics.Inc(metrics.EventStanzaRejected)
		return ErrInvalidSend
	}
	stanza.SetAttr(xmpp.QNFrom, from.String())

	target, err := sb.lookup(to)
	if err != nil {
		sb.metrics.Inc(metrics.EventStanzaDroppedNoRoute)
		return err
	}
	if err := target.Deliver(stanza); err != nil {
		sb.metrics.Inc(metrics.EventStanzaDroppedNoRoute)
		return err
	}
	sb.metrics.Inc(metrics.EventStanzaRouted)
	return nil
}

// RouteError sends a recipient-unavailable error for stanza back to its
// sender, as a server would when the destination is gone.
func (sb *Switchboard) RouteError(from xmpp.JID, stanza *xmpp.Element) {
	if t := stanza.Attr(xmpp.QNType); t == "result" || t == "error" {
		// Never bounce a response; that loops.
		return
	}
	reply := xmpp.NewErrorStanza(stanza, xmpp.QNStanzaItemNotFound, "cancel", "recipient unavailable", nil)
	reply.SetAttr(xmpp.QNTo, from.String())
	target, err := sb.lookup(from.String())
	if err != nil {
		return
	}
	if err := target.Deliver(reply); err != nil {
		sb.log.Debug("error reply dropped", "to", from.String(), "err", err)
	}
}

func (sb *Switchboard) lookup(jid string) (Peer, error) {
	target := xmpp.ParseJID(jid)
	if !target.IsValid() {
		return nil, ErrNoRoute
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()
	if p, ok := sb.peers[target.String()]; ok {
		return p, nil
	}
	// Bare-JID fallback: pick any resource.
	for _, p := range sb.peers {
		if p.JID().BareEquals(target) {
			return p, nil
		}
	}
	return nil, ErrNoRoute
}
