package session

import (
	"strconv"
	"time"

	"github.com/pion/logging"
	"github.com/pion/randutil"

	"github.com/peertalk/peertalk/signaling"
	"github.com/peertalk/peertalk/threading"
	"github.com/peertalk/peertalk/transport"
	"github.com/peertalk/peertalk/xmpp"
)

// DefaultSessionTimeout bounds how long a session's transports may stay
// unwritable before the session errors out.
const DefaultSessionTimeout = 50 * time.Second

// ManagerConfig carries the knobs of a Manager. Zero values select the
// defaults.
type ManagerConfig struct {
	// SessionTimeout overrides DefaultSessionTimeout.
	SessionTimeout time.Duration
	// TransportType is the transport namespace negotiated for new
	// sessions. Defaults to the legacy P2P namespace.
	TransportType string
	// ChannelFactory builds the channel implementations behind every
	// transport. Defaults to in-process loopback channels.
	ChannelFactory transport.ChannelFactory
	// LoggerFactory defaults to logging.NewDefaultLoggerFactory.
	LoggerFactory logging.LoggerFactory
}

// ManagerCallbacks are the manager's notifications toward the surrounding
// connection code. All fire on the signaling loop.
type ManagerCallbacks struct {
	// OnOutgoingMessage hands a finished stanza to the wire. The stanza's
	// from attribute is left for the connection layer to fill in.
	OnOutgoingMessage func(*xmpp.Element)
	// OnRequestSignaling asks for OnSignalingReady to be called once the
	// signaling channel is known writable.
	OnRequestSignaling func()
	OnSessionCreate    func(*Session)
	OnSessionDestroy   func(*Session)
}

// Manager routes session stanzas to sessions and owns their lifecycle. All
// methods must be called on the signaling loop.
type Manager struct {
	signaling *threading.Thread
	worker    *threading.Thread
	lf        logging.LoggerFactory
	log       logging.LeveledLogger

	sessionTimeout time.Duration
	transportType  string
	channelFactory transport.ChannelFactory

	clients  map[string]Client
	sessions map[string]*Session

	callbacks ManagerCallbacks
}

// NewManager builds a manager on the given signaling and worker loops. The
// two may be the same thread.
func NewManager(signalingThread, workerThread *threading.Thread, cfg ManagerConfig) *Manager {
	if cfg.SessionTimeout == 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	if cfg.TransportType == "" {
		cfg.TransportType = xmpp.NSGingleP2P
	}
	if cfg.ChannelFactory == nil {
		cfg.ChannelFactory = func(content string, component int) transport.ChannelImpl {
			return transport.NewLoopbackChannel(content, component)
		}
	}
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &Manager{
		signaling:      signalingThread,
		worker:         workerThread,
		lf:             cfg.LoggerFactory,
		log:            cfg.LoggerFactory.NewLogger("sessionmgr"),
		sessionTimeout: cfg.SessionTimeout,
		transportType:  cfg.TransportType,
		channelFactory: cfg.ChannelFactory,
		clients:        make(map[string]Client),
		sessions:       make(map[string]*Session),
	}
}

func (m *Manager) SetCallbacks(cb ManagerCallbacks) { m.callbacks = cb }

func (m *Manager) SessionTimeout() time.Duration { return m.sessionTimeout }

// AddClient registers the client for a content type. Later registrations
// replace earlier ones.
func (m *Manager) AddClient(contentType string, client Client) {
	m.clients[contentType] = client
}

func (m *Manager) RemoveClient(contentType string) {
	delete(m.clients, contentType)
}

func (m *Manager) GetClient(contentType string) Client {
	return m.clients[contentType]
}

// CreateSession starts a new outgoing session owned by localName. The
// caller drives it with Initiate.
func (m *Manager) CreateSession(localName, contentType string) (*Session, error) {
	sid, err := newSessionID()
	if err != nil {
		return nil, err
	}
	return m.createSession(localName, localName, sid, contentType, false)
}

// CreateSessionWithID is CreateSession with a caller-chosen session id.
func (m *Manager) CreateSessionWithID(localName, sid, contentType string) (*Session, error) {
	return m.createSession(localName, localName, sid, contentType, false)
}

func (m *Manager) createSession(localName, initiatorName, sid, contentType string, received bool) (*Session, error) {
	client := m.clients[contentType]
	s, err := newSession(m, localName, initiatorName, sid, contentType, client)
	if err != nil {
		return nil, err
	}
	m.sessions[sid] = s
	if m.callbacks.OnSessionCreate != nil {
		m.callbacks.OnSessionCreate(s)
	}
	if client != nil {
		client.OnSessionCreate(s, received)
	}
	return s, nil
}

// DestroySession drops the session and tears down its transports.
func (m *Manager) DestroySession(s *Session) {
	if _, ok := m.sessions[s.sid]; !ok {
		return
	}
	delete(m.sessions, s.sid)
	if m.callbacks.OnSessionDestroy != nil {
		m.callbacks.OnSessionDestroy(s)
	}
	if s.client != nil {
		s.client.OnSessionDestroy(s)
	}
	m.signaling.Clear(s.timeoutTag)
	m.signaling.Clear(s.stateTag)
	m.signaling.Clear(s.errorTag)
	for _, proxy := range s.transportProxies() {
		// Transport notifications queue under the transport pointer; a
		// queued one must not run against a destroyed session and re-arm
		// its timers.
		m.signaling.Clear(proxy.transport)
		proxy.transport.DestroyAllChannels()
	}
}

// TerminateAll ends every live session.
func (m *Manager) TerminateAll() {
	for _, s := range m.sessionList() {
		if err := s.Terminate(); err != nil {
			// Already rejected or terminated; just drop it.
			m.DestroySession(s)
		}
	}
}

func (m *Manager) sessionList() []*Session {
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// FindSession returns the session with sid whose remote is remoteName.
func (m *Manager) FindSession(sid, remoteName string) *Session {
	s := m.sessions[sid]
	if s == nil || !xmpp.JIDsEqual(remoteName, s.remoteName) {
		return nil
	}
	return s
}

// IsSessionMessage reports whether stanza is a session iq this manager
// should be fed.
func (m *Manager) IsSessionMessage(stanza *xmpp.Element) bool {
	return signaling.IsSessionMessage(stanza)
}

// OnIncomingMessage routes one inbound session stanza. Unroutable stanzas
// get an error reply.
func (m *Manager) OnIncomingMessage(stanza *xmpp.Element) {
	msg, err := signaling.ParseSessionMessage(stanza)
	if err != nil {
		condition, text := conditionOf(err)
		m.sendErrorMessage(stanza, condition, "modify", text, nil)
		return
	}

	if s := m.FindSession(msg.SID, msg.From); s != nil {
		s.onIncomingMessage(msg)
		return
	}
	if msg.Type != signaling.ActionSessionInitiate {
		m.sendErrorMessage(stanza, xmpp.QNStanzaBadRequest, "modify", "unknown session", nil)
		return
	}

	contentType, err := signaling.ParseContentType(msg.Protocol, msg.ActionElem)
	if err != nil {
		condition, text := conditionOf(err)
		m.sendErrorMessage(stanza, condition, "modify", text, nil)
		return
	}
	if m.clients[contentType] == nil {
		m.sendErrorMessage(stanza, xmpp.QNStanzaBadRequest, "modify", "unknown content type: "+contentType, nil)
		return
	}

	s, err := m.createSession(msg.To, msg.Initiator, msg.SID, contentType, true)
	if err != nil {
		m.log.Errorf("could not create incoming session: %v", err)
		return
	}
	s.onIncomingMessage(msg)
}

// OnIncomingResponse matches an iq result to the session that sent the
// original stanza.
func (m *Manager) OnIncomingResponse(origStanza, responseStanza *xmpp.Element) {
	if origStanza == nil || responseStanza == nil {
		return
	}
	msg, err := signaling.ParseSessionMessage(origStanza)
	if err != nil {
		return
	}
	// Ack from attrs can be missing; fall back to where we sent it.
	remote := responseStanza.Attr(xmpp.QNFrom)
	if remote == "" {
		remote = msg.To
	}
	if s := m.FindSession(msg.SID, remote); s != nil {
		s.onIncomingResponse(msg)
	}
}

// OnFailedSend reports an error response, or a send the connection layer
// gave up on (errorStanza nil).
func (m *Manager) OnFailedSend(origStanza, errorStanza *xmpp.Element) {
	msg, err := signaling.ParseSessionMessage(origStanza)
	if err != nil {
		return
	}
	s := m.FindSession(msg.SID, msg.To)
	if s == nil {
		return
	}
	if errorStanza == nil {
		// Synthesize what a server would have said about an unreachable
		// recipient.
		errorStanza = origStanza.Clone()
		errorStanza.SetAttr(xmpp.QNType, "error")
		errElem := xmpp.NewElement(xmpp.QNError)
		errElem.SetAttr(xmpp.QNType, "cancel")
		errElem.AddElement(xmpp.NewElement(xmpp.QNStanzaItemNotFound))
		errElem.SetBodyText("Recipient did not respond")
		errorStanza.AddElement(errElem)
	}
	s.onFailedSend(origStanza, errorStanza)
}

// OnSignalingReady reports a writable signaling channel to every session.
func (m *Manager) OnSignalingReady() {
	for _, s := range m.sessionList() {
		s.OnSignalingReady()
	}
}

func (m *Manager) onRequestSignaling(*Session) {
	if m.callbacks.OnRequestSignaling != nil {
		m.callbacks.OnRequestSignaling()
	}
}

func (m *Manager) sendErrorMessage(stanza *xmpp.Element, condition xmpp.QName, errType, text string, extra *xmpp.Element) {
	m.emit(xmpp.NewErrorStanza(stanza, condition, errType, text, extra))
}

func (m *Manager) emit(stanza *xmpp.Element) {
	if m.callbacks.OnOutgoingMessage != nil {
		m.callbacks.OnOutgoingMessage(stanza)
	}
}

func newSessionID() (string, error) {
	n, err := randutil.CryptoUint64()
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(n, 10), nil
}
