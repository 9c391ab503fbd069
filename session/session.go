package session

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/peertalk/peertalk/signaling"
	"github.com/peertalk/peertalk/transport"
	"github.com/peertalk/peertalk/xmpp"
)

var (
	errWrongState           = errors.New("session: operation not allowed in current state")
	errNoSupportedTransport = errors.New("session: no supported transport in offer")
	errRedirectForeignJid   = errors.New("session: redirection not allowed: must be the same bare jid")
)

// Callbacks are the session's notifications toward its owner. All fire on
// the signaling loop.
type Callbacks struct {
	OnState                   func(*Session, State)
	OnError                   func(*Session, Error, string)
	OnInfoMessage             func(*Session, *xmpp.Element)
	OnReceivedTerminateReason func(*Session, string)
	OnRemoteDescriptionUpdate func(*Session, []signaling.ContentInfo)
}

// Session is one signalling session between a local and a remote JID. All
// methods must be called on the manager's signaling loop.
type Session struct {
	manager *Manager
	client  Client
	log     logging.LeveledLogger

	sid           string
	contentType   string
	localName     string
	initiatorName string
	remoteName    string
	initiator     bool

	state   State
	err     Error
	errDesc string

	localDesc  *Description
	remoteDesc *Description

	proxies    map[string]*TransportProxy
	proxyOrder []string

	transportParser signaling.TransportParser

	iceTiebreaker   uint64
	roleSwitch      bool
	initiateAcked   bool
	currentProtocol signaling.Protocol

	callbacks Callbacks

	// Distinct tags so clearing the timeout never drops state posts.
	timeoutTag *int
	stateTag   *int
	errorTag   *int
}

func newSession(manager *Manager, localName, initiatorName, sid, contentType string, client Client) (*Session, error) {
	tiebreaker, err := transport.NewTiebreaker()
	if err != nil {
		return nil, err
	}
	return &Session{
		manager:         manager,
		client:          client,
		log:             manager.lf.NewLogger("session"),
		sid:             sid,
		contentType:     contentType,
		localName:       localName,
		initiatorName:   initiatorName,
		initiator:       localName == initiatorName,
		proxies:         make(map[string]*TransportProxy),
		transportParser: signaling.P2PTransportParser{},
		iceTiebreaker:   tiebreaker,
		currentProtocol: signaling.ProtocolHybrid,
		timeoutTag:      new(int),
		stateTag:        new(int),
		errorTag:        new(int),
	}, nil
}

func (s *Session) ID() string            { return s.sid }
func (s *Session) ContentType() string   { return s.contentType }
func (s *Session) LocalName() string     { return s.localName }
func (s *Session) InitiatorName() string { return s.initiatorName }
func (s *Session) RemoteName() string    { return s.remoteName }
func (s *Session) Initiator() bool       { return s.initiator }
func (s *Session) State() State          { return s.state }
func (s *Session) Err() (Error, string)  { return s.err, s.errDesc }

func (s *Session) LocalDescription() *Description  { return s.localDesc }
func (s *Session) RemoteDescription() *Description { return s.remoteDesc }

// InitiatorDescription is the offer: local for the initiator, remote for the
// responder.
func (s *Session) InitiatorDescription() *Description {
	if s.initiator {
		return s.localDesc
	}
	return s.remoteDesc
}

func (s *Session) SetCallbacks(cb Callbacks) { s.callbacks = cb }

func (s *Session) transportType() string { return s.manager.transportType }

// Initiate sends the offer to to. Allowed only in the initial state.
func (s *Session) Initiate(to string, desc *Description) error {
	if s.state != StateInit {
		return errWrongState
	}

	s.remoteName = to
	s.localDesc = desc
	if _, err := desc.WithTransports(s.transportType()); err != nil {
		return err
	}
	if err := s.createTransportProxies(s.getEmptyTransportInfos(desc.Contents)); err != nil {
		s.log.Errorf("could not create transports: %v", err)
		return err
	}

	if err := s.sendInitiateMessage(desc); err != nil {
		s.log.Errorf("could not send initiate message: %v", err)
		return err
	}

	// Connect transports now so transport descriptions flow while the
	// offer is in flight.
	s.speculativelyConnectAllTransportChannels()

	s.pushdownTransportDescription(transport.SourceLocal, transport.ActionOffer)
	s.setState(StateSentInitiate)
	return nil
}

// Accept answers a received offer.
func (s *Session) Accept(desc *Description) error {
	if s.state != StateReceivedInitiate {
		return errWrongState
	}

	s.localDesc = desc
	if _, err := desc.WithTransports(s.transportType()); err != nil {
		return err
	}
	if err := s.sendAcceptMessage(desc); err != nil {
		s.log.Errorf("could not send accept message: %v", err)
		return err
	}
	s.pushdownTransportDescription(transport.SourceLocal, transport.ActionAnswer)
	s.maybeEnableMuxingSupport()
	s.speculativelyConnectAllTransportChannels()
	s.setState(StateSentAccept)
	return nil
}

// Reject declines a received offer or modify.
func (s *Session) Reject(reason string) error {
	if s.state != StateReceivedInitiate && s.state != StateReceivedModify {
		return errWrongState
	}
	if err := s.sendRejectMessage(reason); err != nil {
		s.log.Errorf("could not send reject message: %v", err)
		return err
	}
	s.setState(StateSentReject)
	return nil
}

// Terminate ends the session with the default reason.
func (s *Session) Terminate() error {
	return s.TerminateWithReason(signaling.TerminateSuccess)
}

// TerminateWithReason ends the session. After a reject in either direction
// the terminate is implicit and no message is sent.
func (s *Session) TerminateWithReason(reason string) error {
	switch s.state {
	case StateSentTerminate, StateReceivedTerminate:
		return errWrongState
	case StateSentReject, StateReceivedReject:
		// Terminate is implicit after a reject.
	default:
		if err := s.sendTerminateMessage(reason); err != nil {
			s.log.Errorf("could not send terminate message: %v", err)
			return err
		}
	}
	s.setState(StateSentTerminate)
	return nil
}

// SendInfoMessage sends a session-info payload to remoteName.
func (s *Session) SendInfoMessage(elems []*xmpp.Element, remoteName string) error {
	return s.sendMessageTo(signaling.ActionSessionInfo, elems, remoteName)
}

// SendDescriptionInfoMessage sends a content update for an established
// session.
func (s *Session) SendDescriptionInfoMessage(contents []signaling.ContentInfo) error {
	elems, err := s.writeActionElems(func(protocol signaling.Protocol) ([]*xmpp.Element, error) {
		return signaling.WriteDescriptionInfo(protocol, contents, s.contentParsers())
	})
	if err != nil {
		s.log.Errorf("could not write description info message: %v", err)
		return err
	}
	return s.emitActionStanza(signaling.ActionDescriptionInfo, elems)
}

// CreateChannel returns the channel for component of contentName, naming it
// channelName on the legacy wire.
func (s *Session) CreateChannel(contentName, channelName string, component int) transport.Channel {
	proxy := s.getOrCreateTransportProxy(contentName)
	return proxy.CreateChannel(channelName, component)
}

func (s *Session) GetChannel(contentName string, component int) transport.Channel {
	if proxy := s.proxies[contentName]; proxy != nil {
		return proxy.GetChannel(component)
	}
	return nil
}

func (s *Session) DestroyChannel(contentName string, component int) {
	if proxy := s.proxies[contentName]; proxy != nil {
		proxy.DestroyChannel(component)
	}
}

func (s *Session) GetTransportProxy(contentName string) *TransportProxy {
	return s.proxies[contentName]
}

func (s *Session) transportProxies() []*TransportProxy {
	out := make([]*TransportProxy, 0, len(s.proxyOrder))
	for _, name := range s.proxyOrder {
		out = append(out, s.proxies[name])
	}
	return out
}

func (s *Session) getOrCreateTransportProxy(contentName string) *TransportProxy {
	if proxy, ok := s.proxies[contentName]; ok {
		return proxy
	}

	t := transport.New(s.manager.signaling, s.manager.worker, contentName,
		s.transportType(), s.manager.channelFactory, s.manager.lf)
	t.SetCallbacks(transport.Callbacks{
		Connecting:               s.onTransportConnecting,
		WritableState:            s.onTransportWritableState,
		ReadableState:            s.onTransportReadableState,
		RequestSignaling:         s.onTransportRequestSignaling,
		CandidatesReady:          s.onTransportCandidatesReady,
		CandidatesAllocationDone: s.onTransportCandidatesAllocationDone,
		RoleConflict:             s.onRoleConflict,
	})
	if s.initiator {
		t.SetIceRole(transport.RoleControlling)
	} else {
		t.SetIceRole(transport.RoleControlled)
	}
	t.SetIceTiebreaker(s.iceTiebreaker)

	proxy := newTransportProxy(s.sid, contentName, t)
	s.proxies[contentName] = proxy
	s.proxyOrder = append(s.proxyOrder, contentName)
	return proxy
}

func (s *Session) findProxyForTransport(t *transport.Transport) *TransportProxy {
	for _, proxy := range s.proxies {
		if proxy.transport == t {
			return proxy
		}
	}
	return nil
}

func (s *Session) getEmptyTransportInfos(contents []signaling.ContentInfo) []signaling.TransportInfo {
	tinfos := make([]signaling.TransportInfo, 0, len(contents))
	for _, content := range contents {
		tinfos = append(tinfos, signaling.TransportInfo{
			ContentName: content.Name,
			Description: transport.Description{TransportType: s.transportType()},
		})
	}
	return tinfos
}

func (s *Session) createTransportProxies(tinfos []signaling.TransportInfo) error {
	for _, tinfo := range tinfos {
		if tinfo.Description.TransportType != s.transportType() {
			return errNoSupportedTransport
		}
		s.getOrCreateTransportProxy(tinfo.ContentName)
	}
	return nil
}

func (s *Session) speculativelyConnectAllTransportChannels() {
	for _, proxy := range s.transportProxies() {
		proxy.ConnectChannels()
	}
}

// OnSignalingReady tells every transport the signaling channel is writable.
func (s *Session) OnSignalingReady() {
	for _, proxy := range s.transportProxies() {
		proxy.transport.OnSignalingReady()
	}
}

// pushdownTransportDescription applies one side's transport infos to the
// matching proxies.
func (s *Session) pushdownTransportDescription(source transport.ContentSource, action transport.ContentAction) {
	desc := s.localDesc
	if source == transport.SourceRemote {
		desc = s.remoteDesc
	}
	if desc == nil {
		return
	}
	for i := range desc.Transports {
		tinfo := &desc.Transports[i]
		proxy := s.proxies[tinfo.ContentName]
		if proxy == nil {
			continue
		}
		var err error
		if source == transport.SourceLocal {
			err = proxy.SetLocalDescription(&tinfo.Description, action)
		} else {
			err = proxy.SetRemoteDescription(&tinfo.Description, action)
		}
		if err != nil {
			s.log.Errorf("transport description for %s rejected: %v", tinfo.ContentName, err)
			s.setError(ErrorTransport, err.Error())
			return
		}
	}
}

// maybeEnableMuxingSupport bundles transports when both sides grouped their
// contents. The first content of the local group carries the others.
func (s *Session) maybeEnableMuxingSupport() {
	if s.localDesc == nil || s.remoteDesc == nil {
		return
	}
	localGroup := s.localDesc.GetGroupByName(signaling.GroupTypeBundle)
	remoteGroup := s.remoteDesc.GetGroupByName(signaling.GroupTypeBundle)
	if localGroup == nil || remoteGroup == nil || len(localGroup.ContentNames) == 0 {
		return
	}
	s.setSelectedProxy(localGroup.ContentNames[0], localGroup)
}

func (s *Session) setSelectedProxy(contentName string, group *signaling.ContentGroup) {
	selected := s.proxies[contentName]
	if selected == nil {
		return
	}
	for _, proxy := range s.transportProxies() {
		if proxy != selected && group.HasContent(proxy.contentName) {
			proxy.SetupMux(selected)
		}
	}
}

// state handling

func (s *Session) setState(state State) {
	if state == s.state {
		return
	}
	s.state = state
	if s.callbacks.OnState != nil {
		s.callbacks.OnState(s, state)
	}
	s.manager.signaling.Post(s.stateTag, s.onStateMessage)
}

func (s *Session) onStateMessage() {
	orig := s.state

	switch s.state {
	case StateSentAccept, StateReceivedAccept:
		s.setState(StateInProgress)
	}

	switch orig {
	case StateSentReject, StateReceivedReject:
		// Assume clean termination.
		_ = s.Terminate()
	case StateSentTerminate, StateReceivedTerminate:
		s.manager.DestroySession(s)
	}
}

func (s *Session) setError(err Error, desc string) {
	if err == s.err && err != ErrorNone {
		return
	}
	s.err = err
	s.errDesc = desc
	if s.callbacks.OnError != nil {
		s.callbacks.OnError(s, err, desc)
	}
	if err != ErrorNone {
		s.manager.signaling.Post(s.errorTag, func() {
			_ = s.TerminateWithReason(signaling.TerminateError)
		})
	}
}

// transport callbacks (signaling loop)

func (s *Session) onTransportConnecting(t *transport.Transport) {
	// Start watching writability as soon as the transport begins work.
	s.onTransportWritableState(t)
}

// onTransportWritableState arms the session timeout whenever a transport
// with channels is not writable, and disarms it when writability returns.
// Writability can flap repeatedly over a session's lifetime.
func (s *Session) onTransportWritableState(t *transport.Transport) {
	s.manager.signaling.Clear(s.timeoutTag)
	if t.HasChannels() && !t.Writable() {
		s.manager.signaling.PostDelayed(s.timeoutTag, s.manager.sessionTimeout, func() {
			s.setError(ErrorTime, "transport never became writable")
		})
	}
}

func (s *Session) onTransportReadableState(*transport.Transport) {}

func (s *Session) onTransportRequestSignaling(t *transport.Transport) {
	if proxy := s.findProxyForTransport(t); proxy != nil {
		// The transport restarted gathering; its allocation is no longer
		// complete.
		proxy.SetCandidatesAllocated(false)
	}
	s.manager.onRequestSignaling(s)
}

func (s *Session) onTransportCandidatesAllocationDone(t *transport.Transport) {
	if proxy := s.findProxyForTransport(t); proxy != nil {
		proxy.SetCandidatesAllocated(true)
	}
}

// onRoleConflict reverses every transport's role, once.
func (s *Session) onRoleConflict(*transport.Transport) {
	if s.roleSwitch {
		return
	}
	s.roleSwitch = true
	role := transport.RoleControlling
	if s.initiator {
		role = transport.RoleControlled
	}
	for _, proxy := range s.transportProxies() {
		proxy.transport.SetIceRole(role)
	}
}

// onTransportCandidatesReady forwards gathered candidates to the remote
// side. The initiator buffers them until the initiate is acked, since
// servers may reorder a transport-info ahead of the initiate.
func (s *Session) onTransportCandidatesReady(t *transport.Transport, candidates []transport.Candidate) {
	proxy := s.findProxyForTransport(t)
	if proxy == nil {
		return
	}
	if s.initiator && !s.initiateAcked {
		proxy.AddUnsentCandidates(candidates)
		return
	}
	if !proxy.Negotiated() {
		proxy.AddSentCandidates(candidates)
	}
	if err := s.sendTransportInfoMessage(proxy, candidates); err != nil {
		s.log.Errorf("could not send transport info message: %v", err)
	}
}

// incoming messages (called by the manager)

func (s *Session) onIncomingMessage(msg *signaling.SessionMessage) {
	// The first inbound message pins the dialect for the rest of the
	// session. A hybrid stanza counts as Jingle.
	if s.currentProtocol == signaling.ProtocolHybrid {
		if msg.Protocol == signaling.ProtocolGingle {
			s.currentProtocol = signaling.ProtocolGingle
		} else {
			s.currentProtocol = signaling.ProtocolJingle
		}
	}

	var err error
	switch msg.Type {
	case signaling.ActionSessionInitiate:
		err = s.onInitiateMessage(msg)
	case signaling.ActionSessionInfo:
		err = s.onInfoMessage(msg)
	case signaling.ActionSessionAccept:
		err = s.onAcceptMessage(msg)
	case signaling.ActionSessionReject:
		err = s.onRejectMessage(msg)
	case signaling.ActionSessionTerminate:
		err = s.onTerminateMessage(msg)
	case signaling.ActionTransportInfo:
		err = s.onTransportInfoMessage(msg)
	case signaling.ActionTransportAccept:
		err = s.onTransportAcceptMessage(msg)
	case signaling.ActionDescriptionInfo:
		err = s.onDescriptionInfoMessage(msg)
	default:
		err = xmpp.BadRequest("unknown session message type")
	}

	if err == nil {
		s.sendAcknowledgement(msg.Stanza)
		return
	}
	condition, text := conditionOf(err)
	s.manager.sendErrorMessage(msg.Stanza, condition, "modify", text, nil)
}

func conditionOf(err error) (xmpp.QName, string) {
	var se *xmpp.StanzaError
	if errors.As(err, &se) {
		return se.Condition, se.Text
	}
	return xmpp.QNStanzaBadRequest, err.Error()
}

// onIncomingResponse handles the iq result for a message we sent.
func (s *Session) onIncomingResponse(msg *signaling.SessionMessage) {
	if msg.Type == signaling.ActionSessionInitiate {
		s.onInitiateAcked()
	}
}

func (s *Session) onInitiateAcked() {
	// Candidates are held until the initiate is acked to survive server
	// reordering.
	if s.initiateAcked {
		return
	}
	s.initiateAcked = true
	if err := s.sendAllUnsentTransportInfoMessages(); err != nil {
		s.log.Errorf("could not send unsent transport info messages: %v", err)
	}
}

// onFailedSend handles an error response (or synthesized delivery failure)
// for a stanza we sent.
func (s *Session) onFailedSend(origStanza, errorStanza *xmpp.Element) {
	msg, err := signaling.ParseSessionMessage(origStanza)
	if err != nil {
		s.log.Errorf("error parsing failed send: %v", err)
		return
	}

	if redirect, ok := signaling.FindSessionRedirect(errorStanza); ok {
		if err := s.onRedirectError(redirect); err != nil {
			desc := fmt.Sprintf("failed to redirect: %v", err)
			s.log.Errorf("%s", desc)
			s.setError(ErrorResponse, desc)
		}
		return
	}

	errElem := errorStanza.FirstNamed(xmpp.QNError)
	if errElem == nil {
		s.log.Errorf("session error without error element, ignoring")
		return
	}
	errType := errElem.Attr(xmpp.QNType)
	s.log.Errorf("session error %s in response to %s", errElem.String(), msg.Type)

	if msg.Type == signaling.ActionTransportInfo {
		// Transport messages often fail right when the network does. If
		// writability never returns the timeout terminates us anyway.
		return
	}
	if errType != "continue" && errType != "wait" {
		s.setError(ErrorResponse, "")
	}
}

func (s *Session) onRedirectError(redirect signaling.SessionRedirect) error {
	if err := s.checkState(StateSentInitiate); err != nil {
		return err
	}
	if !xmpp.BareJIDsEqual(s.remoteName, redirect.Target) {
		return errRedirectForeignJid
	}

	// Point the session at the new JID and replay the offer and the
	// candidates already sent.
	s.remoteName = redirect.Target
	if err := s.sendInitiateMessage(s.localDesc); err != nil {
		return err
	}
	return s.resendAllTransportInfoMessages()
}

func (s *Session) checkState(expected State) error {
	if s.state != expected {
		// Servers may deliver messages out of order or repeatedly, for
		// example when an iq response is lost and the stanza resent.
		return &xmpp.StanzaError{
			Condition: xmpp.QNStanzaNotAllowed,
			Type:      "modify",
			Text:      "message not allowed in current state",
		}
	}
	return nil
}

func (s *Session) onInitiateMessage(msg *signaling.SessionMessage) error {
	if err := s.checkState(StateInit); err != nil {
		return err
	}

	init, err := signaling.ParseSessionInitiate(msg.Protocol, msg.ActionElem,
		s.contentParsers(), s.transportParsers(), s.candidateTranslators())
	if err != nil {
		return err
	}

	if err := s.createTransportProxies(init.Transports); err != nil {
		return &xmpp.StanzaError{
			Condition: xmpp.QNStanzaNotAcceptable,
			Type:      "modify",
			Text:      err.Error(),
		}
	}

	s.remoteName = msg.From
	s.initiatorName = msg.Initiator
	s.remoteDesc = &Description{
		Contents:   init.Contents,
		Transports: init.Transports,
		Groups:     init.Groups,
	}
	s.pushdownTransportDescription(transport.SourceRemote, transport.ActionOffer)
	s.setState(StateReceivedInitiate)

	// A state listener may have called Reject synchronously.
	if s.state != StateSentReject {
		if err := s.onRemoteCandidates(init.Transports); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) onAcceptMessage(msg *signaling.SessionMessage) error {
	if err := s.checkState(StateSentInitiate); err != nil {
		return err
	}

	accept, err := signaling.ParseSessionAccept(msg.Protocol, msg.ActionElem,
		s.contentParsers(), s.transportParsers(), s.candidateTranslators())
	if err != nil {
		return err
	}

	// An accept implies the initiate arrived, whether or not we saw the
	// iq response.
	s.onInitiateAcked()

	s.remoteDesc = &Description{
		Contents:   accept.Contents,
		Transports: accept.Transports,
		Groups:     accept.Groups,
	}
	s.pushdownTransportDescription(transport.SourceRemote, transport.ActionAnswer)
	s.maybeEnableMuxingSupport()
	s.setState(StateReceivedAccept)

	return s.onRemoteCandidates(accept.Transports)
}

func (s *Session) onRejectMessage(msg *signaling.SessionMessage) error {
	if err := s.checkState(StateSentInitiate); err != nil {
		return err
	}
	s.setState(StateReceivedReject)
	return nil
}

func (s *Session) onInfoMessage(msg *signaling.SessionMessage) error {
	if s.callbacks.OnInfoMessage != nil {
		s.callbacks.OnInfoMessage(s, msg.ActionElem)
	}
	return nil
}

func (s *Session) onTerminateMessage(msg *signaling.SessionMessage) error {
	term, err := signaling.ParseSessionTerminate(msg.Protocol, msg.ActionElem)
	if err != nil {
		return err
	}
	if s.callbacks.OnReceivedTerminateReason != nil {
		s.callbacks.OnReceivedTerminateReason(s, term.Reason)
	}
	if term.DebugReason != "" {
		s.log.Debugf("received error on call: %s", term.DebugReason)
	}
	s.setState(StateReceivedTerminate)
	return nil
}

func (s *Session) onTransportInfoMessage(msg *signaling.SessionMessage) error {
	var contents []signaling.ContentInfo
	if desc := s.InitiatorDescription(); desc != nil {
		contents = desc.Contents
	}
	tinfos, err := signaling.ParseTransportInfos(msg.Protocol, msg.ActionElem,
		contents, s.transportParsers(), s.candidateTranslators())
	if err != nil {
		return err
	}
	return s.onRemoteCandidates(tinfos)
}

func (s *Session) onTransportAcceptMessage(*signaling.SessionMessage) error {
	// Only here for compatibility with legacy Gingle clients.
	return nil
}

func (s *Session) onDescriptionInfoMessage(msg *signaling.SessionMessage) error {
	if err := s.checkState(StateInProgress); err != nil {
		return err
	}
	info, err := signaling.ParseDescriptionInfo(msg.Protocol, msg.ActionElem,
		s.contentParsers(), s.transportParsers(), s.candidateTranslators())
	if err != nil {
		return err
	}
	// Partial updates cannot be merged into the remote description;
	// listeners deal with the delta themselves.
	if s.callbacks.OnRemoteDescriptionUpdate != nil {
		s.callbacks.OnRemoteDescriptionUpdate(s, info.Contents)
	}
	return nil
}

func (s *Session) onRemoteCandidates(tinfos []signaling.TransportInfo) error {
	for i := range tinfos {
		proxy := s.proxies[tinfos[i].ContentName]
		if proxy == nil {
			return xmpp.BadRequest("candidates for unknown content: " + tinfos[i].ContentName)
		}
		if err := proxy.OnRemoteCandidates(tinfos[i].Description.Candidates); err != nil {
			return xmpp.BadRequest(err.Error())
		}
	}
	return nil
}

// parsers

func (s *Session) contentParsers() signaling.ContentParsers {
	return signaling.ContentParsers{s.contentType: s.client}
}

func (s *Session) transportParsers() signaling.TransportParsers {
	return signaling.TransportParsers{s.transportType(): s.transportParser}
}

// candidateTranslators exposes every proxy under its content name. Gingle
// candidates in a fresh initiate cannot be translated because channels do
// not exist yet; initiates carry no candidates, so parsing tolerates it.
func (s *Session) candidateTranslators() signaling.CandidateTranslators {
	translators := make(signaling.CandidateTranslators, len(s.proxies))
	for name, proxy := range s.proxies {
		translators[name] = proxy
	}
	return translators
}

// outgoing messages

func (s *Session) sendInitiateMessage(desc *Description) error {
	elems, err := s.writeActionElems(func(protocol signaling.Protocol) ([]*xmpp.Element, error) {
		return signaling.WriteSessionInitiate(protocol, desc.Contents,
			s.getEmptyTransportInfos(desc.Contents),
			s.contentParsers(), s.transportParsers(), s.candidateTranslators(),
			desc.Groups)
	})
	if err != nil {
		return err
	}
	return s.emitActionStanza(signaling.ActionSessionInitiate, elems)
}

func (s *Session) sendAcceptMessage(desc *Description) error {
	elems, err := s.writeActionElems(func(protocol signaling.Protocol) ([]*xmpp.Element, error) {
		return signaling.WriteSessionAccept(protocol, desc.Contents,
			s.getEmptyTransportInfos(desc.Contents),
			s.contentParsers(), s.transportParsers(), s.candidateTranslators(),
			desc.Groups)
	})
	if err != nil {
		return err
	}
	return s.emitActionStanza(signaling.ActionSessionAccept, elems)
}

func (s *Session) sendRejectMessage(reason string) error {
	return s.sendTerminateLike(signaling.ActionSessionReject, reason)
}

func (s *Session) sendTerminateMessage(reason string) error {
	return s.sendTerminateLike(signaling.ActionSessionTerminate, reason)
}

func (s *Session) sendTerminateLike(action signaling.ActionType, reason string) error {
	elems, err := s.writeActionElems(func(protocol signaling.Protocol) ([]*xmpp.Element, error) {
		return signaling.WriteSessionTerminate(protocol, signaling.SessionTerminate{Reason: reason}), nil
	})
	if err != nil {
		return err
	}
	return s.emitActionStanza(action, elems)
}

func (s *Session) sendTransportInfoMessage(proxy *TransportProxy, candidates []transport.Candidate) error {
	tinfo := signaling.TransportInfo{
		ContentName: proxy.contentName,
		Description: transport.Description{
			TransportType: proxy.Type(),
			IceMode:       transport.IceModeFull,
			Candidates:    candidates,
		},
	}
	return s.sendTransportInfo(tinfo)
}

func (s *Session) sendTransportInfo(tinfo signaling.TransportInfo) error {
	elems, err := s.writeActionElems(func(protocol signaling.Protocol) ([]*xmpp.Element, error) {
		return signaling.WriteTransportInfos(protocol, []signaling.TransportInfo{tinfo},
			s.transportParsers(), s.candidateTranslators())
	})
	if err != nil {
		return err
	}
	return s.emitActionStanza(signaling.ActionTransportInfo, elems)
}

// resendAllTransportInfoMessages replays already-sent candidates, after a
// redirect.
func (s *Session) resendAllTransportInfoMessages() error {
	for _, proxy := range s.transportProxies() {
		if len(proxy.SentCandidates()) == 0 {
			continue
		}
		if err := s.sendTransportInfoMessage(proxy, proxy.SentCandidates()); err != nil {
			s.log.Errorf("could not resend transport info messages: %v", err)
			return err
		}
		proxy.ClearSentCandidates()
	}
	return nil
}

// sendAllUnsentTransportInfoMessages flushes candidates held for the
// initiate ack.
func (s *Session) sendAllUnsentTransportInfoMessages() error {
	for _, proxy := range s.transportProxies() {
		if len(proxy.UnsentCandidates()) == 0 {
			continue
		}
		if err := s.sendTransportInfoMessage(proxy, proxy.UnsentCandidates()); err != nil {
			return err
		}
		proxy.ClearUnsentCandidates()
	}
	return nil
}

// writeActionElems writes the action payload per dialect. Hybrid senders
// produce both payloads; the pairs are kept separate so each lands in its
// own wrapper element.
type actionElems struct {
	protocol signaling.Protocol
	elems    []*xmpp.Element
}

func (s *Session) writeActionElems(write func(signaling.Protocol) ([]*xmpp.Element, error)) ([]actionElems, error) {
	protocols := []signaling.Protocol{s.currentProtocol}
	if s.currentProtocol == signaling.ProtocolHybrid {
		protocols = []signaling.Protocol{signaling.ProtocolJingle, signaling.ProtocolGingle}
	}
	out := make([]actionElems, 0, len(protocols))
	for _, protocol := range protocols {
		elems, err := write(protocol)
		if err != nil {
			return nil, err
		}
		out = append(out, actionElems{protocol: protocol, elems: elems})
	}
	return out, nil
}

func (s *Session) emitActionStanza(action signaling.ActionType, payloads []actionElems) error {
	return s.emitActionStanzaTo(action, payloads, s.remoteName)
}

func (s *Session) emitActionStanzaTo(action signaling.ActionType, payloads []actionElems, remoteName string) error {
	stanza := xmpp.NewIQ("set", remoteName, uuid.NewString())
	for _, payload := range payloads {
		msg := signaling.NewSessionMessage(payload.protocol, action, s.sid, s.initiatorName)
		msg.To = remoteName
		signaling.WriteSessionMessage(msg, payload.elems, stanza)
	}
	s.manager.emit(stanza)
	return nil
}

func (s *Session) sendMessage(action signaling.ActionType, elems []*xmpp.Element) error {
	return s.sendMessageTo(action, elems, s.remoteName)
}

// sendMessageTo wraps pre-built action elements. The same elements go into
// both payloads when the dialect is still hybrid.
func (s *Session) sendMessageTo(action signaling.ActionType, elems []*xmpp.Element, remoteName string) error {
	payloads, err := s.writeActionElems(func(signaling.Protocol) ([]*xmpp.Element, error) {
		cloned := make([]*xmpp.Element, len(elems))
		for i, el := range elems {
			cloned[i] = el.Clone()
		}
		return cloned, nil
	})
	if err != nil {
		return err
	}
	return s.emitActionStanzaTo(action, payloads, remoteName)
}

func (s *Session) sendAcknowledgement(stanza *xmpp.Element) {
	s.manager.emit(xmpp.NewAck(stanza, s.remoteName))
}
