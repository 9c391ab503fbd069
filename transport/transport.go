package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/logging"

	"github.com/peertalk/peertalk/threading"
)

var (
	errNoDescriptions        = errors.New("transport: negotiate without both descriptions")
	errProtocolMismatch      = errors.New("transport: offer and answer protocols do not match")
	errNoChannelForCandidate = errors.New("transport: candidate has unknown component")
)

// State classifies flag aggregation across a transport's channels.
type State int

const (
	StateNone State = iota
	StateSome
	StateAll
)

// ChannelFactory builds the concrete channel for one component of a content.
type ChannelFactory func(content string, component int) ChannelImpl

// Callbacks are Transport notifications, invoked on the signaling loop.
type Callbacks struct {
	// Connecting fires once per connect request when the first channel
	// starts connecting.
	Connecting func(*Transport)
	// ReadableState and WritableState fire on every NONE/SOME/ALL
	// transition of the aggregate flags.
	ReadableState func(*Transport)
	WritableState func(*Transport)
	// RequestSignaling asks the session layer for a writable signaling
	// channel before candidates flow.
	RequestSignaling func(*Transport)
	// CandidatesReady delivers locally gathered candidates for signalling.
	CandidatesReady func(*Transport, []Candidate)
	// CandidatesAllocationDone fires when every channel finished gathering.
	CandidatesAllocationDone func(*Transport)
	// RoleConflict reports an ICE role conflict; fired at most once per
	// conflict detection by a channel.
	RoleConflict func(*Transport)
}

type channelEntry struct {
	impl                ChannelImpl
	refs                int
	candidatesAllocated bool
}

// Transport owns the component channels of one content and aggregates their
// state. Channel work is marshaled to the worker loop; callbacks and state
// queries happen on the signaling loop.
type Transport struct {
	signaling *threading.Thread
	worker    *threading.Thread
	content   string
	typ       string
	factory   ChannelFactory
	log       logging.LeveledLogger

	callbacks Callbacks

	// signaling-loop state
	readableState State
	writableState State
	wasWritable   bool

	mu               sync.Mutex
	channels         map[int]*channelEntry
	connectRequested bool
	destroyed        bool
	// readyCandidates buffers locally gathered candidates until connect is
	// requested.
	readyCandidates []Candidate

	// worker-loop negotiation state
	iceRole       IceRole
	tiebreaker    uint64
	protocol      Protocol
	remoteIceMode IceMode
	localDesc     *Description
	remoteDesc    *Description
	localRole     ContentAction
}

// New builds a Transport for content. typ is the transport type namespace.
func New(signaling, worker *threading.Thread, content, typ string, factory ChannelFactory, lf logging.LoggerFactory) *Transport {
	return &Transport{
		signaling: signaling,
		worker:    worker,
		content:   content,
		typ:       typ,
		factory:   factory,
		log:       lf.NewLogger("transport"),
		channels:  make(map[int]*channelEntry),
	}
}

func (t *Transport) Content() string { return t.content }
func (t *Transport) Type() string    { return t.typ }

// SetCallbacks must be called before any channel is created.
func (t *Transport) SetCallbacks(cb Callbacks) { t.callbacks = cb }

func (t *Transport) Readable() bool    { return t.readableState == StateAll }
func (t *Transport) Writable() bool    { return t.writableState == StateAll }
func (t *Transport) WasWritable() bool { return t.wasWritable }

// ReadableState and WritableState report the three-valued channel aggregates.
func (t *Transport) ReadableState() State { return t.readableState }
func (t *Transport) WritableState() State { return t.writableState }

func (t *Transport) SetIceRole(role IceRole) {
	t.worker.Send(func() {
		t.iceRole = role
		t.mu.Lock()
		defer t.mu.Unlock()
		for _, e := range t.channels {
			e.impl.SetIceRole(role)
		}
	})
}

func (t *Transport) IceRole() (role IceRole) {
	t.worker.Send(func() { role = t.iceRole })
	return role
}

func (t *Transport) SetIceTiebreaker(tiebreaker uint64) {
	t.worker.Send(func() { t.tiebreaker = tiebreaker })
}

// Protocol reports the negotiated connectivity protocol.
func (t *Transport) Protocol() (p Protocol) {
	t.worker.Send(func() { p = t.protocol })
	return p
}

// CreateChannel returns the channel for component, creating it on first use
// and reference counting subsequent requests.
func (t *Transport) CreateChannel(component int) (impl ChannelImpl) {
	t.worker.Send(func() { impl = t.createChannelW(component) })
	return impl
}

func (t *Transport) createChannelW(component int) ChannelImpl {
	t.mu.Lock()
	if e, ok := t.channels[component]; ok {
		e.refs++
		t.mu.Unlock()
		return e.impl
	}
	t.mu.Unlock()

	impl := t.factory(t.content, component)
	impl.SetCallbacks(ChannelCallbacks{
		ReadableChanged:          t.onChannelReadableW,
		WritableChanged:          t.onChannelWritableW,
		RequestSignaling:         t.onChannelRequestSignalingW,
		CandidateReady:           t.onChannelCandidateReadyW,
		CandidatesAllocationDone: t.onChannelCandidatesAllocationDoneW,
		RoleConflict:             t.onChannelRoleConflictW,
	})
	impl.SetIceRole(t.iceRole)
	impl.SetIceTiebreaker(t.tiebreaker)
	if t.localDesc != nil {
		impl.SetIceCredentials(t.localDesc.IceUfrag, t.localDesc.IcePwd)
	}
	if t.remoteDesc != nil {
		impl.SetRemoteIceCredentials(t.remoteDesc.IceUfrag, t.remoteDesc.IcePwd)
	}
	if t.localDesc != nil && t.remoteDesc != nil {
		impl.SetIceProtocolType(t.protocol)
		impl.SetRemoteIceMode(t.remoteIceMode)
	}

	t.mu.Lock()
	t.channels[component] = &channelEntry{impl: impl, refs: 1}
	first := len(t.channels) == 1
	connect := t.connectRequested
	t.mu.Unlock()

	t.log.Debugf("created channel content=%s component=%d", t.content, component)

	if connect {
		impl.Connect()
		if first {
			t.postSignaling(func() {
				if t.callbacks.Connecting != nil {
					t.callbacks.Connecting(t)
				}
			})
		}
	}
	return impl
}

// GetChannel returns the channel for component without affecting refcounts.
func (t *Transport) GetChannel(component int) ChannelImpl {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.channels[component]; ok {
		return e.impl
	}
	return nil
}

func (t *Transport) HasChannel(component int) bool {
	return t.GetChannel(component) != nil
}

func (t *Transport) HasChannels() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.channels) > 0
}

// DestroyChannel releases one reference to component's channel, closing it
// when the count reaches zero.
func (t *Transport) DestroyChannel(component int) {
	t.worker.Send(func() {
		t.mu.Lock()
		e, ok := t.channels[component]
		if ok {
			e.refs--
			if e.refs > 0 {
				ok = false
			} else {
				delete(t.channels, component)
			}
		}
		t.mu.Unlock()
		if ok {
			_ = e.impl.Close()
		}
	})
}

// ConnectChannels starts connectivity establishment on every channel.
// Without a local description one is synthesized, since the offer may still
// be in flight while channels already gather.
func (t *Transport) ConnectChannels() {
	t.worker.Send(t.connectChannelsW)
}

func (t *Transport) connectChannelsW() {
	t.mu.Lock()
	requested := t.connectRequested
	t.connectRequested = true
	t.mu.Unlock()
	if requested {
		return
	}

	if t.localDesc == nil {
		t.log.Info("transport connected before offer; synthesizing local description")
		desc, err := NewOfferDescription(t.typ)
		if err != nil {
			t.log.Errorf("synthesize local description: %v", err)
			return
		}
		if err := t.setLocalDescriptionW(desc, ActionOffer); err != nil {
			t.log.Errorf("apply synthesized description: %v", err)
		}
	}

	t.callChannelsW(func(impl ChannelImpl) { impl.Connect() })
	t.flushBufferedCandidatesW()

	t.mu.Lock()
	hasChannels := len(t.channels) > 0
	t.mu.Unlock()
	if hasChannels {
		t.postSignaling(func() {
			if t.callbacks.Connecting != nil {
				t.callbacks.Connecting(t)
			}
		})
	}
}

// ResetChannels drops remote negotiation state so signaling can restart.
func (t *Transport) ResetChannels() {
	t.worker.Send(func() {
		t.mu.Lock()
		t.connectRequested = false
		t.readyCandidates = nil
		t.mu.Unlock()
		t.callChannelsW(func(impl ChannelImpl) { impl.Reset() })
	})
}

// DestroyAllChannels closes every channel regardless of reference counts.
func (t *Transport) DestroyAllChannels() {
	t.worker.Send(func() {
		t.mu.Lock()
		entries := make([]*channelEntry, 0, len(t.channels))
		for c, e := range t.channels {
			entries = append(entries, e)
			delete(t.channels, c)
		}
		t.destroyed = true
		t.mu.Unlock()
		for _, e := range entries {
			_ = e.impl.Close()
		}
	})
}

// OnSignalingReady unblocks candidate emission on every channel.
func (t *Transport) OnSignalingReady() {
	t.worker.Send(func() {
		t.mu.Lock()
		destroyed := t.destroyed
		t.mu.Unlock()
		if destroyed {
			return
		}
		t.callChannelsW(func(impl ChannelImpl) { impl.OnSignalingReady() })
	})
}

// OnRemoteCandidates validates candidates and routes each to the channel for
// its component.
func (t *Transport) OnRemoteCandidates(candidates []Candidate) error {
	for _, c := range candidates {
		if err := c.Validate(); err != nil {
			return err
		}
		if !t.HasChannel(c.Component) {
			return fmt.Errorf("%w: %d", errNoChannelForCandidate, c.Component)
		}
	}
	for _, c := range candidates {
		c := c
		t.worker.Post(t, func() {
			if impl := t.GetChannel(c.Component); impl != nil {
				impl.OnCandidate(c)
			}
		})
	}
	return nil
}

// SetLocalDescription applies this side's transport parameters. Applying an
// answer triggers negotiation.
func (t *Transport) SetLocalDescription(desc *Description, action ContentAction) (err error) {
	t.worker.Send(func() { err = t.setLocalDescriptionW(desc, action) })
	return err
}

func (t *Transport) setLocalDescriptionW(desc *Description, action ContentAction) error {
	t.localDesc = desc
	t.localRole = action
	var err error
	t.callChannelsW(func(impl ChannelImpl) {
		impl.SetIceCredentials(desc.IceUfrag, desc.IcePwd)
	})
	if action == ActionAnswer || action == ActionPranswer {
		err = t.negotiateW()
	}
	return err
}

// SetRemoteDescription applies the remote side's transport parameters.
func (t *Transport) SetRemoteDescription(desc *Description, action ContentAction) (err error) {
	t.worker.Send(func() { err = t.setRemoteDescriptionW(desc, action) })
	return err
}

func (t *Transport) setRemoteDescriptionW(desc *Description, action ContentAction) error {
	t.remoteDesc = desc
	t.remoteIceMode = desc.IceMode
	var err error
	t.callChannelsW(func(impl ChannelImpl) {
		impl.SetRemoteIceCredentials(desc.IceUfrag, desc.IcePwd)
	})
	if action == ActionAnswer || action == ActionPranswer {
		err = t.negotiateW()
	}
	return err
}

// negotiateW decides the wire protocol from the offer/answer pair and pushes
// the outcome to every channel.
func (t *Transport) negotiateW() error {
	if t.localDesc == nil || t.remoteDesc == nil {
		return errNoDescriptions
	}

	offer, answer := t.localDesc, t.remoteDesc
	if t.localRole != ActionOffer {
		offer, answer = t.remoteDesc, t.localDesc
	}
	offerProto := ProtocolFromDescription(offer)
	answerProto := ProtocolFromDescription(answer)

	// A google-ice or RFC 5245 offer pins the answer. Only a hybrid offer
	// leaves the answerer a choice.
	if (offerProto == ProtocolGoogle || offerProto == ProtocolICE) && answerProto != offerProto {
		return fmt.Errorf("%w: offer=%v answer=%v", errProtocolMismatch, offerProto, answerProto)
	}
	t.protocol = answerProto
	if t.protocol == ProtocolHybrid {
		t.protocol = ProtocolGoogle
	}

	// An ice-lite remote never takes the controlling role.
	if t.iceRole == RoleControlled && t.remoteIceMode == IceModeLite {
		t.iceRole = RoleControlling
	}

	t.callChannelsW(func(impl ChannelImpl) {
		impl.SetIceProtocolType(t.protocol)
		impl.SetRemoteIceMode(t.remoteIceMode)
		impl.SetIceRole(t.iceRole)
	})
	return nil
}

func (t *Transport) callChannelsW(fn func(ChannelImpl)) {
	t.mu.Lock()
	impls := make([]ChannelImpl, 0, len(t.channels))
	for _, e := range t.channels {
		impls = append(impls, e.impl)
	}
	t.mu.Unlock()
	for _, impl := range impls {
		fn(impl)
	}
}

func (t *Transport) postSignaling(fn func()) {
	t.mu.Lock()
	destroyed := t.destroyed
	t.mu.Unlock()
	if destroyed {
		// A channel event arriving after DestroyAllChannels.
		return
	}
	t.signaling.Post(t, fn)
}

// channel callbacks, worker loop

func (t *Transport) onChannelReadableW(ChannelImpl) {
	state := t.aggregateState(func(c ChannelImpl) bool { return c.Readable() })
	t.postSignaling(func() {
		if t.readableState != state {
			t.readableState = state
			if t.callbacks.ReadableState != nil {
				t.callbacks.ReadableState(t)
			}
		}
	})
}

func (t *Transport) onChannelWritableW(ChannelImpl) {
	state := t.aggregateState(func(c ChannelImpl) bool { return c.Writable() })
	t.postSignaling(func() {
		if t.writableState != state {
			t.writableState = state
			if state == StateAll {
				t.wasWritable = true
			}
			if t.callbacks.WritableState != nil {
				t.callbacks.WritableState(t)
			}
		}
	})
}

func (t *Transport) onChannelRequestSignalingW(ChannelImpl) {
	t.postSignaling(func() {
		if t.callbacks.RequestSignaling != nil {
			t.callbacks.RequestSignaling(t)
		}
	})
}

func (t *Transport) onChannelCandidateReadyW(_ ChannelImpl, c Candidate) {
	t.mu.Lock()
	connect := t.connectRequested
	if !connect {
		t.readyCandidates = append(t.readyCandidates, c)
	}
	t.mu.Unlock()
	if connect {
		t.postSignaling(func() {
			if t.callbacks.CandidatesReady != nil {
				t.callbacks.CandidatesReady(t, []Candidate{c})
			}
		})
	}
}

// flushBufferedCandidatesW emits candidates gathered before connect was
// requested. Runs on the worker loop as part of connectChannelsW.
func (t *Transport) flushBufferedCandidatesW() {
	t.mu.Lock()
	buffered := t.readyCandidates
	t.readyCandidates = nil
	t.mu.Unlock()
	if len(buffered) == 0 {
		return
	}
	t.postSignaling(func() {
		if t.callbacks.CandidatesReady != nil {
			t.callbacks.CandidatesReady(t, buffered)
		}
	})
}

func (t *Transport) onChannelCandidatesAllocationDoneW(impl ChannelImpl) {
	t.mu.Lock()
	done := true
	for _, e := range t.channels {
		if e.impl == impl {
			e.candidatesAllocated = true
		}
		done = done && e.candidatesAllocated
	}
	t.mu.Unlock()
	if done {
		t.postSignaling(func() {
			if t.callbacks.CandidatesAllocationDone != nil {
				t.callbacks.CandidatesAllocationDone(t)
			}
		})
	}
}

func (t *Transport) onChannelRoleConflictW(ChannelImpl) {
	t.postSignaling(func() {
		if t.callbacks.RoleConflict != nil {
			t.callbacks.RoleConflict(t)
		}
	})
}

func (t *Transport) aggregateState(pred func(ChannelImpl) bool) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	matched := 0
	for _, e := range t.channels {
		if pred(e.impl) {
			matched++
		}
	}
	switch {
	case len(t.channels) == 0 || matched == 0:
		return StateNone
	case matched == len(t.channels):
		return StateAll
	default:
		return StateSome
	}
}
