package transport

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/logging"

	"github.com/peertalk/peertalk/threading"
	"github.com/peertalk/peertalk/xmpp"
)

// fakeChannel is a scriptable ChannelImpl: tests flip its flags and fire its
// callbacks to drive the Transport aggregate.
type fakeChannel struct {
	mu        sync.Mutex
	content   string
	component int
	cb        ChannelCallbacks

	readable  bool
	writable  bool
	connected bool
	closed    bool

	role       IceRole
	tiebreaker uint64
	proto      Protocol
	remoteMode IceMode
	ufrag, pwd string
	remote     []Candidate
}

func newFakeChannel(content string, component int) *fakeChannel {
	return &fakeChannel{content: content, component: component}
}

func (f *fakeChannel) Content() string { return f.content }
func (f *fakeChannel) Component() int  { return f.component }

func (f *fakeChannel) Readable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readable
}

func (f *fakeChannel) Writable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writable
}

func (f *fakeChannel) Send(p []byte) (int, error)   { return len(p), nil }
func (f *fakeChannel) OnReadPacket(func([]byte))    {}
func (f *fakeChannel) OnReadableChanged(func(bool)) {}
func (f *fakeChannel) OnWritableChanged(func(bool)) {}

func (f *fakeChannel) SetCallbacks(cb ChannelCallbacks) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *fakeChannel) SetIceRole(role IceRole) {
	f.mu.Lock()
	f.role = role
	f.mu.Unlock()
}

func (f *fakeChannel) IceRole() IceRole {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.role
}

func (f *fakeChannel) SetIceTiebreaker(tb uint64) {
	f.mu.Lock()
	f.tiebreaker = tb
	f.mu.Unlock()
}

func (f *fakeChannel) SetIceProtocolType(p Protocol) {
	f.mu.Lock()
	f.proto = p
	f.mu.Unlock()
}

func (f *fakeChannel) SetIceCredentials(ufrag, pwd string) {
	f.mu.Lock()
	f.ufrag, f.pwd = ufrag, pwd
	f.mu.Unlock()
}

func (f *fakeChannel) SetRemoteIceCredentials(string, string) {}

func (f *fakeChannel) SetRemoteIceMode(m IceMode) {
	f.mu.Lock()
	f.remoteMode = m
	f.mu.Unlock()
}

func (f *fakeChannel) Connect() {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
}

func (f *fakeChannel) Reset()            {}
func (f *fakeChannel) OnSignalingReady() {}

func (f *fakeChannel) OnCandidate(c Candidate) {
	f.mu.Lock()
	f.remote = append(f.remote, c)
	f.mu.Unlock()
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) setWritable(w bool) {
	f.mu.Lock()
	f.writable = w
	cb := f.cb
	f.mu.Unlock()
	if cb.WritableChanged != nil {
		cb.WritableChanged(f)
	}
}

func (f *fakeChannel) setReadable(r bool) {
	f.mu.Lock()
	f.readable = r
	cb := f.cb
	f.mu.Unlock()
	if cb.ReadableChanged != nil {
		cb.ReadableChanged(f)
	}
}

func (f *fakeChannel) callbacks() ChannelCallbacks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

type transportFixture struct {
	signaling *threading.Thread
	worker    *threading.Thread
	transport *Transport
	channels  map[int]*fakeChannel
}

func newTransportFixture(t *testing.T, typ string) *transportFixture {
	t.Helper()
	fx := &transportFixture{
		signaling: threading.New("signaling"),
		worker:    threading.New("worker"),
		channels:  make(map[int]*fakeChannel),
	}
	t.Cleanup(fx.signaling.Stop)
	t.Cleanup(fx.worker.Stop)

	factory := func(content string, component int) ChannelImpl {
		ch := newFakeChannel(content, component)
		fx.channels[component] = ch
		return ch
	}
	fx.transport = New(fx.signaling, fx.worker, "audio", typ, factory, logging.NewDefaultLoggerFactory())
	return fx
}

// sync flushes the worker and then the signaling loop so posted callbacks
// have landed before the test asserts.
func (fx *transportFixture) sync() {
	fx.worker.Send(func() {})
	fx.signaling.Send(func() {})
}

func (fx *transportFixture) writable() (w bool) {
	fx.signaling.Send(func() { w = fx.transport.Writable() })
	return w
}

func (fx *transportFixture) readable() (r bool) {
	fx.signaling.Send(func() { r = fx.transport.Readable() })
	return r
}

func TestProtocolFromDescription(t *testing.T) {
	google := &Description{TransportType: xmpp.NSGingleP2P}
	if got := ProtocolFromDescription(google); got != ProtocolGoogle {
		t.Errorf("p2p transport = %v, want gice", got)
	}
	ice := &Description{TransportType: xmpp.NSJingleICEUDP}
	if got := ProtocolFromDescription(ice); got != ProtocolICE {
		t.Errorf("ice-udp transport = %v, want ice", got)
	}
	hybrid := &Description{TransportType: xmpp.NSJingleICEUDP}
	hybrid.AddOption(OptionGICE)
	if got := ProtocolFromDescription(hybrid); got != ProtocolHybrid {
		t.Errorf("ice-udp with google-ice = %v, want hybrid", got)
	}
}

func TestTransport_ChannelRefcount(t *testing.T) {
	fx := newTransportFixture(t, xmpp.NSGingleP2P)
	tr := fx.transport

	first := tr.CreateChannel(1)
	second := tr.CreateChannel(1)
	if first != second {
		t.Fatal("second CreateChannel should return the same channel")
	}
	if len(fx.channels) != 1 {
		t.Fatalf("factory ran %d times, want 1", len(fx.channels))
	}

	tr.DestroyChannel(1)
	fx.sync()
	if !tr.HasChannel(1) {
		t.Fatal("channel destroyed while a reference remains")
	}
	tr.DestroyChannel(1)
	fx.sync()
	if tr.HasChannel(1) {
		t.Fatal("channel survived its last DestroyChannel")
	}
	if !fx.channels[1].closed {
		t.Error("channel impl not closed")
	}
}

func TestTransport_WritableAggregation(t *testing.T) {
	fx := newTransportFixture(t, xmpp.NSGingleP2P)
	tr := fx.transport

	var edges []State
	tr.SetCallbacks(Callbacks{
		WritableState: func(tr *Transport) { edges = append(edges, tr.WritableState()) },
	})

	tr.CreateChannel(1)
	tr.CreateChannel(2)

	fx.channels[1].setWritable(true)
	fx.sync()
	if fx.writable() {
		t.Fatal("transport writable with only one of two channels writable")
	}
	if len(edges) != 1 || edges[0] != StateSome {
		t.Fatalf("edges = %v, want [StateSome]", edges)
	}

	fx.channels[2].setWritable(true)
	fx.sync()
	if !fx.writable() {
		t.Fatal("transport not writable with all channels writable")
	}
	if len(edges) != 2 || edges[1] != StateAll {
		t.Fatalf("edges = %v, want [StateSome StateAll]", edges)
	}

	fx.channels[1].setWritable(false)
	fx.sync()
	if fx.writable() {
		t.Fatal("transport still writable after a channel lost writability")
	}
	if len(edges) != 3 || edges[2] != StateSome {
		t.Fatalf("edges = %v, want [StateSome StateAll StateSome]", edges)
	}

	fx.channels[2].setWritable(false)
	fx.sync()
	if len(edges) != 4 || edges[3] != StateNone {
		t.Fatalf("edges = %v, want a final StateNone transition", edges)
	}

	var was bool
	fx.signaling.Send(func() { was = tr.WasWritable() })
	if !was {
		t.Error("WasWritable lost after the writable edge")
	}
}

func TestTransport_ReadableAggregation(t *testing.T) {
	fx := newTransportFixture(t, xmpp.NSGingleP2P)
	tr := fx.transport

	var edges []State
	tr.SetCallbacks(Callbacks{
		ReadableState: func(tr *Transport) { edges = append(edges, tr.ReadableState()) },
	})
	tr.CreateChannel(1)
	tr.CreateChannel(2)

	fx.channels[1].setReadable(true)
	fx.channels[2].setReadable(true)
	fx.sync()
	if !fx.readable() {
		t.Fatal("transport not readable with all channels readable")
	}
	if len(edges) != 2 || edges[0] != StateSome || edges[1] != StateAll {
		t.Fatalf("edges = %v, want [StateSome StateAll]", edges)
	}
}

func TestTransport_NoSignalsAfterDestroy(t *testing.T) {
	fx := newTransportFixture(t, xmpp.NSGingleP2P)
	tr := fx.transport

	var fired int
	tr.SetCallbacks(Callbacks{
		WritableState: func(*Transport) { fired++ },
	})
	tr.CreateChannel(1)
	tr.CreateChannel(2)

	fx.channels[1].setWritable(true)
	fx.sync()
	if fired != 1 {
		t.Fatalf("fired = %d before destroy, want 1", fired)
	}

	tr.DestroyAllChannels()
	fx.worker.Send(func() {})

	// A late event from a torn-down channel must not reach the callbacks.
	fx.channels[2].setWritable(true)
	fx.sync()
	if fired != 1 {
		t.Fatalf("fired = %d after destroy, want 1", fired)
	}
}

func TestTransport_NegotiateProtocol(t *testing.T) {
	google := func() *Description { return &Description{TransportType: xmpp.NSGingleP2P} }
	ice := func() *Description { return &Description{TransportType: xmpp.NSJingleICEUDP} }
	hybrid := func() *Description {
		d := &Description{TransportType: xmpp.NSJingleICEUDP}
		d.AddOption(OptionGICE)
		return d
	}

	tests := []struct {
		name    string
		offer   *Description
		answer  *Description
		want    Protocol
		wantErr bool
	}{
		{"google both", google(), google(), ProtocolGoogle, false},
		{"ice both", ice(), ice(), ProtocolICE, false},
		{"hybrid collapses to google", hybrid(), hybrid(), ProtocolGoogle, false},
		{"hybrid offer ice answer", hybrid(), ice(), ProtocolICE, false},
		{"hybrid offer google answer", hybrid(), google(), ProtocolGoogle, false},
		{"google offer pins answer", google(), ice(), 0, true},
		{"ice offer pins answer", ice(), google(), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newTransportFixture(t, tt.offer.TransportType)
			tr := fx.transport

			if err := tr.SetLocalDescription(tt.offer, ActionOffer); err != nil {
				t.Fatalf("SetLocalDescription failed: %v", err)
			}
			err := tr.SetRemoteDescription(tt.answer, ActionAnswer)
			if tt.wantErr {
				if !errors.Is(err, errProtocolMismatch) {
					t.Fatalf("err = %v, want protocol mismatch", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SetRemoteDescription failed: %v", err)
			}
			if got := tr.Protocol(); got != tt.want {
				t.Errorf("protocol = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransport_NegotiateRequiresBothDescriptions(t *testing.T) {
	fx := newTransportFixture(t, xmpp.NSGingleP2P)
	err := fx.transport.SetRemoteDescription(&Description{TransportType: xmpp.NSGingleP2P}, ActionAnswer)
	if !errors.Is(err, errNoDescriptions) {
		t.Fatalf("err = %v, want missing descriptions", err)
	}
}

func TestTransport_LiteRemoteNeverControls(t *testing.T) {
	fx := newTransportFixture(t, xmpp.NSGingleP2P)
	tr := fx.transport
	tr.SetIceRole(RoleControlled)
	tr.CreateChannel(1)

	if err := tr.SetLocalDescription(&Description{TransportType: xmpp.NSGingleP2P}, ActionOffer); err != nil {
		t.Fatalf("SetLocalDescription failed: %v", err)
	}
	remote := &Description{TransportType: xmpp.NSGingleP2P, IceMode: IceModeLite}
	if err := tr.SetRemoteDescription(remote, ActionAnswer); err != nil {
		t.Fatalf("SetRemoteDescription failed: %v", err)
	}

	if got := tr.IceRole(); got != RoleControlling {
		t.Errorf("role = %v, want controlling against an ice-lite remote", got)
	}
	if got := fx.channels[1].IceRole(); got != RoleControlling {
		t.Errorf("channel role = %v, want controlling", got)
	}
}

func TestTransport_BufferedCandidatesFlushOnConnect(t *testing.T) {
	fx := newTransportFixture(t, xmpp.NSGingleP2P)
	tr := fx.transport

	var mu sync.Mutex
	var got []Candidate
	connecting := make(chan struct{}, 1)
	tr.SetCallbacks(Callbacks{
		Connecting: func(*Transport) { connecting <- struct{}{} },
		CandidatesReady: func(_ *Transport, cs []Candidate) {
			mu.Lock()
			got = append(got, cs...)
			mu.Unlock()
		},
	})

	tr.CreateChannel(1)
	ch := fx.channels[1]

	// Candidates gathered before connect are buffered.
	cand := Candidate{Component: 1, IP: "192.0.2.1", Port: 2000}
	fx.worker.Send(func() { ch.callbacks().CandidateReady(ch, cand) })
	fx.sync()
	mu.Lock()
	buffered := len(got)
	mu.Unlock()
	if buffered != 0 {
		t.Fatalf("candidate emitted before connect was requested")
	}

	tr.ConnectChannels()
	fx.sync()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Port != 2000 {
		t.Fatalf("flushed candidates = %+v", got)
	}
	select {
	case <-connecting:
	default:
		t.Error("Connecting callback never fired")
	}
	if !ch.connected {
		t.Error("channel was not connected")
	}
}

func TestTransport_ConnectSynthesizesLocalDescription(t *testing.T) {
	fx := newTransportFixture(t, xmpp.NSJingleICEUDP)
	tr := fx.transport
	tr.CreateChannel(1)

	tr.ConnectChannels()
	fx.sync()

	ch := fx.channels[1]
	ch.mu.Lock()
	ufrag, pwd := ch.ufrag, ch.pwd
	ch.mu.Unlock()
	if len(ufrag) != IceUfragLength || len(pwd) != IcePwdLength {
		t.Errorf("synthesized credentials = %q/%q", ufrag, pwd)
	}
}

func TestTransport_OnRemoteCandidates(t *testing.T) {
	fx := newTransportFixture(t, xmpp.NSGingleP2P)
	tr := fx.transport
	tr.CreateChannel(1)

	good := Candidate{Component: 1, IP: "192.0.2.1", Port: 2000}
	if err := tr.OnRemoteCandidates([]Candidate{good}); err != nil {
		t.Fatalf("OnRemoteCandidates failed: %v", err)
	}
	fx.sync()
	ch := fx.channels[1]
	ch.mu.Lock()
	delivered := len(ch.remote)
	ch.mu.Unlock()
	if delivered != 1 {
		t.Fatalf("channel received %d candidates, want 1", delivered)
	}

	unknown := Candidate{Component: 2, IP: "192.0.2.1", Port: 2000}
	if err := tr.OnRemoteCandidates([]Candidate{unknown}); !errors.Is(err, errNoChannelForCandidate) {
		t.Errorf("err = %v, want unknown component", err)
	}

	invalid := Candidate{Component: 1, IP: "0.0.0.0", Port: 2000}
	if err := tr.OnRemoteCandidates([]Candidate{invalid}); err == nil {
		t.Error("invalid candidate accepted")
	}
}

func TestTransport_CandidatesAllocationDone(t *testing.T) {
	fx := newTransportFixture(t, xmpp.NSGingleP2P)
	tr := fx.transport

	done := make(chan struct{}, 2)
	tr.SetCallbacks(Callbacks{
		CandidatesAllocationDone: func(*Transport) { done <- struct{}{} },
	})
	tr.CreateChannel(1)
	tr.CreateChannel(2)

	fx.worker.Send(func() {
		ch := fx.channels[1]
		ch.callbacks().CandidatesAllocationDone(ch)
	})
	fx.sync()
	select {
	case <-done:
		t.Fatal("allocation-done fired with one channel still gathering")
	default:
	}

	fx.worker.Send(func() {
		ch := fx.channels[2]
		ch.callbacks().CandidatesAllocationDone(ch)
	})
	fx.sync()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("allocation-done never fired")
	}
}

func TestTransport_RoleConflictPropagates(t *testing.T) {
	fx := newTransportFixture(t, xmpp.NSGingleP2P)
	tr := fx.transport

	conflict := make(chan struct{}, 1)
	tr.SetCallbacks(Callbacks{
		RoleConflict: func(*Transport) { conflict <- struct{}{} },
	})
	tr.CreateChannel(1)

	fx.worker.Send(func() {
		ch := fx.channels[1]
		ch.callbacks().RoleConflict(ch)
	})
	fx.sync()
	select {
	case <-conflict:
	case <-time.After(2 * time.Second):
		t.Fatal("role conflict never propagated")
	}
}

func TestTransport_DestroyAllChannels(t *testing.T) {
	fx := newTransportFixture(t, xmpp.NSGingleP2P)
	tr := fx.transport
	tr.CreateChannel(1)
	tr.CreateChannel(1) // second reference
	tr.CreateChannel(2)

	tr.DestroyAllChannels()
	fx.sync()
	if tr.HasChannels() {
		t.Fatal("channels survived DestroyAllChannels")
	}
	if !fx.channels[1].closed || !fx.channels[2].closed {
		t.Error("channel impls not closed")
	}
}
