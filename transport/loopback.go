package transport

import (
	"sync"

	"github.com/pion/transport/v3/packetio"
)

// LoopbackChannel is an in-memory ChannelImpl. Two paired channels deliver
// packets to each other through a packet buffer; connectivity establishment
// is simulated with staged candidates. It backs the demo binary and the
// package tests.
type LoopbackChannel struct {
	content   string
	component int

	mu             sync.Mutex
	peer           *LoopbackChannel
	buf            *packetio.Buffer
	cb             ChannelCallbacks
	onRead         func([]byte)
	onReadable     func(bool)
	onWritable     func(bool)
	readable       bool
	writable       bool
	connected      bool
	signalingReady bool
	closed         bool

	iceRole     IceRole
	tiebreaker  uint64
	proto       Protocol
	localUfrag  string
	localPwd    string
	remoteUfrag string
	remotePwd   string
	remoteMode  IceMode

	staged    []Candidate
	allocated bool
	remote    []Candidate

	pumpOnce sync.Once
}

func NewLoopbackChannel(content string, component int) *LoopbackChannel {
	return &LoopbackChannel{
		content:   content,
		component: component,
		buf:       packetio.NewBuffer(),
	}
}

// PairLoopback links a and b so each Send lands in the other's read buffer.
func PairLoopback(a, b *LoopbackChannel) {
	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()
	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()
}

// StageCandidate queues a local candidate to be emitted once signaling is
// ready after Connect.
func (l *LoopbackChannel) StageCandidate(c Candidate) {
	l.mu.Lock()
	l.staged = append(l.staged, c)
	l.mu.Unlock()
}

func (l *LoopbackChannel) Content() string { return l.content }
func (l *LoopbackChannel) Component() int  { return l.component }

func (l *LoopbackChannel) Readable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readable
}

func (l *LoopbackChannel) Writable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writable
}

func (l *LoopbackChannel) Send(p []byte) (int, error) {
	l.mu.Lock()
	peer := l.peer
	writable := l.writable
	l.mu.Unlock()
	if peer == nil || !writable {
		return 0, errChannelNotConnected
	}
	return peer.buf.Write(p)
}

func (l *LoopbackChannel) OnReadPacket(fn func([]byte)) {
	l.mu.Lock()
	l.onRead = fn
	l.mu.Unlock()
}

func (l *LoopbackChannel) OnReadableChanged(fn func(bool)) {
	l.mu.Lock()
	l.onReadable = fn
	l.mu.Unlock()
}

func (l *LoopbackChannel) OnWritableChanged(fn func(bool)) {
	l.mu.Lock()
	l.onWritable = fn
	l.mu.Unlock()
}

func (l *LoopbackChannel) SetCallbacks(cb ChannelCallbacks) {
	l.mu.Lock()
	l.cb = cb
	l.mu.Unlock()
}

func (l *LoopbackChannel) SetIceRole(role IceRole) {
	l.mu.Lock()
	l.iceRole = role
	l.mu.Unlock()
}

func (l *LoopbackChannel) IceRole() IceRole {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.iceRole
}

func (l *LoopbackChannel) SetIceTiebreaker(tb uint64) {
	l.mu.Lock()
	l.tiebreaker = tb
	l.mu.Unlock()
}

func (l *LoopbackChannel) SetIceProtocolType(p Protocol) {
	l.mu.Lock()
	l.proto = p
	l.mu.Unlock()
}

func (l *LoopbackChannel) Protocol() Protocol {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.proto
}

func (l *LoopbackChannel) SetIceCredentials(ufrag, pwd string) {
	l.mu.Lock()
	l.localUfrag, l.localPwd = ufrag, pwd
	l.mu.Unlock()
}

func (l *LoopbackChannel) SetRemoteIceCredentials(ufrag, pwd string) {
	l.mu.Lock()
	l.remoteUfrag, l.remotePwd = ufrag, pwd
	l.mu.Unlock()
}

func (l *LoopbackChannel) SetRemoteIceMode(m IceMode) {
	l.mu.Lock()
	l.remoteMode = m
	l.mu.Unlock()
}

// Connect starts the simulated gathering: it asks for signaling, and once
// OnSignalingReady arrives, emits staged candidates.
func (l *LoopbackChannel) Connect() {
	l.mu.Lock()
	if l.connected || l.closed {
		l.mu.Unlock()
		return
	}
	l.connected = true
	cb := l.cb
	ready := l.signalingReady
	l.mu.Unlock()

	l.pumpOnce.Do(func() { go l.readPump() })

	if cb.RequestSignaling != nil {
		cb.RequestSignaling(l)
	}
	if ready {
		l.emitStaged()
	}
	l.maybeEstablish()
}

func (l *LoopbackChannel) Reset() {
	l.mu.Lock()
	l.connected = false
	l.signalingReady = false
	l.allocated = false
	l.remote = nil
	wasReadable, wasWritable := l.readable, l.writable
	l.readable, l.writable = false, false
	onReadable, onWritable := l.onReadable, l.onWritable
	cb := l.cb
	l.mu.Unlock()

	if wasReadable {
		if onReadable != nil {
			onReadable(false)
		}
		if cb.ReadableChanged != nil {
			cb.ReadableChanged(l)
		}
	}
	if wasWritable {
		if onWritable != nil {
			onWritable(false)
		}
		if cb.WritableChanged != nil {
			cb.WritableChanged(l)
		}
	}
}

func (l *LoopbackChannel) OnSignalingReady() {
	l.mu.Lock()
	l.signalingReady = true
	connected := l.connected
	l.mu.Unlock()
	if connected {
		l.emitStaged()
	}
}

func (l *LoopbackChannel) OnCandidate(c Candidate) {
	l.mu.Lock()
	l.remote = append(l.remote, c)
	l.mu.Unlock()
	l.maybeEstablish()
}

func (l *LoopbackChannel) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	return l.buf.Close()
}

func (l *LoopbackChannel) emitStaged() {
	l.mu.Lock()
	if l.allocated {
		l.mu.Unlock()
		return
	}
	l.allocated = true
	staged := l.staged
	cb := l.cb
	l.mu.Unlock()

	for _, c := range staged {
		if cb.CandidateReady != nil {
			cb.CandidateReady(l, c)
		}
	}
	if cb.CandidatesAllocationDone != nil {
		cb.CandidatesAllocationDone(l)
	}
}

// maybeEstablish flips the channel readable and writable once it is
// connected, paired, and holds at least one remote candidate. A double
// controlling role across the pair raises a role conflict on the lower
// tiebreaker.
func (l *LoopbackChannel) maybeEstablish() {
	l.mu.Lock()
	peer := l.peer
	establish := l.connected && peer != nil && len(l.remote) > 0 && !l.closed
	role, tiebreaker := l.iceRole, l.tiebreaker
	l.mu.Unlock()
	if !establish {
		return
	}

	conflict := false
	if role == RoleControlling {
		peer.mu.Lock()
		if peer.iceRole == RoleControlling && tiebreaker < peer.tiebreaker {
			conflict = true
		}
		peer.mu.Unlock()
	}

	l.mu.Lock()
	changedR := !l.readable
	changedW := !l.writable
	l.readable, l.writable = true, true
	cb := l.cb
	onReadable, onWritable := l.onReadable, l.onWritable
	l.mu.Unlock()

	if conflict && cb.RoleConflict != nil {
		cb.RoleConflict(l)
	}
	if changedR {
		if onReadable != nil {
			onReadable(true)
		}
		if cb.ReadableChanged != nil {
			cb.ReadableChanged(l)
		}
	}
	if changedW {
		if onWritable != nil {
			onWritable(true)
		}
		if cb.WritableChanged != nil {
			cb.WritableChanged(l)
		}
	}
}

func (l *LoopbackChannel) readPump() {
	pkt := make([]byte, 1500)
	for {
		n, err := l.buf.Read(pkt)
		if err != nil {
			return
		}
		l.mu.Lock()
		onRead := l.onRead
		l.mu.Unlock()
		if onRead != nil {
			p := make([]byte, n)
			copy(p, pkt[:n])
			onRead(p)
		}
	}
}

var _ ChannelImpl = (*LoopbackChannel)(nil)
