package transport

import (
	"errors"
	"sync"
)

var errChannelNotConnected = errors.New("transport: channel has no implementation yet")

// ChannelProxy is the Channel handed out before (and across) negotiation. It
// forwards to an implementation chosen later, and can be repointed when
// contents are muxed onto a shared transport.
type ChannelProxy struct {
	content   string
	component int

	mu   sync.Mutex
	impl ChannelImpl

	onRead     func([]byte)
	onReadable func(bool)
	onWritable func(bool)
}

func NewChannelProxy(content string, component int) *ChannelProxy {
	return &ChannelProxy{content: content, component: component}
}

func (p *ChannelProxy) Content() string { return p.content }
func (p *ChannelProxy) Component() int  { return p.component }

// Impl returns the current implementation, or nil.
func (p *ChannelProxy) Impl() ChannelImpl {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.impl
}

// SetImpl points the proxy at impl and replays current flag state to the
// registered callbacks so consumers observe the repoint as edges.
func (p *ChannelProxy) SetImpl(impl ChannelImpl) {
	p.mu.Lock()
	old := p.impl
	p.impl = impl
	onRead, onReadable, onWritable := p.onRead, p.onReadable, p.onWritable
	p.mu.Unlock()

	if old == impl {
		return
	}
	if impl == nil {
		return
	}
	if onRead != nil {
		impl.OnReadPacket(onRead)
	}
	if onReadable != nil {
		impl.OnReadableChanged(onReadable)
		onReadable(impl.Readable())
	}
	if onWritable != nil {
		impl.OnWritableChanged(onWritable)
		onWritable(impl.Writable())
	}
}

func (p *ChannelProxy) Readable() bool {
	if impl := p.Impl(); impl != nil {
		return impl.Readable()
	}
	return false
}

func (p *ChannelProxy) Writable() bool {
	if impl := p.Impl(); impl != nil {
		return impl.Writable()
	}
	return false
}

func (p *ChannelProxy) Send(b []byte) (int, error) {
	impl := p.Impl()
	if impl == nil {
		return 0, errChannelNotConnected
	}
	return impl.Send(b)
}

func (p *ChannelProxy) OnReadPacket(fn func([]byte)) {
	p.mu.Lock()
	p.onRead = fn
	impl := p.impl
	p.mu.Unlock()
	if impl != nil {
		impl.OnReadPacket(fn)
	}
}

func (p *ChannelProxy) OnReadableChanged(fn func(bool)) {
	p.mu.Lock()
	p.onReadable = fn
	impl := p.impl
	p.mu.Unlock()
	if impl != nil {
		impl.OnReadableChanged(fn)
	}
}

func (p *ChannelProxy) OnWritableChanged(fn func(bool)) {
	p.mu.Lock()
	p.onWritable = fn
	impl := p.impl
	p.mu.Unlock()
	if impl != nil {
		impl.OnWritableChanged(fn)
	}
}
