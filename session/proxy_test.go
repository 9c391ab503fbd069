package session

import (
	"testing"

	"github.com/pion/logging"

	"github.com/peertalk/peertalk/threading"
	"github.com/peertalk/peertalk/transport"
	"github.com/peertalk/peertalk/xmpp"
)

func newProxyFixture(t *testing.T, contentName string) *TransportProxy {
	t.Helper()
	sig := threading.New("signaling")
	worker := threading.New("worker")
	t.Cleanup(sig.Stop)
	t.Cleanup(worker.Stop)

	tr := transport.New(sig, worker, contentName, xmpp.NSGingleP2P,
		func(content string, component int) transport.ChannelImpl {
			return transport.NewLoopbackChannel(content, component)
		}, logging.NewDefaultLoggerFactory())
	return newTransportProxy("1", contentName, tr)
}

func TestTransportProxy_ChannelNames(t *testing.T) {
	p := newProxyFixture(t, "audio")
	p.CreateChannel("rtp", 1)
	p.CreateChannel("rtcp", 2)

	if name, ok := p.ChannelNameFromComponent(1); !ok || name != "rtp" {
		t.Errorf("component 1 = %q, %v", name, ok)
	}
	if component, ok := p.ComponentFromChannelName("rtcp"); !ok || component != 2 {
		t.Errorf("rtcp = %d, %v", component, ok)
	}
	if _, ok := p.ChannelNameFromComponent(3); ok {
		t.Error("unknown component resolved")
	}
	if _, ok := p.ComponentFromChannelName("video_rtp"); ok {
		t.Error("unknown channel name resolved")
	}
}

func TestTransportProxy_CreateChannelIdempotent(t *testing.T) {
	p := newProxyFixture(t, "audio")
	first := p.CreateChannel("rtp", 1)
	second := p.CreateChannel("rtp", 1)
	if first != second {
		t.Fatal("second CreateChannel returned a different channel")
	}
	if !p.HasChannel(1) || p.HasChannel(2) {
		t.Error("channel bookkeeping wrong")
	}
}

func TestTransportProxy_CompleteNegotiationBindsChannels(t *testing.T) {
	p := newProxyFixture(t, "audio")
	ch := p.CreateChannel("rtp", 1).(*transport.ChannelProxy)

	if ch.Impl() != nil {
		t.Fatal("channel bound before negotiation")
	}
	if err := p.CompleteNegotiation(); err != nil {
		t.Fatalf("CompleteNegotiation failed: %v", err)
	}
	if ch.Impl() == nil {
		t.Fatal("channel not bound after negotiation")
	}

	// Channels created afterwards are bound immediately.
	late := p.CreateChannel("rtcp", 2).(*transport.ChannelProxy)
	if late.Impl() == nil {
		t.Fatal("late channel not bound")
	}
}

func TestTransportProxy_PendingRemoteCandidates(t *testing.T) {
	p := newProxyFixture(t, "audio")
	p.CreateChannel("rtp", 1)

	good := transport.Candidate{Component: 1, IP: "203.0.113.9", Port: 2000}
	if err := p.OnRemoteCandidates([]transport.Candidate{good}); err != nil {
		t.Fatalf("buffering a valid candidate failed: %v", err)
	}

	bad := transport.Candidate{Component: 1, IP: "0.0.0.0", Port: 2000}
	if err := p.OnRemoteCandidates([]transport.Candidate{bad}); err == nil {
		t.Fatal("invalid candidate buffered")
	}

	// Negotiation delivers the held candidate to the now-existing channel.
	if err := p.CompleteNegotiation(); err != nil {
		t.Fatalf("CompleteNegotiation failed: %v", err)
	}
}

func TestTransportProxy_PendingCandidateForMissingChannel(t *testing.T) {
	p := newProxyFixture(t, "audio")
	p.CreateChannel("rtp", 1)

	orphan := transport.Candidate{Component: 2, IP: "203.0.113.9", Port: 2000}
	if err := p.OnRemoteCandidates([]transport.Candidate{orphan}); err != nil {
		t.Fatalf("buffering failed: %v", err)
	}
	if err := p.CompleteNegotiation(); err == nil {
		t.Fatal("candidate for a missing component delivered without error")
	}
}

func TestTransportProxy_CandidateOutboxes(t *testing.T) {
	p := newProxyFixture(t, "audio")
	c1 := transport.Candidate{Component: 1, IP: "203.0.113.1", Port: 2000}
	c2 := transport.Candidate{Component: 1, IP: "203.0.113.2", Port: 2001}

	p.AddSentCandidates([]transport.Candidate{c1})
	p.AddUnsentCandidates([]transport.Candidate{c2})
	if len(p.SentCandidates()) != 1 || len(p.UnsentCandidates()) != 1 {
		t.Fatalf("outboxes = %d sent, %d unsent", len(p.SentCandidates()), len(p.UnsentCandidates()))
	}
	p.ClearSentCandidates()
	p.ClearUnsentCandidates()
	if len(p.SentCandidates()) != 0 || len(p.UnsentCandidates()) != 0 {
		t.Error("outboxes not cleared")
	}
}

func TestTransportProxy_SetupMux(t *testing.T) {
	audio := newProxyFixture(t, "audio")
	video := newProxyFixture(t, "video")

	audioCh := audio.CreateChannel("rtp", 1).(*transport.ChannelProxy)
	videoCh := video.CreateChannel("video_rtp", 1).(*transport.ChannelProxy)
	if err := audio.CompleteNegotiation(); err != nil {
		t.Fatalf("CompleteNegotiation failed: %v", err)
	}

	video.SetupMux(audio)
	if video.Transport() != audio.Transport() {
		t.Fatal("mux did not repoint the transport")
	}
	if !video.Negotiated() {
		t.Error("muxed proxy not negotiated")
	}
	if videoCh.Impl() == nil {
		t.Fatal("muxed channel unbound")
	}
	if videoCh.Impl() != audioCh.Impl() {
		t.Error("muxed channel is not backed by the shared transport channel")
	}

	// Muxing twice is a no-op.
	video.SetupMux(audio)
	if videoCh.Impl() != audioCh.Impl() {
		t.Error("repeated mux rebound the channel")
	}
}
