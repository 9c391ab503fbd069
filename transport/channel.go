package transport

// Channel is the packet surface handed to media code for one component of a
// content's transport. Flags and callbacks fire on the worker loop.
type Channel interface {
	// Content is the content name this channel belongs to.
	Content() string
	Component() int

	// Readable reports whether inbound packets can currently arrive.
	Readable() bool
	// Writable reports whether Send has a usable route to the remote agent.
	Writable() bool

	Send(p []byte) (int, error)

	// OnReadPacket registers the inbound packet callback.
	OnReadPacket(func(p []byte))
	// OnReadableChanged and OnWritableChanged register edge-triggered flag
	// callbacks.
	OnReadableChanged(func(bool))
	OnWritableChanged(func(bool))
}

// ChannelCallbacks are the notifications a channel implementation raises
// toward its owning Transport. All fire on the worker loop.
type ChannelCallbacks struct {
	ReadableChanged          func(ChannelImpl)
	WritableChanged          func(ChannelImpl)
	RequestSignaling         func(ChannelImpl)
	CandidateReady           func(ChannelImpl, Candidate)
	CandidatesAllocationDone func(ChannelImpl)
	RoleConflict             func(ChannelImpl)
}

// ChannelImpl is a concrete component channel as driven by Transport.
type ChannelImpl interface {
	Channel

	SetCallbacks(ChannelCallbacks)

	SetIceRole(IceRole)
	IceRole() IceRole
	SetIceTiebreaker(uint64)
	SetIceProtocolType(Protocol)
	SetIceCredentials(ufrag, pwd string)
	SetRemoteIceCredentials(ufrag, pwd string)
	SetRemoteIceMode(IceMode)

	// Connect begins gathering and connectivity establishment.
	Connect()
	// Reset drops remote state so negotiation can restart.
	Reset()

	// OnSignalingReady tells the channel buffered candidates may now flow.
	OnSignalingReady()
	// OnCandidate delivers one validated remote candidate.
	OnCandidate(Candidate)

	Close() error
}
