// Package signaling implements the Jingle and Gingle session negotiation
// dialects over iq stanzas: action tables, the session message envelope, and
// the content, transport and candidate codecs for both dialects. The hybrid
// mode writes both dialects into one stanza and accepts either on input.
package signaling

// Protocol is the signaling dialect spoken with a peer.
type Protocol int

const (
	ProtocolJingle Protocol = iota
	ProtocolGingle
	ProtocolHybrid
)

func (p Protocol) String() string {
	switch p {
	case ProtocolJingle:
		return "jingle"
	case ProtocolGingle:
		return "gingle"
	case ProtocolHybrid:
		return "hybrid"
	}
	return "unknown"
}

// ActionType identifies a session message independent of dialect.
type ActionType int

const (
	ActionUnknown ActionType = iota
	ActionSessionInitiate
	ActionSessionInfo
	ActionSessionAccept
	ActionSessionReject
	ActionSessionTerminate
	ActionTransportInfo
	ActionTransportAccept
	ActionDescriptionInfo
)

// Jingle action strings.
const (
	jingleSessionInitiate  = "session-initiate"
	jingleSessionInfo      = "session-info"
	jingleSessionAccept    = "session-accept"
	jingleSessionTerminate = "session-terminate"
	jingleTransportInfo    = "transport-info"
	jingleTransportAccept  = "transport-accept"
	jingleDescriptionInfo  = "description-info"
)

// Gingle action strings.
const (
	gingleInitiate   = "initiate"
	gingleInfo       = "info"
	gingleAccept     = "accept"
	gingleReject     = "reject"
	gingleTerminate  = "terminate"
	gingleCandidates = "candidates"
	gingleUpdate     = "update"
)

// Common terminate reasons.
const (
	TerminateSuccess = "success"
	TerminateBusy    = "busy"
	TerminateDecline = "decline"
	TerminateError   = "error"
)

// toActionType maps an action string from either dialect.
func toActionType(s string) ActionType {
	switch s {
	case gingleInitiate, jingleSessionInitiate:
		return ActionSessionInitiate
	case gingleInfo, jingleSessionInfo:
		return ActionSessionInfo
	case gingleAccept, jingleSessionAccept:
		return ActionSessionAccept
	case gingleReject:
		return ActionSessionReject
	case gingleTerminate, jingleSessionTerminate:
		return ActionSessionTerminate
	case gingleCandidates, jingleTransportInfo:
		return ActionTransportInfo
	case jingleTransportAccept:
		return ActionTransportAccept
	case gingleUpdate, jingleDescriptionInfo:
		return ActionDescriptionInfo
	}
	return ActionUnknown
}

// Jingle folds reject into session-terminate; Gingle keeps them distinct.
func toJingleString(t ActionType) string {
	switch t {
	case ActionSessionInitiate:
		return jingleSessionInitiate
	case ActionSessionInfo:
		return jingleSessionInfo
	case ActionSessionAccept:
		return jingleSessionAccept
	case ActionSessionReject, ActionSessionTerminate:
		return jingleSessionTerminate
	case ActionTransportInfo:
		return jingleTransportInfo
	case ActionTransportAccept:
		return jingleTransportAccept
	case ActionDescriptionInfo:
		return jingleDescriptionInfo
	}
	return ""
}

func toGingleString(t ActionType) string {
	switch t {
	case ActionSessionInitiate:
		return gingleInitiate
	case ActionSessionInfo:
		return gingleInfo
	case ActionSessionAccept:
		return gingleAccept
	case ActionSessionReject:
		return gingleReject
	case ActionSessionTerminate:
		return gingleTerminate
	case ActionTransportInfo:
		return gingleCandidates
	case ActionDescriptionInfo:
		return gingleUpdate
	}
	return ""
}
