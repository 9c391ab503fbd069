package signaling

import (
	"github.com/peertalk/peertalk/xmpp"
)

// SessionMessage is a parsed session stanza: the dialect it arrived in, its
// action, and the element holding the action payload.
type SessionMessage struct {
	Protocol  Protocol
	Type      ActionType
	SID       string
	Initiator string
	From      string
	To        string

	// Stanza is the whole iq element; ActionElem the dialect payload
	// (<jingle> or <session>).
	Stanza     *xmpp.Element
	ActionElem *xmpp.Element
}

// NewSessionMessage builds an outgoing message header.
func NewSessionMessage(protocol Protocol, actionType ActionType, sid, initiator string) SessionMessage {
	return SessionMessage{
		Protocol:  protocol,
		Type:      actionType,
		SID:       sid,
		Initiator: initiator,
	}
}

// IsJingleMessage reports whether stanza carries a <jingle> payload.
func IsJingleMessage(stanza *xmpp.Element) bool {
	return stanza.FirstNamed(xmpp.QNJingle) != nil
}

// IsGingleMessage reports whether stanza carries a Gingle <session> payload.
func IsGingleMessage(stanza *xmpp.Element) bool {
	return stanza.FirstNamed(xmpp.QNGingleSession) != nil
}

// IsSessionMessage reports whether stanza is an iq set carrying either
// dialect's payload.
func IsSessionMessage(stanza *xmpp.Element) bool {
	return stanza.Name() == xmpp.QNIq &&
		stanza.Attr(xmpp.QNType) == "set" &&
		(IsJingleMessage(stanza) || IsGingleMessage(stanza))
}

// ParseSessionMessage extracts the message header from stanza. A stanza
// carrying both payloads is hybrid; its Jingle side is authoritative.
func ParseSessionMessage(stanza *xmpp.Element) (*SessionMessage, error) {
	if stanza.Attr(xmpp.QNType) != "set" {
		return nil, xmpp.BadRequest(`session message must be an iq of type "set"`)
	}

	jingle := stanza.FirstNamed(xmpp.QNJingle)
	gingle := stanza.FirstNamed(xmpp.QNGingleSession)

	msg := &SessionMessage{
		From:   stanza.Attr(xmpp.QNFrom),
		To:     stanza.Attr(xmpp.QNTo),
		Stanza: stanza,
	}

	switch {
	case jingle != nil && gingle != nil:
		msg.Protocol = ProtocolHybrid
	case jingle != nil:
		msg.Protocol = ProtocolJingle
	case gingle != nil:
		msg.Protocol = ProtocolGingle
	default:
		return nil, xmpp.BadRequest("session element expected")
	}

	var actionString string
	if jingle != nil {
		msg.ActionElem = jingle
		actionString = jingle.Attr(xmpp.QNAction)
		msg.SID = jingle.Attr(xmpp.QNSid)
		msg.Initiator = jingle.Attr(xmpp.QNInitiator)
	} else {
		msg.ActionElem = gingle
		actionString = gingle.Attr(xmpp.QNType)
		msg.SID = gingle.Attr(xmpp.QNID)
		msg.Initiator = gingle.Attr(xmpp.QNInitiator)
	}

	msg.Type = toActionType(actionString)
	if msg.Type == ActionUnknown {
		return nil, xmpp.BadRequest("unknown action: " + actionString)
	}
	if msg.SID == "" {
		return nil, xmpp.BadRequest("session message missing id")
	}
	return msg, nil
}

// WriteSessionMessage appends msg's payload, wrapping actionElems, to
// stanza. Hybrid senders call this once per dialect on the same stanza.
func WriteSessionMessage(msg SessionMessage, actionElems []*xmpp.Element, stanza *xmpp.Element) {
	stanza.SetAttr(xmpp.QNTo, msg.To)
	stanza.SetAttr(xmpp.QNType, "set")

	var payload *xmpp.Element
	if msg.Protocol == ProtocolGingle {
		payload = xmpp.NewElement(xmpp.QNGingleSession)
		payload.SetAttr(xmpp.QNType, toGingleString(msg.Type))
		payload.SetAttr(xmpp.QNID, msg.SID)
		payload.SetAttr(xmpp.QNInitiator, msg.Initiator)
	} else {
		payload = xmpp.NewElement(xmpp.QNJingle)
		payload.SetAttr(xmpp.QNAction, toJingleString(msg.Type))
		payload.SetAttr(xmpp.QNSid, msg.SID)
		// The initiator attribute is only defined for session-initiate.
		if msg.Type == ActionSessionInitiate {
			payload.SetAttr(xmpp.QNInitiator, msg.Initiator)
		}
	}
	for _, el := range actionElems {
		payload.AddElement(el)
	}
	stanza.AddElement(payload)
}
