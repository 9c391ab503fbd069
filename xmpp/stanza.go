package xmpp

// NewIQ builds an iq stanza with the given type, destination and id.
func NewIQ(iqType, to, id string) *Element {
	iq := NewElement(QNIq)
	if to != "" {
		iq.SetAttr(QNTo, to)
	}
	if id != "" {
		iq.SetAttr(QNID, id)
	}
	iq.SetAttr(QNType, iqType)
	return iq
}

// NewAck builds the result stanza acknowledging orig, addressed to remote.
func NewAck(orig *Element, remote string) *Element {
	return NewIQ("result", remote, orig.Attr(QNID))
}

// StanzaError describes a stanza-level protocol failure: a defined condition,
// an error type per RFC 6120 ("modify", "cancel", "wait", "continue", "auth")
// and optional debug text.
type StanzaError struct {
	Condition QName
	Type      string
	Text      string
}

func (e *StanzaError) Error() string {
	if e.Text == "" {
		return "xmpp: " + e.Condition.Local
	}
	return "xmpp: " + e.Condition.Local + ": " + e.Text
}

// BadRequest builds the most common stanza error.
func BadRequest(text string) *StanzaError {
	return &StanzaError{Condition: QNStanzaBadRequest, Type: "modify", Text: text}
}

// NewErrorStanza builds the error reply for stanza: the original payload is
// echoed back with type="error" plus an <error> element carrying the
// condition. Conditions outside the stanza-error namespace are preceded by
// undefined-condition. The text, if any, is attached in english for
// debugging.
func NewErrorStanza(stanza *Element, condition QName, errType, text string, extra *Element) *Element {
	iq := NewIQ("error", stanza.Attr(QNFrom), stanza.Attr(QNID))
	iq.CopyChildrenFrom(stanza)

	errElem := NewElement(QNError)
	errElem.SetAttr(QNType, errType)
	iq.AddElement(errElem)

	if condition.Space != NSStanza {
		errElem.AddElement(NewElement(QNStanzaUndefinedCondition))
	}
	errElem.AddElement(NewElement(condition))

	if extra != nil {
		errElem.AddElement(extra.Clone())
	}

	if text != "" {
		textElem := NewElement(QNStanzaText)
		textElem.SetAttr(QNXMLLang, "en")
		textElem.SetBodyText(text)
		errElem.AddElement(textElem)
	}

	return iq
}
