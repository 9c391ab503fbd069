package signaling

import (
	"strings"

	"github.com/peertalk/peertalk/xmpp"
)

// SessionInitiate is the parsed payload of a session-initiate message.
type SessionInitiate struct {
	Contents   []ContentInfo
	Transports []TransportInfo
	Groups     []ContentGroup
}

// SessionAccept is the parsed payload of a session-accept message.
type SessionAccept = SessionInitiate

// DescriptionInfo carries content updates for an established session.
type DescriptionInfo struct {
	Contents []ContentInfo
}

// SessionTerminate carries the reason a session ended.
type SessionTerminate struct {
	Reason      string
	DebugReason string
}

// SessionRedirect points the session at a new signaling destination.
type SessionRedirect struct {
	Target string
}

func parseContentMessage(protocol Protocol, actionElem *xmpp.Element, expectTransports bool,
	cparsers ContentParsers, tparsers TransportParsers,
	translators CandidateTranslators) (*SessionInitiate, error) {
	out := &SessionInitiate{}
	var err error

	if protocol == ProtocolGingle {
		out.Contents, err = parseGingleContentInfos(actionElem, cparsers)
		if err != nil {
			return nil, err
		}
		if expectTransports {
			out.Transports, err = parseGingleTransportInfos(actionElem, out.Contents, tparsers, translators)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	out.Contents, err = parseJingleContentInfos(actionElem, cparsers)
	if err != nil {
		return nil, err
	}
	if expectTransports {
		out.Transports, err = parseJingleTransportInfos(actionElem, tparsers, translators)
		if err != nil {
			return nil, err
		}
	}
	out.Groups = parseJingleGroups(actionElem)
	return out, nil
}

func writeContentMessage(protocol Protocol, contents []ContentInfo, tinfos []TransportInfo,
	groups []ContentGroup, cparsers ContentParsers, tparsers TransportParsers,
	translators CandidateTranslators) ([]*xmpp.Element, error) {
	if protocol == ProtocolGingle {
		return writeGingleContentInfos(contents, cparsers)
	}
	elems, err := writeJingleContents(contents, tinfos, cparsers, tparsers, translators)
	if err != nil {
		return nil, err
	}
	return append(elems, writeJingleGroups(groups)...), nil
}

// ParseSessionInitiate parses the payload of a session-initiate.
func ParseSessionInitiate(protocol Protocol, actionElem *xmpp.Element,
	cparsers ContentParsers, tparsers TransportParsers,
	translators CandidateTranslators) (*SessionInitiate, error) {
	return parseContentMessage(protocol, actionElem, true, cparsers, tparsers, translators)
}

// ParseSessionAccept parses the payload of a session-accept.
func ParseSessionAccept(protocol Protocol, actionElem *xmpp.Element,
	cparsers ContentParsers, tparsers TransportParsers,
	translators CandidateTranslators) (*SessionAccept, error) {
	return parseContentMessage(protocol, actionElem, true, cparsers, tparsers, translators)
}

// ParseDescriptionInfo parses a content update; transports are not expected.
func ParseDescriptionInfo(protocol Protocol, actionElem *xmpp.Element,
	cparsers ContentParsers, tparsers TransportParsers,
	translators CandidateTranslators) (*DescriptionInfo, error) {
	parsed, err := parseContentMessage(protocol, actionElem, false, cparsers, tparsers, translators)
	if err != nil {
		return nil, err
	}
	return &DescriptionInfo{Contents: parsed.Contents}, nil
}

// WriteSessionInitiate writes the payload elements of a session-initiate.
func WriteSessionInitiate(protocol Protocol, contents []ContentInfo, tinfos []TransportInfo,
	cparsers ContentParsers, tparsers TransportParsers, translators CandidateTranslators,
	groups []ContentGroup) ([]*xmpp.Element, error) {
	return writeContentMessage(protocol, contents, tinfos, groups, cparsers, tparsers, translators)
}

// WriteSessionAccept writes the payload elements of a session-accept.
func WriteSessionAccept(protocol Protocol, contents []ContentInfo, tinfos []TransportInfo,
	cparsers ContentParsers, tparsers TransportParsers, translators CandidateTranslators,
	groups []ContentGroup) ([]*xmpp.Element, error) {
	return writeContentMessage(protocol, contents, tinfos, groups, cparsers, tparsers, translators)
}

// WriteDescriptionInfo writes a content update.
func WriteDescriptionInfo(protocol Protocol, contents []ContentInfo,
	cparsers ContentParsers) ([]*xmpp.Element, error) {
	if protocol == ProtocolGingle {
		return writeGingleContentInfos(contents, cparsers)
	}
	var elems []*xmpp.Element
	for _, content := range contents {
		parser, err := getContentParser(cparsers, content.Type)
		if err != nil {
			return nil, err
		}
		descElem, err := parser.WriteContent(ProtocolJingle, content.Description)
		if err != nil {
			return nil, err
		}
		contentElem := xmpp.NewElement(xmpp.QNJingleContent)
		contentElem.SetAttr(xmpp.QNName, content.Name)
		contentElem.SetAttr(xmpp.QNCreator, "initiator")
		contentElem.AddElement(descElem)
		elems = append(elems, contentElem)
	}
	return elems, nil
}

// ParseTransportInfos parses the payload of a transport-info message.
// contents is the session's content list, needed for Gingle channel-name
// routing.
func ParseTransportInfos(protocol Protocol, actionElem *xmpp.Element,
	contents []ContentInfo, tparsers TransportParsers,
	translators CandidateTranslators) ([]TransportInfo, error) {
	if protocol == ProtocolGingle {
		return parseGingleTransportInfos(actionElem, contents, tparsers, translators)
	}
	return parseJingleTransportInfos(actionElem, tparsers, translators)
}

// WriteTransportInfos writes the payload elements of a transport-info.
func WriteTransportInfos(protocol Protocol, tinfos []TransportInfo,
	tparsers TransportParsers, translators CandidateTranslators) ([]*xmpp.Element, error) {
	if protocol == ProtocolGingle {
		return writeGingleTransportInfos(tinfos, tparsers, translators)
	}
	return writeJingleTransportInfos(tinfos, tparsers, translators)
}

// ParseSessionTerminate extracts the terminate reason per dialect.
func ParseSessionTerminate(protocol Protocol, actionElem *xmpp.Element) (*SessionTerminate, error) {
	term := &SessionTerminate{}
	if protocol == ProtocolGingle {
		if reasonElem := actionElem.FirstElement(); reasonElem != nil {
			term.Reason = reasonElem.Name().Local
			if debugElem := reasonElem.FirstElement(); debugElem != nil {
				term.DebugReason = debugElem.Name().Local
			}
		}
		return term, nil
	}
	if reasonElem := actionElem.FirstNamed(xmpp.QNJingleReason); reasonElem != nil {
		if why := reasonElem.FirstElement(); why != nil {
			term.Reason = why.Name().Local
		}
	}
	return term, nil
}

// WriteSessionTerminate writes the terminate payload per dialect.
func WriteSessionTerminate(protocol Protocol, term SessionTerminate) []*xmpp.Element {
	if term.Reason == "" {
		return nil
	}
	if protocol == ProtocolGingle {
		return []*xmpp.Element{
			xmpp.NewElement(xmpp.QName{Space: xmpp.NSGingle, Local: term.Reason}),
		}
	}
	reasonElem := xmpp.NewElement(xmpp.QNJingleReason)
	reasonElem.AddElement(xmpp.NewElement(xmpp.QName{Space: xmpp.NSJingle, Local: term.Reason}))
	return []*xmpp.Element{reasonElem}
}

// ParseContentType extracts the content type of a fresh initiate so the
// manager can dispatch it to a client.
func ParseContentType(protocol Protocol, actionElem *xmpp.Element) (string, error) {
	if protocol == ProtocolGingle {
		contentElem := actionElem.FirstElement()
		if contentElem == nil {
			return "", xmpp.BadRequest("session initiate missing description")
		}
		space := contentElem.Name().Space
		if space == xmpp.NSGingleAudio || space == xmpp.NSGingleVideo {
			return xmpp.NSJingleRTP, nil
		}
		return space, nil
	}

	contentElem := actionElem.FirstNamed(xmpp.QNJingleContent)
	if contentElem == nil {
		return "", xmpp.BadRequest("session initiate missing content")
	}
	descElem := jingleDescriptionElem(contentElem)
	if descElem == nil {
		return "", xmpp.BadRequest("content missing description")
	}
	return descElem.Name().Space, nil
}

// FindSessionRedirect looks for a redirect condition in an error stanza. The
// redirect body carries the new target as an xmpp: URI.
func FindSessionRedirect(errorStanza *xmpp.Element) (SessionRedirect, bool) {
	errElem := errorStanza.FirstNamed(xmpp.QNError)
	if errElem == nil {
		return SessionRedirect{}, false
	}
	redirectElem := errElem.FirstNamed(xmpp.QNGingleRedirect)
	if redirectElem == nil {
		redirectElem = errElem.FirstNamed(xmpp.QNStanzaRedirect)
	}
	if redirectElem == nil {
		return SessionRedirect{}, false
	}
	body := redirectElem.BodyText()
	if !strings.HasPrefix(body, "xmpp:") {
		return SessionRedirect{}, false
	}
	return SessionRedirect{Target: strings.TrimPrefix(body, "xmpp:")}, true
}
