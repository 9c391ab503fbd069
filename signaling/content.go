package signaling

import (
	"github.com/peertalk/peertalk/transport"
	"github.com/peertalk/peertalk/xmpp"
)

// Well-known content names.
const (
	ContentNameAudio = "audio"
	ContentNameVideo = "video"
	ContentNameData  = "data"
	ContentNameOther = "other"
)

// Legacy Gingle channel names, which stand in for component ids on the wire.
const (
	ChannelNameRTP       = "rtp"
	ChannelNameRTCP      = "rtcp"
	ChannelNameVideoRTP  = "video_rtp"
	ChannelNameVideoRTCP = "video_rtcp"
)

// The group semantics muxing several contents onto one transport.
const GroupTypeBundle = "BUNDLE"

// ContentDescription is an application-defined media description. The
// signaling layer treats it as opaque and round-trips it through a
// ContentParser.
type ContentDescription interface{}

// ContentInfo names one content of a session together with its description.
type ContentInfo struct {
	Name        string
	Type        string // content type namespace
	Rejected    bool
	Description ContentDescription
}

// TransportInfo pairs a content name with a transport description.
type TransportInfo struct {
	ContentName string
	Description transport.Description
}

// ContentGroup expresses grouping semantics (BUNDLE) over content names.
type ContentGroup struct {
	Semantics    string
	ContentNames []string
}

func (g *ContentGroup) HasContent(name string) bool {
	for _, n := range g.ContentNames {
		if n == name {
			return true
		}
	}
	return false
}

// ContentParser converts between a content description element and the
// application's description type, per dialect.
type ContentParser interface {
	ParseContent(protocol Protocol, elem *xmpp.Element) (ContentDescription, error)
	WriteContent(protocol Protocol, desc ContentDescription) (*xmpp.Element, error)
}

// CandidateTranslator maps between legacy channel names and component ids
// for one content. Channels must exist before their names resolve.
type CandidateTranslator interface {
	ChannelNameFromComponent(component int) (string, bool)
	ComponentFromChannelName(name string) (int, bool)
}

// TransportParser converts transport descriptions and candidates to and from
// their wire forms.
type TransportParser interface {
	ParseTransport(elem *xmpp.Element, translator CandidateTranslator) (*transport.Description, error)
	WriteTransport(desc *transport.Description, translator CandidateTranslator) (*xmpp.Element, error)

	// The Gingle forms carry candidates as flat elements, one per
	// candidate, with channel names instead of components.
	ParseGingleCandidate(elem *xmpp.Element, translator CandidateTranslator) (transport.Candidate, error)
	WriteGingleCandidate(c transport.Candidate, translator CandidateTranslator) (*xmpp.Element, error)
}

// Parser registries, keyed by content type namespace, transport type
// namespace and content name respectively.
type (
	ContentParsers       map[string]ContentParser
	TransportParsers     map[string]TransportParser
	CandidateTranslators map[string]CandidateTranslator
)

func getContentParser(parsers ContentParsers, contentType string) (ContentParser, error) {
	p, ok := parsers[contentType]
	if !ok {
		return nil, xmpp.BadRequest("unknown application content: " + contentType)
	}
	return p, nil
}

// getTransportParser resolves the parser and translator for a content. A
// missing translator is tolerated when parsing (session-initiate arrives
// before channels exist) but fatal when writing candidates.
func getTransportParser(parsers TransportParsers, translators CandidateTranslators,
	transportType, contentName string, forWriting bool) (TransportParser, CandidateTranslator, error) {
	p, ok := parsers[transportType]
	if !ok {
		return nil, nil, xmpp.BadRequest("unknown transport type: " + transportType)
	}
	tr, ok := translators[contentName]
	if !ok && forWriting {
		return nil, nil, xmpp.BadRequest("unknown content name: " + contentName)
	}
	if !ok {
		tr = nil
	}
	return p, tr, nil
}
