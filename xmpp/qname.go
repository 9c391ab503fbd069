package xmpp

// QName is a namespace-qualified XML name.
type QName struct {
	Space string
	Local string
}

func NewQName(space, local string) QName { return QName{Space: space, Local: local} }

func (q QName) String() string {
	if q.Space == "" {
		return q.Local
	}
	return q.Space + ":" + q.Local
}

// Namespaces.
const (
	NSClient = "jabber:client"
	NSStanza = "urn:ietf:params:xml:ns:xmpp-stanzas"

	NSJingle           = "urn:xmpp:jingle:1"
	NSJingleDraftGroup = "google:jingle"
	NSJingleRTP        = "urn:xmpp:jingle:apps:rtp:1"
	NSJingleICEUDP     = "urn:xmpp:jingle:transports:ice-udp:1"

	NSGingle      = "http://www.google.com/session"
	NSGingleAudio = "http://www.google.com/session/phone"
	NSGingleVideo = "http://www.google.com/session/video"
	NSGingleP2P   = "http://www.google.com/transport/p2p"
)

// Stanza-level names. Attributes on stanzas are unqualified.
var (
	QNIq      = QName{NSClient, "iq"}
	QNError   = QName{NSClient, "error"}
	QNID      = QName{Local: "id"}
	QNTo      = QName{Local: "to"}
	QNFrom    = QName{Local: "from"}
	QNType    = QName{Local: "type"}
	QNName    = QName{Local: "name"}
	QNXMLLang = QName{"http://www.w3.org/XML/1998/namespace", "lang"}

	QNStanzaText               = QName{NSStanza, "text"}
	QNStanzaBadRequest         = QName{NSStanza, "bad-request"}
	QNStanzaItemNotFound       = QName{NSStanza, "item-not-found"}
	QNStanzaNotAcceptable      = QName{NSStanza, "not-acceptable"}
	QNStanzaNotAllowed         = QName{NSStanza, "not-allowed"}
	QNStanzaServiceUnavailable = QName{NSStanza, "service-unavailable"}
	QNStanzaUndefinedCondition = QName{NSStanza, "undefined-condition"}
	QNStanzaRedirect           = QName{NSStanza, "redirect"}
)

// Jingle names.
var (
	QNJingle               = QName{NSJingle, "jingle"}
	QNJingleContent        = QName{NSJingle, "content"}
	QNJingleReason         = QName{NSJingle, "reason"}
	QNAction               = QName{Local: "action"}
	QNSid                  = QName{Local: "sid"}
	QNInitiator            = QName{Local: "initiator"}
	QNCreator              = QName{Local: "creator"}
	QNJingleDraftGroup     = QName{NSJingleDraftGroup, "group"}
	QNJingleDraftGroupType = QName{Local: "type"}
)

// Gingle names.
var (
	QNGingleSession   = QName{NSGingle, "session"}
	QNGingleCandidate = QName{NSGingle, "candidate"}
	QNGingleRedirect  = QName{NSGingle, "redirect"}

	QNGingleAudioContent = QName{NSGingleAudio, "description"}
	QNGingleVideoContent = QName{NSGingleVideo, "description"}

	QNGingleP2PTransport = QName{NSGingleP2P, "transport"}
	QNGingleP2PCandidate = QName{NSGingleP2P, "candidate"}
)
