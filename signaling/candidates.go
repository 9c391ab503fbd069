package signaling

import (
	"strconv"

	"github.com/peertalk/peertalk/transport"
	"github.com/peertalk/peertalk/xmpp"
)

// Candidate and transport element attributes. All unqualified.
var (
	qnAddress    = xmpp.QName{Local: "address"}
	qnPort       = xmpp.QName{Local: "port"}
	qnPreference = xmpp.QName{Local: "preference"}
	qnUsername   = xmpp.QName{Local: "username"}
	qnProtocol   = xmpp.QName{Local: "protocol"}
	qnGeneration = xmpp.QName{Local: "generation"}
	qnPassword   = xmpp.QName{Local: "password"}
	qnNetwork    = xmpp.QName{Local: "network"}
	qnFoundation = xmpp.QName{Local: "foundation"}
	qnComponent  = xmpp.QName{Local: "component"}
	qnUfrag      = xmpp.QName{Local: "ufrag"}
	qnPwd        = xmpp.QName{Local: "pwd"}
	qnGICE       = xmpp.QName{Local: "google-ice"}
)

// Candidate username limits: 16 chars under legacy Google ICE, 512 under
// RFC 5245.
const (
	maxGiceUsernameLength = 16
	maxIceUsernameLength  = 512
)

func validCandidateUsername(s string, maxLen int) bool {
	if len(s) > maxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		case c == '+', c == '/', c == '=':
		default:
			return false
		}
	}
	return true
}

// P2PTransportParser reads and writes the legacy P2P transport wire forms:
// flat candidate elements carrying channel names, and transport elements in
// either the Google P2P or the ICE-UDP namespace.
type P2PTransportParser struct{}

var _ TransportParser = (*P2PTransportParser)(nil)

func (P2PTransportParser) ParseTransport(elem *xmpp.Element, translator CandidateTranslator) (*transport.Description, error) {
	desc := &transport.Description{
		TransportType: elem.Name().Space,
		IceMode:       transport.IceModeFull,
	}
	if elem.Name().Space == xmpp.NSJingleICEUDP {
		desc.IceUfrag = elem.Attr(qnUfrag)
		desc.IcePwd = elem.Attr(qnPwd)
		if elem.Attr(qnGICE) == "true" {
			desc.AddOption(transport.OptionGICE)
		}
	}
	candQ := xmpp.QName{Space: elem.Name().Space, Local: "candidate"}
	for _, ce := range elem.ElementsNamed(candQ) {
		c, err := (P2PTransportParser{}).ParseGingleCandidate(ce, translator)
		if err != nil {
			return nil, err
		}
		desc.Candidates = append(desc.Candidates, c)
	}
	return desc, nil
}

func (p P2PTransportParser) WriteTransport(desc *transport.Description, translator CandidateTranslator) (*xmpp.Element, error) {
	elem := xmpp.NewElement(xmpp.QName{Space: desc.TransportType, Local: "transport"})
	if desc.TransportType == xmpp.NSJingleICEUDP {
		if desc.IceUfrag != "" {
			elem.SetAttr(qnUfrag, desc.IceUfrag)
		}
		if desc.IcePwd != "" {
			elem.SetAttr(qnPwd, desc.IcePwd)
		}
		if desc.HasOption(transport.OptionGICE) {
			elem.SetAttr(qnGICE, "true")
		}
	}
	for _, c := range desc.Candidates {
		ce, err := p.WriteGingleCandidate(c, translator)
		if err != nil {
			return nil, err
		}
		ce2 := xmpp.NewElement(xmpp.QName{Space: desc.TransportType, Local: "candidate"})
		for _, a := range ce.Attrs() {
			ce2.SetAttr(a.Name, a.Value)
		}
		elem.AddElement(ce2)
	}
	return elem, nil
}

// ParseGingleCandidate reads one flat candidate element. The channel name
// attribute resolves to a component through the translator.
func (P2PTransportParser) ParseGingleCandidate(elem *xmpp.Element, translator CandidateTranslator) (transport.Candidate, error) {
	var c transport.Candidate

	name := elem.Attr(xmpp.QNName)
	switch {
	case name != "":
		if translator == nil {
			return c, xmpp.BadRequest("candidates not expected in this message")
		}
		component, ok := translator.ComponentFromChannelName(name)
		if !ok {
			return c, xmpp.BadRequest("candidate has unknown channel name: " + name)
		}
		c.Component = component
	case elem.HasAttr(qnComponent):
		component, err := strconv.Atoi(elem.Attr(qnComponent))
		if err != nil {
			return c, xmpp.BadRequest("candidate has invalid component: " + elem.Attr(qnComponent))
		}
		c.Component = component
	default:
		return c, xmpp.BadRequest("candidate missing channel name")
	}

	c.IP = elem.Attr(qnAddress)
	port, err := strconv.Atoi(elem.Attr(qnPort))
	if err != nil {
		return c, xmpp.BadRequest("candidate has invalid port: " + elem.Attr(qnPort))
	}
	c.Port = port

	if pref := elem.Attr(qnPreference); pref != "" {
		f, err := strconv.ParseFloat(pref, 64)
		if err != nil {
			return c, xmpp.BadRequest("candidate has invalid preference: " + pref)
		}
		c.SetPreference(f)
	}

	c.Protocol = elem.Attr(qnProtocol)
	c.Username = elem.Attr(qnUsername)
	maxUsername := maxGiceUsernameLength
	if elem.Name().Space == xmpp.NSJingleICEUDP {
		maxUsername = maxIceUsernameLength
	}
	if !validCandidateUsername(c.Username, maxUsername) {
		return c, xmpp.BadRequest("candidate has invalid username: " + c.Username)
	}
	c.Password = elem.Attr(qnPassword)
	c.Type = elem.Attr(xmpp.QNType)
	c.Network = elem.Attr(qnNetwork)
	c.Foundation = elem.Attr(qnFoundation)
	if gen := elem.Attr(qnGeneration); gen != "" {
		g, err := strconv.ParseUint(gen, 10, 32)
		if err != nil {
			return c, xmpp.BadRequest("candidate has invalid generation: " + gen)
		}
		c.Generation = uint32(g)
	}
	return c, nil
}

// WriteGingleCandidate writes one flat candidate element. Writing requires a
// translator so the component can be named.
func (P2PTransportParser) WriteGingleCandidate(c transport.Candidate, translator CandidateTranslator) (*xmpp.Element, error) {
	if translator == nil {
		return nil, xmpp.BadRequest("cannot write candidate without a channel map")
	}
	name, ok := translator.ChannelNameFromComponent(c.Component)
	if !ok {
		return nil, xmpp.BadRequest("candidate has unknown component: " + strconv.Itoa(c.Component))
	}

	elem := xmpp.NewElement(xmpp.QNGingleCandidate)
	elem.SetAttr(xmpp.QNName, name)
	elem.SetAttr(qnAddress, c.IP)
	elem.SetAttr(qnPort, strconv.Itoa(c.Port))
	elem.SetAttr(qnPreference, strconv.FormatFloat(c.Preference(), 'f', 2, 64))
	elem.SetAttr(qnUsername, c.Username)
	elem.SetAttr(qnProtocol, c.Protocol)
	elem.SetAttr(qnGeneration, strconv.FormatUint(uint64(c.Generation), 10))
	elem.SetAttr(qnPassword, c.Password)
	elem.SetAttr(xmpp.QNType, c.Type)
	elem.SetAttr(qnNetwork, c.Network)
	return elem, nil
}
