package transport

import (
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/pion/dtls/v3/pkg/crypto/fingerprint"
	"github.com/pion/randutil"

	"github.com/peertalk/peertalk/xmpp"
)

// Lengths of generated ICE credentials.
const (
	IceUfragLength = 16
	IcePwdLength   = 24
)

const iceCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890+/"

// The transport option carried by hybrid ICE descriptions that still speak
// legacy Google ICE.
const OptionGICE = "google-ice"

// Protocol selects the connectivity-establishment dialect spoken on the wire.
type Protocol int

const (
	ProtocolGoogle Protocol = iota // legacy Google ICE
	ProtocolICE                    // RFC 5245
	ProtocolHybrid                 // RFC 5245 with the google-ice fallback option
)

func (p Protocol) String() string {
	switch p {
	case ProtocolGoogle:
		return "gice"
	case ProtocolICE:
		return "ice"
	case ProtocolHybrid:
		return "hybrid"
	}
	return "unknown"
}

// IceMode distinguishes full implementations from ice-lite answerers.
type IceMode int

const (
	IceModeFull IceMode = iota
	IceModeLite
)

// IceRole is the agent's negotiation role.
type IceRole int

const (
	RoleControlling IceRole = iota
	RoleControlled
)

// ConnectionRole is the DTLS setup role from the description.
type ConnectionRole int

const (
	RoleNone ConnectionRole = iota
	RoleActive
	RolePassive
	RoleActpass
	RoleHoldconn
)

// ContentAction says what stage of the offer/answer exchange a description
// belongs to.
type ContentAction int

const (
	ActionOffer ContentAction = iota
	ActionPranswer
	ActionAnswer
	ActionUpdate
)

// ContentSource says which side produced a description.
type ContentSource int

const (
	SourceLocal ContentSource = iota
	SourceRemote
)

// Fingerprint is a certificate digest pinning the remote DTLS identity.
type Fingerprint struct {
	Algorithm string
	Value     string
}

// signatureHashNames maps a certificate's signature algorithm to the digest
// named in its fingerprint. Ed25519 certificates carry no digest of their
// own and fingerprint with sha-256.
var signatureHashNames = map[x509.SignatureAlgorithm]string{
	x509.MD5WithRSA:       "md5",
	x509.SHA1WithRSA:      "sha-1",
	x509.DSAWithSHA1:      "sha-1",
	x509.ECDSAWithSHA1:    "sha-1",
	x509.SHA256WithRSA:    "sha-256",
	x509.SHA256WithRSAPSS: "sha-256",
	x509.DSAWithSHA256:    "sha-256",
	x509.ECDSAWithSHA256:  "sha-256",
	x509.SHA384WithRSA:    "sha-384",
	x509.SHA384WithRSAPSS: "sha-384",
	x509.ECDSAWithSHA384:  "sha-384",
	x509.SHA512WithRSA:    "sha-512",
	x509.SHA512WithRSAPSS: "sha-512",
	x509.ECDSAWithSHA512:  "sha-512",
	x509.PureEd25519:      "sha-256",
}

// NewFingerprint digests cert with the hash the certificate was signed with.
func NewFingerprint(cert *x509.Certificate) (*Fingerprint, error) {
	name, ok := signatureHashNames[cert.SignatureAlgorithm]
	if !ok {
		return nil, fmt.Errorf("transport: no fingerprint hash for signature algorithm %v", cert.SignatureAlgorithm)
	}
	algo, err := fingerprint.HashFromString(name)
	if err != nil {
		return nil, fmt.Errorf("transport: fingerprint hash: %w", err)
	}
	value, err := fingerprint.Fingerprint(cert, algo)
	if err != nil {
		return nil, fmt.Errorf("transport: fingerprint: %w", err)
	}
	return &Fingerprint{Algorithm: name, Value: value}, nil
}

// Description carries one side's transport parameters for a single content.
type Description struct {
	TransportType       string // namespace identifying the transport protocol
	Options             []string
	IceUfrag            string
	IcePwd              string
	IceMode             IceMode
	ConnectionRole      ConnectionRole
	IdentityFingerprint *Fingerprint
	Candidates          []Candidate
}

// NewOfferDescription builds a full-mode description with fresh credentials.
func NewOfferDescription(transportType string) (*Description, error) {
	ufrag, err := randutil.GenerateCryptoRandomString(IceUfragLength, iceCharset)
	if err != nil {
		return nil, fmt.Errorf("transport: generate ufrag: %w", err)
	}
	pwd, err := randutil.GenerateCryptoRandomString(IcePwdLength, iceCharset)
	if err != nil {
		return nil, fmt.Errorf("transport: generate pwd: %w", err)
	}
	return &Description{
		TransportType: transportType,
		IceUfrag:      ufrag,
		IcePwd:        pwd,
		IceMode:       IceModeFull,
	}, nil
}

func (d *Description) HasOption(option string) bool {
	for _, o := range d.Options {
		if o == option {
			return true
		}
	}
	return false
}

func (d *Description) AddOption(option string) {
	d.Options = append(d.Options, option)
}

// ProtocolFromDescription derives the wire protocol a description implies:
// ICE-UDP descriptions speak RFC 5245, or hybrid when they carry the
// google-ice option; everything else is legacy Google ICE.
func ProtocolFromDescription(d *Description) Protocol {
	if d.TransportType == xmpp.NSJingleICEUDP {
		if d.HasOption(OptionGICE) {
			return ProtocolHybrid
		}
		return ProtocolICE
	}
	return ProtocolGoogle
}

// NewTiebreaker draws the 64-bit role-conflict tiebreaker.
func NewTiebreaker() (uint64, error) {
	v, err := randutil.CryptoUint64()
	if err != nil {
		return 0, errors.New("transport: generate tiebreaker failed")
	}
	return v, nil
}
