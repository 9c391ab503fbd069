package session

import (
	"github.com/peertalk/peertalk/signaling"
	"github.com/peertalk/peertalk/transport"
)

// Description is one side's view of a session: its contents, their transport
// parameters, and any grouping semantics.
type Description struct {
	Contents   []signaling.ContentInfo
	Transports []signaling.TransportInfo
	Groups     []signaling.ContentGroup
}

func (d *Description) GetContentByName(name string) *signaling.ContentInfo {
	for i := range d.Contents {
		if d.Contents[i].Name == name {
			return &d.Contents[i]
		}
	}
	return nil
}

func (d *Description) GetTransportInfoByName(name string) *signaling.TransportInfo {
	for i := range d.Transports {
		if d.Transports[i].ContentName == name {
			return &d.Transports[i]
		}
	}
	return nil
}

func (d *Description) GetGroupByName(semantics string) *signaling.ContentGroup {
	for i := range d.Groups {
		if d.Groups[i].Semantics == semantics {
			return &d.Groups[i]
		}
	}
	return nil
}

// WithTransports returns d with a fresh full-mode transport description per
// content, generating ICE credentials for each.
func (d *Description) WithTransports(transportType string) (*Description, error) {
	for _, content := range d.Contents {
		if d.GetTransportInfoByName(content.Name) != nil {
			continue
		}
		desc, err := transport.NewOfferDescription(transportType)
		if err != nil {
			return nil, err
		}
		d.Transports = append(d.Transports, signaling.TransportInfo{
			ContentName: content.Name,
			Description: *desc,
		})
	}
	return d, nil
}

// State is the session negotiation state.
type State int

const (
	StateInit State = iota
	StateSentInitiate
	StateReceivedInitiate
	StateSentPrAccept
	StateSentAccept
	StateReceivedPrAccept
	StateReceivedAccept
	StateSentModify
	StateReceivedModify
	StateSentReject
	StateReceivedReject
	StateSentRedirect
	StateSentTerminate
	StateReceivedTerminate
	StateInProgress
	StateDeInit
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSentInitiate:
		return "sent-initiate"
	case StateReceivedInitiate:
		return "received-initiate"
	case StateSentPrAccept:
		return "sent-pr-accept"
	case StateSentAccept:
		return "sent-accept"
	case StateReceivedPrAccept:
		return "received-pr-accept"
	case StateReceivedAccept:
		return "received-accept"
	case StateSentModify:
		return "sent-modify"
	case StateReceivedModify:
		return "received-modify"
	case StateSentReject:
		return "sent-reject"
	case StateReceivedReject:
		return "received-reject"
	case StateSentRedirect:
		return "sent-redirect"
	case StateSentTerminate:
		return "sent-terminate"
	case StateReceivedTerminate:
		return "received-terminate"
	case StateInProgress:
		return "in-progress"
	case StateDeInit:
		return "de-init"
	}
	return "unknown"
}

// Error classifies why a session failed.
type Error int

const (
	ErrorNone      Error = iota
	ErrorTime            // no response or writability within the timeout
	ErrorResponse        // error response to a sent message
	ErrorNetwork         // connectivity lost
	ErrorContent         // invalid or unparseable content
	ErrorTransport       // transport negotiation failed
	ErrorAck             // ack validation failed
)

func (e Error) String() string {
	switch e {
	case ErrorNone:
		return "none"
	case ErrorTime:
		return "timeout"
	case ErrorResponse:
		return "response"
	case ErrorNetwork:
		return "network"
	case ErrorContent:
		return "content"
	case ErrorTransport:
		return "transport"
	case ErrorAck:
		return "ack"
	}
	return "unknown"
}
