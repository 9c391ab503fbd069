// Package transport implements P2P transport negotiation: candidates,
// transport descriptions, component channels and the Transport aggregate that
// owns them. Channel work runs on a worker loop; the public surface is called
// from the signaling loop.
package transport

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
)

// Candidate component ids, per RTP/RTCP convention.
const (
	ComponentRTP  = 1
	ComponentRTCP = 2
)

var (
	errCandidateNoAddress   = errors.New("transport: candidate has address of zero")
	errCandidateBadPort     = errors.New("transport: candidate has port below 1024, but not 80 or 443")
	errCandidatePrivateHTTP = errors.New("transport: candidate has port of 80 or 443 with private IP address")
)

// Candidate describes one transport endpoint offered by an agent.
type Candidate struct {
	ID        string
	Component int
	Protocol  string // "udp", "tcp" or "ssltcp"
	IP        string
	Port      int
	Priority  uint32
	Username  string
	Password  string
	Type      string // "local", "stun" or "relay"
	Network   string
	// Generation counts ICE restarts.
	Generation uint32
	Foundation string
}

func (c Candidate) Address() string {
	return c.IP + ":" + strconv.Itoa(c.Port)
}

// Preference reports the legacy 0..1 preference encoded in the top byte of
// the priority.
func (c Candidate) Preference() float64 {
	return float64(c.Priority>>24) / 127.0
}

// SetPreference stores a legacy 0..1 preference into the priority.
func (c *Candidate) SetPreference(preference float64) {
	c.Priority = uint32(preference*127) << 24
}

// Validate rejects candidates that cannot plausibly be routed to:
// unspecified addresses, and privileged ports other than HTTP(S) endpoints
// on public addresses.
func (c Candidate) Validate() error {
	addr, err := netip.ParseAddr(c.IP)
	if err != nil {
		return fmt.Errorf("transport: candidate address %q: %w", c.IP, err)
	}
	if addr.IsUnspecified() {
		return errCandidateNoAddress
	}
	if c.Port < 1024 {
		if c.Port != 80 && c.Port != 443 {
			return errCandidateBadPort
		}
		if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() {
			return errCandidatePrivateHTTP
		}
	}
	return nil
}
