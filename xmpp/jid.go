package xmpp

import "strings"

// JID is a parsed XMPP address of the form node@domain/resource. Node and
// domain compare case-insensitively; the resource is case-sensitive.
type JID struct {
	Node     string
	Domain   string
	Resource string
}

// ParseJID splits raw into its parts. A JID with an empty domain is invalid.
func ParseJID(raw string) JID {
	var j JID
	rest := raw
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		j.Resource = rest[i+1:]
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		j.Node = strings.ToLower(rest[:i])
		rest = rest[i+1:]
	}
	j.Domain = strings.ToLower(rest)
	return j
}

func (j JID) IsValid() bool { return j.Domain != "" }

// Bare returns node@domain without the resource.
func (j JID) Bare() string {
	if j.Node == "" {
		return j.Domain
	}
	return j.Node + "@" + j.Domain
}

func (j JID) String() string {
	s := j.Bare()
	if j.Resource != "" {
		s += "/" + j.Resource
	}
	return s
}

func (j JID) Equal(other JID) bool {
	return j.Node == other.Node && j.Domain == other.Domain && j.Resource == other.Resource
}

// BareEquals reports whether both JIDs are valid and share node and domain.
func (j JID) BareEquals(other JID) bool {
	return j.IsValid() && other.IsValid() &&
		j.Node == other.Node && j.Domain == other.Domain
}

// BareJIDsEqual reports whether two raw JID strings name the same bare JID.
func BareJIDsEqual(a, b string) bool {
	return ParseJID(a).BareEquals(ParseJID(b))
}

// JIDsEqual reports whether two raw JID strings name the same full JID.
func JIDsEqual(a, b string) bool {
	return ParseJID(a).Equal(ParseJID(b))
}
