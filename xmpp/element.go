package xmpp

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

var errNoElement = errors.New("xmpp: document contains no element")

// Attr is a single attribute. Order is preserved.
type Attr struct {
	Name  QName
	Value string
}

// Element is a mutable XML element tree node. Child elements and character
// data are kept in document order so unknown payloads round-trip verbatim.
type Element struct {
	name     QName
	attrs    []Attr
	children []node
}

type node interface{ isNode() }

type textNode string

func (textNode) isNode() {}
func (*Element) isNode() {}

func NewElement(name QName) *Element {
	return &Element{name: name}
}

func (e *Element) Name() QName { return e.name }

func (e *Element) Attr(name QName) string {
	for _, a := range e.attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

func (e *Element) HasAttr(name QName) bool {
	for _, a := range e.attrs {
		if a.Name == name {
			return true
		}
	}
	return false
}

func (e *Element) SetAttr(name QName, value string) *Element {
	for i := range e.attrs {
		if e.attrs[i].Name == name {
			e.attrs[i].Value = value
			return e
		}
	}
	e.attrs = append(e.attrs, Attr{Name: name, Value: value})
	return e
}

func (e *Element) Attrs() []Attr { return e.attrs }

// AddElement appends child and returns e for chaining.
func (e *Element) AddElement(child *Element) *Element {
	e.children = append(e.children, child)
	return e
}

// AddText appends character data.
func (e *Element) AddText(s string) *Element {
	e.children = append(e.children, textNode(s))
	return e
}

// SetBodyText replaces all character data children with s, keeping element
// children intact.
func (e *Element) SetBodyText(s string) *Element {
	kept := e.children[:0]
	for _, c := range e.children {
		if _, ok := c.(textNode); !ok {
			kept = append(kept, c)
		}
	}
	e.children = kept
	if s != "" {
		e.children = append(e.children, textNode(s))
	}
	return e
}

// BodyText returns the concatenated character data directly under e.
func (e *Element) BodyText() string {
	var b strings.Builder
	for _, c := range e.children {
		if t, ok := c.(textNode); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// FirstElement returns the first child element, or nil.
func (e *Element) FirstElement() *Element {
	for _, c := range e.children {
		if el, ok := c.(*Element); ok {
			return el
		}
	}
	return nil
}

// FirstNamed returns the first child element with the given name, or nil.
func (e *Element) FirstNamed(name QName) *Element {
	for _, c := range e.children {
		if el, ok := c.(*Element); ok && el.name == name {
			return el
		}
	}
	return nil
}

// Elements returns all child elements in order.
func (e *Element) Elements() []*Element {
	var out []*Element
	for _, c := range e.children {
		if el, ok := c.(*Element); ok {
			out = append(out, el)
		}
	}
	return out
}

// ElementsNamed returns all child elements with the given name, in order.
func (e *Element) ElementsNamed(name QName) []*Element {
	var out []*Element
	for _, c := range e.children {
		if el, ok := c.(*Element); ok && el.name == name {
			out = append(out, el)
		}
	}
	return out
}

// CopyChildrenFrom appends deep copies of src's children to e.
func (e *Element) CopyChildrenFrom(src *Element) {
	for _, c := range src.children {
		switch c := c.(type) {
		case textNode:
			e.children = append(e.children, c)
		case *Element:
			e.children = append(e.children, c.Clone())
		}
	}
}

// Clone returns a deep copy.
func (e *Element) Clone() *Element {
	out := &Element{name: e.name}
	out.attrs = append([]Attr(nil), e.attrs...)
	out.CopyChildrenFrom(e)
	return out
}

// String serializes the element, emitting xmlns declarations wherever a
// child's namespace differs from its parent's.
func (e *Element) String() string {
	var b bytes.Buffer
	e.write(&b, "")
	return b.String()
}

func (e *Element) write(b *bytes.Buffer, parentNS string) {
	b.WriteByte('<')
	b.WriteString(e.name.Local)
	if e.name.Space != parentNS {
		b.WriteString(` xmlns="`)
		escapeAttr(b, e.name.Space)
		b.WriteByte('"')
	}
	for _, a := range e.attrs {
		b.WriteByte(' ')
		if a.Name.Space == "http://www.w3.org/XML/1998/namespace" {
			b.WriteString("xml:")
		}
		b.WriteString(a.Name.Local)
		b.WriteString(`="`)
		escapeAttr(b, a.Value)
		b.WriteByte('"')
	}
	if len(e.children) == 0 {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	for _, c := range e.children {
		switch c := c.(type) {
		case textNode:
			xml.EscapeText(b, []byte(c))
		case *Element:
			c.write(b, e.name.Space)
		}
	}
	b.WriteString("</")
	b.WriteString(e.name.Local)
	b.WriteByte('>')
}

func escapeAttr(b *bytes.Buffer, s string) {
	xml.EscapeText(b, []byte(s))
}

// Parse reads one element from data.
func Parse(data []byte) (*Element, error) {
	return ParseReader(bytes.NewReader(data))
}

// ParseReader reads the first element from r.
func ParseReader(r io.Reader) (*Element, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, errNoElement
		}
		if err != nil {
			return nil, fmt.Errorf("xmpp: parse: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return parseElement(dec, start)
		}
	}
}

func parseElement(dec *xml.Decoder, start xml.StartElement) (*Element, error) {
	e := NewElement(QName{start.Name.Space, start.Name.Local})
	for _, a := range start.Attr {
		// xmlns declarations are represented by the element namespace.
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		e.SetAttr(QName{a.Name.Space, a.Name.Local}, a.Value)
	}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("xmpp: parse: %w", err)
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			child, err := parseElement(dec, tok)
			if err != nil {
				return nil, err
			}
			e.children = append(e.children, child)
		case xml.EndElement:
			return e, nil
		case xml.CharData:
			if s := string(tok); strings.TrimSpace(s) != "" {
				e.children = append(e.children, textNode(s))
			}
		}
	}
}
