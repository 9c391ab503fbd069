package xmpp

import (
	"strings"
	"testing"
)

func TestParse_Roundtrip(t *testing.T) {
	in := `<iq xmlns="jabber:client" type="set" id="42" to="bob@example.com/a">` +
		`<jingle xmlns="urn:xmpp:jingle:1" action="session-initiate" sid="s1">` +
		`<content name="audio" creator="initiator"/>` +
		`</jingle></iq>`

	el, err := Parse([]byte(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if el.Name() != QNIq {
		t.Fatalf("expected iq element, got %v", el.Name())
	}
	if got := el.Attr(QNType); got != "set" {
		t.Fatalf("type = %q", got)
	}

	jingle := el.FirstNamed(QNJingle)
	if jingle == nil {
		t.Fatalf("missing jingle payload")
	}
	if got := jingle.Attr(QNAction); got != "session-initiate" {
		t.Fatalf("action = %q", got)
	}
	content := jingle.FirstNamed(QNJingleContent)
	if content == nil {
		t.Fatalf("missing content element")
	}
	if got := content.Attr(QNName); got != "audio" {
		t.Fatalf("content name = %q", got)
	}

	out := el.String()
	back, err := Parse([]byte(out))
	if err != nil {
		t.Fatalf("reparse %q: %v", out, err)
	}
	if back.FirstNamed(QNJingle) == nil {
		t.Fatalf("namespace lost in serialization: %q", out)
	}
}

func TestElement_StringEmitsNamespaceOnBoundary(t *testing.T) {
	iq := NewIQ("set", "bob@example.com", "1")
	iq.AddElement(NewElement(QNGingleSession))

	out := iq.String()
	if !strings.Contains(out, `xmlns="http://www.google.com/session"`) {
		t.Fatalf("expected xmlns declaration on child, got %q", out)
	}
}

func TestElement_BodyText(t *testing.T) {
	el := NewElement(QName{Space: NSStanza, Local: "text"})
	el.AddText("hello")
	if got := el.BodyText(); got != "hello" {
		t.Fatalf("BodyText = %q", got)
	}

	el.SetBodyText("bye")
	if got := el.BodyText(); got != "bye" {
		t.Fatalf("after SetBodyText, BodyText = %q", got)
	}
}

func TestElement_SetBodyTextKeepsChildren(t *testing.T) {
	el := NewElement(QNError)
	el.AddElement(NewElement(QNStanzaItemNotFound))
	el.SetBodyText("gone")

	if el.FirstNamed(QNStanzaItemNotFound) == nil {
		t.Fatalf("child element dropped by SetBodyText")
	}
	if got := el.BodyText(); got != "gone" {
		t.Fatalf("BodyText = %q", got)
	}
}

func TestParse_EscapedAttrs(t *testing.T) {
	el := NewElement(QNIq)
	el.SetAttr(QNTo, `a"b&c<d>`)

	back, err := Parse([]byte(el.String()))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := back.Attr(QNTo); got != `a"b&c<d>` {
		t.Fatalf("attr roundtrip = %q", got)
	}
}

func TestParse_RejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("<iq><unclosed></iq>")); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := Parse([]byte("not xml")); err == nil {
		t.Fatalf("expected parse error")
	}
}
