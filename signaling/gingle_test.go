package signaling

import (
	"strings"
	"testing"

	"github.com/peertalk/peertalk/transport"
	"github.com/peertalk/peertalk/xmpp"
)

func TestSessionInitiate_GingleAudio(t *testing.T) {
	cparsers, tparsers, translators := testRegistries()
	actionElem := mustParse(t, `<session xmlns="http://www.google.com/session" type="initiate" id="1" initiator="a@x/1">`+
		`<description xmlns="http://www.google.com/session/phone">`+
		`<payload-type xmlns="http://www.google.com/session/phone" name="opus"/></description></session>`)

	parsed, err := ParseSessionInitiate(ProtocolGingle, actionElem, cparsers, tparsers, translators)
	if err != nil {
		t.Fatalf("ParseSessionInitiate failed: %v", err)
	}
	if len(parsed.Contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(parsed.Contents))
	}
	content := parsed.Contents[0]
	if content.Name != ContentNameAudio || content.Type != xmpp.NSJingleRTP {
		t.Errorf("content = %q/%q", content.Name, content.Type)
	}
	desc := content.Description.(*rtpDesc)
	if desc.media != "audio" || len(desc.codecs) != 1 || desc.codecs[0] != "opus" {
		t.Errorf("description = %+v", desc)
	}
	// One transport per content, even with no candidates yet.
	if len(parsed.Transports) != 1 || parsed.Transports[0].ContentName != ContentNameAudio {
		t.Errorf("transports = %+v", parsed.Transports)
	}
	if parsed.Transports[0].Description.TransportType != xmpp.NSGingleP2P {
		t.Errorf("transport type = %q", parsed.Transports[0].Description.TransportType)
	}
}

func TestSessionInitiate_GingleVideoCarriesAudio(t *testing.T) {
	// A Gingle video description stands for both the audio and the video
	// content of the session.
	cparsers, tparsers, translators := testRegistries()
	actionElem := mustParse(t, `<session xmlns="http://www.google.com/session" type="initiate" id="1">`+
		`<description xmlns="http://www.google.com/session/video"/></session>`)

	parsed, err := ParseSessionInitiate(ProtocolGingle, actionElem, cparsers, tparsers, translators)
	if err != nil {
		t.Fatalf("ParseSessionInitiate failed: %v", err)
	}
	if len(parsed.Contents) != 2 {
		t.Fatalf("got %d contents, want 2", len(parsed.Contents))
	}
	if parsed.Contents[0].Name != ContentNameAudio || parsed.Contents[1].Name != ContentNameVideo {
		t.Errorf("contents = %q, %q", parsed.Contents[0].Name, parsed.Contents[1].Name)
	}
	if len(parsed.Transports) != 2 {
		t.Errorf("got %d transports, want 2", len(parsed.Transports))
	}
}

func TestGingleCandidateRouting(t *testing.T) {
	cparsers, tparsers, translators := testRegistries()
	actionElem := mustParse(t, `<session xmlns="http://www.google.com/session" type="initiate" id="1">`+
		`<description xmlns="http://www.google.com/session/video"/>`+
		`<candidate xmlns="http://www.google.com/session" name="rtp" address="192.0.2.1" port="2000" preference="1.0" protocol="udp"/>`+
		`<candidate xmlns="http://www.google.com/session" name="rtcp" address="192.0.2.1" port="2001" preference="1.0" protocol="udp"/>`+
		`<candidate xmlns="http://www.google.com/session" name="video_rtp" address="192.0.2.1" port="2002" preference="1.0" protocol="udp"/>`+
		`</session>`)

	parsed, err := ParseSessionInitiate(ProtocolGingle, actionElem, cparsers, tparsers, translators)
	if err != nil {
		t.Fatalf("ParseSessionInitiate failed: %v", err)
	}

	byName := map[string]TransportInfo{}
	for _, tinfo := range parsed.Transports {
		byName[tinfo.ContentName] = tinfo
	}
	audio := byName[ContentNameAudio].Description.Candidates
	video := byName[ContentNameVideo].Description.Candidates
	if len(audio) != 2 {
		t.Fatalf("audio got %d candidates, want 2", len(audio))
	}
	if audio[0].Component != transport.ComponentRTP || audio[1].Component != transport.ComponentRTCP {
		t.Errorf("audio components = %d, %d", audio[0].Component, audio[1].Component)
	}
	if len(video) != 1 || video[0].Component != transport.ComponentRTP {
		t.Fatalf("video candidates = %+v", video)
	}
	if video[0].Port != 2002 {
		t.Errorf("video rtp port = %d", video[0].Port)
	}
}

func TestGingleCandidateRouting_UnknownChannel(t *testing.T) {
	cparsers, tparsers, translators := testRegistries()
	actionElem := mustParse(t, `<session xmlns="http://www.google.com/session" type="initiate" id="1">`+
		`<description xmlns="http://www.google.com/session/phone"/>`+
		`<candidate xmlns="http://www.google.com/session" name="video_rtp" address="192.0.2.1" port="2000"/>`+
		`</session>`)

	// Audio-only session: video channel names have no home.
	_, err := ParseSessionInitiate(ProtocolGingle, actionElem, cparsers, tparsers, translators)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Unknown channel name: video_rtp") {
		t.Errorf("error = %v", err)
	}
}

func TestGingleCandidateRouting_OtherContent(t *testing.T) {
	// Sessions without audio or video route every candidate to the sole
	// content regardless of channel name.
	cparsers := ContentParsers{"http://example.com/data": rtpParser{}}
	_, tparsers, _ := testRegistries()
	translators := CandidateTranslators{ContentNameOther: channelMap{ChannelNameRTP: 1}}

	actionElem := mustParse(t, `<session xmlns="http://www.google.com/session" type="initiate" id="1">`+
		`<description xmlns="http://example.com/data"/>`+
		`<candidate xmlns="http://www.google.com/session" name="rtp" address="192.0.2.1" port="2000"/>`+
		`</session>`)

	parsed, err := ParseSessionInitiate(ProtocolGingle, actionElem, cparsers, tparsers, translators)
	if err != nil {
		t.Fatalf("ParseSessionInitiate failed: %v", err)
	}
	if len(parsed.Contents) != 1 || parsed.Contents[0].Name != ContentNameOther {
		t.Fatalf("contents = %+v", parsed.Contents)
	}
	if len(parsed.Transports[0].Description.Candidates) != 1 {
		t.Errorf("candidates = %+v", parsed.Transports[0].Description.Candidates)
	}
}

func TestWriteGingleContentInfos_MergesAudioVideo(t *testing.T) {
	cparsers, _, _ := testRegistries()
	contents := []ContentInfo{
		{Name: ContentNameAudio, Type: xmpp.NSJingleRTP, Description: &rtpDesc{media: "audio", codecs: []string{"opus"}}},
		{Name: ContentNameVideo, Type: xmpp.NSJingleRTP, Description: &rtpDesc{media: "video", codecs: []string{"vp8"}}},
	}

	elems, err := writeGingleContentInfos(contents, cparsers)
	if err != nil {
		t.Fatalf("writeGingleContentInfos failed: %v", err)
	}
	if len(elems) != 1 {
		t.Fatalf("got %d elems, want 1 merged description", len(elems))
	}
	merged := elems[0]
	if merged.Name() != xmpp.QNGingleVideoContent {
		t.Errorf("merged elem name = %v", merged.Name())
	}
	if got := len(merged.Elements()); got != 2 {
		t.Errorf("merged description has %d children, want 2", got)
	}
}

func TestWriteGingleContentInfos_Errors(t *testing.T) {
	cparsers, _, _ := testRegistries()
	audio := ContentInfo{Name: ContentNameAudio, Type: xmpp.NSJingleRTP, Description: &rtpDesc{media: "audio"}}
	data := ContentInfo{Name: "data", Type: xmpp.NSJingleRTP, Description: &rtpDesc{media: "data"}}

	if _, err := writeGingleContentInfos([]ContentInfo{audio, data}, cparsers); err == nil {
		t.Error("audio+data pair should be rejected")
	}
	rejected := audio
	rejected.Rejected = true
	if _, err := writeGingleContentInfos([]ContentInfo{rejected}, cparsers); err == nil {
		t.Error("rejected content should be rejected")
	}
	three := []ContentInfo{audio, audio, audio}
	if _, err := writeGingleContentInfos(three, cparsers); err == nil {
		t.Error("three contents should be rejected")
	}
}

func TestWriteGingleTransportInfos(t *testing.T) {
	_, tparsers, translators := testRegistries()
	tinfos := []TransportInfo{{
		ContentName: ContentNameAudio,
		Description: transport.Description{
			TransportType: xmpp.NSGingleP2P,
			Candidates:    []transport.Candidate{testCandidate(1), testCandidate(2)},
		},
	}}

	elems, err := WriteTransportInfos(ProtocolGingle, tinfos, tparsers, translators)
	if err != nil {
		t.Fatalf("WriteTransportInfos failed: %v", err)
	}
	// Gingle candidates are flat elements, one per candidate.
	if len(elems) != 2 {
		t.Fatalf("got %d elems, want 2", len(elems))
	}
	if elems[0].Name() != xmpp.QNGingleCandidate {
		t.Errorf("elem name = %v", elems[0].Name())
	}
	if got := elems[0].Attr(xmpp.QNName); got != ChannelNameRTP {
		t.Errorf("first candidate channel = %q", got)
	}
	if got := elems[1].Attr(xmpp.QNName); got != ChannelNameRTCP {
		t.Errorf("second candidate channel = %q", got)
	}
}
