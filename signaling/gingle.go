package signaling

import (
	"github.com/peertalk/peertalk/transport"
	"github.com/peertalk/peertalk/xmpp"
)

func parseGingleContentInfos(session *xmpp.Element, parsers ContentParsers) ([]ContentInfo, error) {
	contentElem := session.FirstElement()
	if contentElem == nil {
		return nil, xmpp.BadRequest("session missing description")
	}

	switch contentElem.Name().Space {
	case xmpp.NSGingleVideo:
		// A Gingle video description carries both the audio and the video
		// content. The audio half is recovered by retyping the element.
		audioElem := xmpp.NewElement(xmpp.QNGingleAudioContent)
		audioElem.CopyChildrenFrom(contentElem)
		audio, err := parseGingleContentInfo(ContentNameAudio, xmpp.NSJingleRTP, audioElem, parsers)
		if err != nil {
			return nil, err
		}
		video, err := parseGingleContentInfo(ContentNameVideo, xmpp.NSJingleRTP, contentElem, parsers)
		if err != nil {
			return nil, err
		}
		return []ContentInfo{audio, video}, nil

	case xmpp.NSGingleAudio:
		audio, err := parseGingleContentInfo(ContentNameAudio, xmpp.NSJingleRTP, contentElem, parsers)
		if err != nil {
			return nil, err
		}
		return []ContentInfo{audio}, nil

	default:
		other, err := parseGingleContentInfo(
			ContentNameOther, contentElem.Name().Space, contentElem, parsers)
		if err != nil {
			return nil, err
		}
		return []ContentInfo{other}, nil
	}
}

func parseGingleContentInfo(name, contentType string, elem *xmpp.Element,
	parsers ContentParsers) (ContentInfo, error) {
	parser, err := getContentParser(parsers, contentType)
	if err != nil {
		return ContentInfo{}, err
	}
	desc, err := parser.ParseContent(ProtocolGingle, elem)
	if err != nil {
		return ContentInfo{}, err
	}
	return ContentInfo{Name: name, Type: contentType, Description: desc}, nil
}

func writeGingleContentInfos(contents []ContentInfo, parsers ContentParsers) ([]*xmpp.Element, error) {
	for _, c := range contents {
		if c.Rejected {
			return nil, xmpp.BadRequest("gingle cannot write rejected content")
		}
	}

	switch len(contents) {
	case 1:
		parser, err := getContentParser(parsers, contents[0].Type)
		if err != nil {
			return nil, err
		}
		elem, err := parser.WriteContent(ProtocolGingle, contents[0].Description)
		if err != nil {
			return nil, err
		}
		return []*xmpp.Element{elem}, nil

	case 2:
		// Audio and video merge into a single video description carrying
		// both contents' children.
		audio := findContentInfo(contents, ContentNameAudio)
		video := findContentInfo(contents, ContentNameVideo)
		if audio == nil || video == nil {
			return nil, xmpp.BadRequest("gingle sessions support only audio and video contents")
		}
		parser, err := getContentParser(parsers, video.Type)
		if err != nil {
			return nil, err
		}
		videoElem, err := parser.WriteContent(ProtocolGingle, video.Description)
		if err != nil {
			return nil, err
		}
		audioElem, err := parser.WriteContent(ProtocolGingle, audio.Description)
		if err != nil {
			return nil, err
		}
		videoElem.CopyChildrenFrom(audioElem)
		return []*xmpp.Element{videoElem}, nil

	default:
		return nil, xmpp.BadRequest("gingle cannot write more than two contents")
	}
}

func findContentInfo(contents []ContentInfo, name string) *ContentInfo {
	for i := range contents {
		if contents[i].Name == name {
			return &contents[i]
		}
	}
	return nil
}

// parseGingleTransportInfos routes flat candidate elements to contents by
// their legacy channel names, and yields one transport info per content so
// the session can build its proxies.
func parseGingleTransportInfos(session *xmpp.Element, contents []ContentInfo,
	parsers TransportParsers, translators CandidateTranslators) ([]TransportInfo, error) {
	hasAudio := findContentInfo(contents, ContentNameAudio) != nil
	hasVideo := findContentInfo(contents, ContentNameVideo) != nil
	hasOther := findContentInfo(contents, ContentNameOther) != nil

	byContent := map[string][]*xmpp.Element{}
	for _, candElem := range session.ElementsNamed(xmpp.QNGingleCandidate) {
		name := candElem.Attr(xmpp.QNName)
		switch {
		case hasAudio && (name == ChannelNameRTP || name == ChannelNameRTCP):
			byContent[ContentNameAudio] = append(byContent[ContentNameAudio], candElem)
		case hasVideo && (name == ChannelNameVideoRTP || name == ChannelNameVideoRTCP):
			byContent[ContentNameVideo] = append(byContent[ContentNameVideo], candElem)
		case hasOther:
			byContent[ContentNameOther] = append(byContent[ContentNameOther], candElem)
		default:
			return nil, xmpp.BadRequest("Unknown channel name: " + name)
		}
	}

	var tinfos []TransportInfo
	for _, content := range contents {
		parser, translator, err := getTransportParser(
			parsers, translators, xmpp.NSGingleP2P, content.Name, false)
		if err != nil {
			return nil, err
		}
		desc := transport.Description{
			TransportType: xmpp.NSGingleP2P,
			IceMode:       transport.IceModeFull,
		}
		for _, candElem := range byContent[content.Name] {
			c, err := parser.ParseGingleCandidate(candElem, translator)
			if err != nil {
				return nil, err
			}
			desc.Candidates = append(desc.Candidates, c)
		}
		tinfos = append(tinfos, TransportInfo{ContentName: content.Name, Description: desc})
	}
	return tinfos, nil
}

func writeGingleTransportInfos(tinfos []TransportInfo, parsers TransportParsers,
	translators CandidateTranslators) ([]*xmpp.Element, error) {
	var elems []*xmpp.Element
	for _, tinfo := range tinfos {
		parser, translator, err := getTransportParser(
			parsers, translators, tinfo.Description.TransportType, tinfo.ContentName, true)
		if err != nil {
			return nil, err
		}
		for _, c := range tinfo.Description.Candidates {
			elem, err := parser.WriteGingleCandidate(c, translator)
			if err != nil {
				return nil, err
			}
			elems = append(elems, elem)
		}
	}
	return elems, nil
}
