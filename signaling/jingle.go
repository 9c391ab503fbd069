package signaling

import (
	"github.com/peertalk/peertalk/xmpp"
)

func parseJingleContentInfos(jingle *xmpp.Element, parsers ContentParsers) ([]ContentInfo, error) {
	var contents []ContentInfo
	for _, contentElem := range jingle.ElementsNamed(xmpp.QNJingleContent) {
		name := contentElem.Attr(xmpp.QNName)
		if name == "" {
			return nil, xmpp.BadRequest("content missing name")
		}
		descElem := jingleDescriptionElem(contentElem)
		if descElem == nil {
			return nil, xmpp.BadRequest("content missing description")
		}
		contentType := descElem.Name().Space
		parser, err := getContentParser(parsers, contentType)
		if err != nil {
			return nil, err
		}
		desc, err := parser.ParseContent(ProtocolJingle, descElem)
		if err != nil {
			return nil, err
		}
		contents = append(contents, ContentInfo{
			Name:        name,
			Type:        contentType,
			Description: desc,
		})
	}
	return contents, nil
}

// jingleDescriptionElem finds the description inside a content element: the
// first child that is not the transport.
func jingleDescriptionElem(contentElem *xmpp.Element) *xmpp.Element {
	for _, el := range contentElem.Elements() {
		if el.Name().Local != "transport" {
			return el
		}
	}
	return nil
}

func jingleTransportElem(contentElem *xmpp.Element) *xmpp.Element {
	for _, el := range contentElem.Elements() {
		if el.Name().Local == "transport" {
			return el
		}
	}
	return nil
}

func parseJingleTransportInfos(jingle *xmpp.Element, parsers TransportParsers,
	translators CandidateTranslators) ([]TransportInfo, error) {
	var tinfos []TransportInfo
	for _, contentElem := range jingle.ElementsNamed(xmpp.QNJingleContent) {
		name := contentElem.Attr(xmpp.QNName)
		transportElem := jingleTransportElem(contentElem)
		if transportElem == nil {
			return nil, xmpp.BadRequest("transport element missing in content: " + name)
		}
		parser, translator, err := getTransportParser(
			parsers, translators, transportElem.Name().Space, name, false)
		if err != nil {
			return nil, err
		}
		desc, err := parser.ParseTransport(transportElem, translator)
		if err != nil {
			return nil, err
		}
		tinfos = append(tinfos, TransportInfo{ContentName: name, Description: *desc})
	}
	return tinfos, nil
}

func findTransportInfo(tinfos []TransportInfo, contentName string) *TransportInfo {
	for i := range tinfos {
		if tinfos[i].ContentName == contentName {
			return &tinfos[i]
		}
	}
	return nil
}

func writeJingleContents(contents []ContentInfo, tinfos []TransportInfo,
	cparsers ContentParsers, tparsers TransportParsers,
	translators CandidateTranslators) ([]*xmpp.Element, error) {
	var elems []*xmpp.Element
	for _, content := range contents {
		if content.Rejected {
			continue
		}

		tinfo := findTransportInfo(tinfos, content.Name)
		if tinfo == nil {
			return nil, xmpp.BadRequest("no transport for content: " + content.Name)
		}

		parser, err := getContentParser(cparsers, content.Type)
		if err != nil {
			return nil, err
		}
		descElem, err := parser.WriteContent(ProtocolJingle, content.Description)
		if err != nil {
			return nil, err
		}

		tparser, translator, err := getTransportParser(
			tparsers, translators, tinfo.Description.TransportType, content.Name,
			len(tinfo.Description.Candidates) > 0)
		if err != nil {
			return nil, err
		}
		transportElem, err := tparser.WriteTransport(&tinfo.Description, translator)
		if err != nil {
			return nil, err
		}

		contentElem := xmpp.NewElement(xmpp.QNJingleContent)
		contentElem.SetAttr(xmpp.QNName, content.Name)
		contentElem.SetAttr(xmpp.QNCreator, "initiator")
		contentElem.AddElement(descElem)
		contentElem.AddElement(transportElem)
		elems = append(elems, contentElem)
	}
	return elems, nil
}

func writeJingleTransportInfos(tinfos []TransportInfo, parsers TransportParsers,
	translators CandidateTranslators) ([]*xmpp.Element, error) {
	var elems []*xmpp.Element
	for _, tinfo := range tinfos {
		parser, translator, err := getTransportParser(
			parsers, translators, tinfo.Description.TransportType, tinfo.ContentName, true)
		if err != nil {
			return nil, err
		}
		transportElem, err := parser.WriteTransport(&tinfo.Description, translator)
		if err != nil {
			return nil, err
		}
		contentElem := xmpp.NewElement(xmpp.QNJingleContent)
		contentElem.SetAttr(xmpp.QNName, tinfo.ContentName)
		contentElem.SetAttr(xmpp.QNCreator, "initiator")
		contentElem.AddElement(transportElem)
		elems = append(elems, contentElem)
	}
	return elems, nil
}

func parseJingleGroups(jingle *xmpp.Element) []ContentGroup {
	var groups []ContentGroup
	for _, groupElem := range jingle.ElementsNamed(xmpp.QNJingleDraftGroup) {
		group := ContentGroup{Semantics: groupElem.Attr(xmpp.QNJingleDraftGroupType)}
		for _, contentElem := range groupElem.Elements() {
			if name := contentElem.Attr(xmpp.QNName); name != "" {
				group.ContentNames = append(group.ContentNames, name)
			}
		}
		groups = append(groups, group)
	}
	return groups
}

func writeJingleGroups(groups []ContentGroup) []*xmpp.Element {
	var elems []*xmpp.Element
	for _, group := range groups {
		groupElem := xmpp.NewElement(xmpp.QNJingleDraftGroup)
		groupElem.SetAttr(xmpp.QNJingleDraftGroupType, group.Semantics)
		for _, name := range group.ContentNames {
			contentElem := xmpp.NewElement(xmpp.QName{Space: xmpp.NSJingleDraftGroup, Local: "content"})
			contentElem.SetAttr(xmpp.QNName, name)
			groupElem.AddElement(contentElem)
		}
		elems = append(elems, groupElem)
	}
	return elems
}
