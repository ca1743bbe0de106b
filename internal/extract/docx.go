package extract

import (
	"archive/zip"
	"regexp"
	"strings"
)

const (
	docxDocumentXMLPath = "word/document.xml"
	contentTypesPath    = "[Content_Types].xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	// wtTag matches <w:t>text</w:t> with any attributes (xml:space="preserve" etc).
	wtTag = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
	// wpEnd closes a paragraph; paragraphs become blank-line separated blocks.
	wpEnd = regexp.MustCompile(`</w:p>`)

	partNameRe  = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)
	partNameRe2 = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)
)

// findDocxMainDocumentPath reads [Content_Types].xml for the main document part.
// Returns "" when it cannot be determined.
func findDocxMainDocumentPath(zr *zip.Reader) string {
	data, err := readZipEntry("DOCX", zr, contentTypesPath)
	if err != nil || data == nil {
		return ""
	}
	content := string(data)
	if m := partNameRe.FindStringSubmatch(content); len(m) > 1 {
		return strings.TrimPrefix(m[1], "/")
	}
	if m := partNameRe2.FindStringSubmatch(content); len(m) > 1 {
		return strings.TrimPrefix(m[1], "/")
	}
	return ""
}

// extractDOCX pulls the <w:t> runs out of the main document part. Runs inside one
// paragraph are concatenated; paragraphs are separated by a blank line so the
// chunkers see the document's paragraph structure.
func extractDOCX(content []byte) (string, error) {
	zr, err := openZip("DOCX", content)
	if err != nil {
		return "", err
	}
	docPath := findDocxMainDocumentPath(zr)
	if docPath == "" {
		docPath = docxDocumentXMLPath
	}
	docXML, err := readZipEntry("DOCX", zr, docPath)
	if err != nil {
		return "", err
	}
	if docXML == nil {
		return "", errMissingPart("DOCX", docPath)
	}

	var paragraphs []string
	for _, block := range wpEnd.Split(string(docXML), -1) {
		runs := wtTag.FindAllStringSubmatch(block, -1)
		if len(runs) == 0 {
			continue
		}
		var b strings.Builder
		for _, r := range runs {
			b.WriteString(unescapeXML(r[1]))
		}
		if p := strings.TrimSpace(b.String()); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return strings.Join(paragraphs, "\n\n"), nil
}
