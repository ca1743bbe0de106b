package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lu4p/cat"
	"github.com/xuri/excelize/v2"
)

const (
	pptxSlidePathPrefix = "ppt/slides/slide"
	openDocumentContent = "content.xml"
)

var (
	atTag     = regexp.MustCompile(`<a:t(?:\s[^>]*)?>([^<]*)</a:t>`)
	slideNum  = regexp.MustCompile(`slide(\d+)\.xml$`)
	odfTextRe = regexp.MustCompile(`<text:(p|h|span)(?:\s[^>]*)?>([^<]*)</text:(?:p|h|span)>`)
)

func errMissingPart(format, part string) error {
	return fmt.Errorf("extract %s: %s not found", format, part)
}

// extractExcel renders every sheet row as tab-separated cells.
func extractExcel(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var sheets []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		var b strings.Builder
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteByte('\n')
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			sheets = append(sheets, s)
		}
	}
	return strings.Join(sheets, "\n\n"), nil
}

// extractPPTX returns the <a:t> runs of each slide in slide order, one block per slide.
func extractPPTX(content []byte) (string, error) {
	zr, err := openZip("PPTX", content)
	if err != nil {
		return "", err
	}
	type slide struct {
		num  int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, pptxSlidePathPrefix) || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		n := 0
		if m := slideNum.FindStringSubmatch(f.Name); len(m) > 1 {
			n, _ = strconv.Atoi(m[1])
		}
		slides = append(slides, slide{num: n, name: f.Name})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var blocks []string
	for _, s := range slides {
		data, err := readZipEntry("PPTX", zr, s.name)
		if err != nil {
			return "", err
		}
		var parts []string
		for _, m := range atTag.FindAllStringSubmatch(string(data), -1) {
			if t := strings.TrimSpace(unescapeXML(m[1])); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) > 0 {
			blocks = append(blocks, strings.Join(parts, " "))
		}
	}
	return strings.Join(blocks, "\n\n"), nil
}

// extractODP and extractODS read text:p, text:h and text:span elements of content.xml
// in document order.
func extractODP(content []byte) (string, error) {
	return extractOpenDocument("ODP", content)
}

func extractODS(content []byte) (string, error) {
	return extractOpenDocument("ODS", content)
}

func extractOpenDocument(format string, content []byte) (string, error) {
	zr, err := openZip(format, content)
	if err != nil {
		return "", err
	}
	data, err := readZipEntry(format, zr, openDocumentContent)
	if err != nil {
		return "", err
	}
	if data == nil {
		return "", errMissingPart(format, openDocumentContent)
	}
	var parts []string
	for _, m := range odfTextRe.FindAllStringSubmatch(string(data), -1) {
		if t := strings.TrimSpace(unescapeXML(m[2])); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}

// extractWithCat handles ODT and RTF, which lu4p/cat detects from the content itself.
func extractWithCat(content []byte) (string, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return "", fmt.Errorf("extract document: %w", err)
	}
	return strings.TrimSpace(text), nil
}
