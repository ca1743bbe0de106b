package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/inqdoc/internal/models"
)

func TestExtractBytes_plain(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte("Hello world\nLine 2"), ".txt")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Hello world\nLine 2" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_plainUTF8(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte("caf\xc3\xa9"), ".TXT")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "café" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_latin1Fallback(t *testing.T) {
	e := NewExtractor()
	// 0xe9 is "é" in Latin-1 and invalid as a lone UTF-8 byte.
	got, err := e.ExtractBytes([]byte("caf\xe9 cr\xe8me"), ".txt")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "café crème" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_stripsBOM(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte("\xef\xbb\xbfhello"), ".md")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_unknownExtension(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte("plain content in odd file"), ".weird")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "plain content in odd file" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_unknownBinary(t *testing.T) {
	e := NewExtractor()
	_, err := e.ExtractBytes([]byte{0x00, 0x01, 0x02, 0xff}, ".bin")
	var unsupported *models.UnsupportedFormatError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedFormatError, got %v", err)
	}
	if unsupported.Extension != ".bin" {
		t.Errorf("extension = %q", unsupported.Extension)
	}
}

func TestExtractBytes_excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Title")
	f.SetCellValue("Sheet1", "A2", "Value 1")
	f.SetCellValue("Sheet1", "B2", "Value 2")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	got, err := NewExtractor().ExtractBytes(buf.Bytes(), ".xlsx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Title\nValue 1\tValue 2" {
		t.Errorf("got %q", got)
	}
}

// minimalPDF builds a one-page PDF showing text in Helvetica with a valid xref table.
func minimalPDF(text string) []byte {
	stream := fmt.Sprintf("BT /F1 24 Tf 72 700 Td (%s) Tj ET", text)
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestExtractBytes_pdf(t *testing.T) {
	got, err := NewExtractor().ExtractBytes(minimalPDF("Quarterly revenue grew"), ".pdf")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if !strings.Contains(got, "Quarterly revenue grew") {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_pdfMalformed(t *testing.T) {
	_, err := NewExtractor().ExtractBytes([]byte("%PDF-1.4 garbage"), ".pdf")
	if err == nil {
		t.Error("expected error for malformed PDF")
	}
}

// minimalDocx returns .docx zip bytes whose word/document.xml holds one paragraph per text.
func minimalDocx(paragraphs ...string) []byte {
	return minimalDocxAt(docxDocumentXMLPath, false, paragraphs...)
}

func minimalDocxAt(docPath string, withContentTypes bool, paragraphs ...string) []byte {
	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString(`<w:p w:rsidR="00A1"><w:r><w:t xml:space="preserve">` + p + `</w:t></w:r></w:p>`)
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	if withContentTypes {
		ct, _ := w.Create(contentTypesPath)
		_, _ = ct.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Override PartName="/` + docPath + `" ContentType="` + docxMainContentType + `"/>
</Types>`))
	}
	fw, _ := w.Create(docPath)
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body.String() + `</w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

func TestExtractBytes_docx(t *testing.T) {
	got, err := NewExtractor().ExtractBytes(minimalDocx("Searchable docx content"), ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Searchable docx content" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_docxParagraphs(t *testing.T) {
	got, err := NewExtractor().ExtractBytes(minimalDocx("First paragraph", "Fish &amp; chips"), ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "First paragraph\n\nFish & chips" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_docxRunsJoined(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create(docxDocumentXMLPath)
	_, _ = fw.Write([]byte(`<w:document><w:body><w:p><w:r><w:t>Split</w:t></w:r><w:r><w:t xml:space="preserve">word here</w:t></w:r></w:p></w:body></w:document>`))
	_ = w.Close()
	got, err := NewExtractor().ExtractBytes(buf.Bytes(), ".docx")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Splitword here" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_docxWithContentTypes(t *testing.T) {
	got, err := NewExtractor().ExtractBytes(minimalDocxAt("word/document2.xml", true, "Content from document2"), ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Content from document2" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_docxContentTypesReversedOrder(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	ct, _ := w.Create(contentTypesPath)
	_, _ = ct.Write([]byte(`<Types><Override ContentType="` + docxMainContentType + `" PartName="/word/document3.xml"/></Types>`))
	fw, _ := w.Create("word/document3.xml")
	_, _ = fw.Write([]byte(`<w:document><w:body><w:p><w:r><w:t>Reversed order test</w:t></w:r></w:p></w:body></w:document>`))
	_ = w.Close()

	got, err := NewExtractor().ExtractBytes(buf.Bytes(), ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Reversed order test" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_docxNotZip(t *testing.T) {
	if _, err := NewExtractor().ExtractBytes([]byte("not a zip"), ".docx"); err == nil {
		t.Error("expected error for invalid docx")
	}
}

func zipWith(files map[string]string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		fw, _ := w.Create(name)
		_, _ = fw.Write([]byte(content))
	}
	_ = w.Close()
	return buf.Bytes()
}

func TestExtractBytes_pptxSlideOrder(t *testing.T) {
	slide := func(text string) string {
		return `<p:sld><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
	}
	content := zipWith(map[string]string{
		"ppt/slides/slide10.xml": slide("Tenth slide"),
		"ppt/slides/slide2.xml":  slide("Second slide"),
		"ppt/slides/slide1.xml":  slide("First slide"),
	})
	got, err := NewExtractor().ExtractBytes(content, ".pptx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "First slide\n\nSecond slide\n\nTenth slide" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_openDocument(t *testing.T) {
	tests := []struct {
		name string
		ext  string
		xml  string
		want string
	}{
		{
			name: "odp in document order",
			ext:  ".odp",
			xml:  `<office:document><draw:page><text:h text:outline-level="1">Slide title</text:h><text:p>Body text</text:p></draw:page></office:document>`,
			want: "Slide title Body text",
		},
		{
			name: "ods cells",
			ext:  ".ods",
			xml:  `<office:document><table:table-cell><text:p>Cell A</text:p></table:table-cell><table:table-cell><text:span>Cell B</text:span></table:table-cell></office:document>`,
			want: "Cell A Cell B",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewExtractor().ExtractBytes(zipWith(map[string]string{"content.xml": tt.xml}), tt.ext)
			if err != nil {
				t.Fatalf("ExtractBytes: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractBytes_openDocumentMissingContent(t *testing.T) {
	for _, ext := range []string{".odp", ".ods"} {
		if _, err := NewExtractor().ExtractBytes(zipWith(map[string]string{"other.xml": "x"}), ext); err == nil {
			t.Errorf("%s: expected error when content.xml missing", ext)
		}
	}
}

func TestRegister_overrides(t *testing.T) {
	e := NewExtractor()
	e.Register(func([]byte) (string, error) { return "custom", nil }, ".PDF")
	got, err := e.ExtractBytes(nil, ".pdf")
	if err != nil || got != "custom" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestExtensionOf(t *testing.T) {
	tests := map[string]string{
		"doc.pdf":             ".pdf",
		"uploads/a/B.DOCX":    ".docx",
		"uploads/v1.2/readme": "",
		"noext":               "",
		`win\path\file.TXT`:   ".txt",
	}
	for key, want := range tests {
		if got := ExtensionOf(key); got != want {
			t.Errorf("ExtensionOf(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestSupportedExtensions(t *testing.T) {
	exts := NewExtractor().SupportedExtensions()
	want := map[string]bool{".pdf": false, ".docx": false, ".txt": false}
	for _, e := range exts {
		if _, ok := want[e]; ok {
			want[e] = true
		}
	}
	for e, seen := range want {
		if !seen {
			t.Errorf("missing %s in %v", e, exts)
		}
	}
}
