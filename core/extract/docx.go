package extract

import (
	"archive/zip"
	"bytes"
	"html"
	"io"
	"regexp"

	"github.com/pkg/errors"
)

const (
	docxDocument   = "word/document.xml"
	docxMaxXMLSize = 50 << 20
)

var (
	docxParaProps = regexp.MustCompile(`(?s)<w:pPr>.*?</w:pPr>`)
	docxParaEnd   = regexp.MustCompile(`</w:p>`)
	docxBreak     = regexp.MustCompile(`<w:(?:br|cr)\b[^>]*/>`)
	docxTab       = regexp.MustCompile(`<w:tab\s*/>`)
	docxTag       = regexp.MustCompile(`<[^>]+>`)
)

func isDOCX(data []byte) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if f.Name == docxDocument {
			return true
		}
	}
	return false
}

// docxText reads word/document.xml and strips its markup.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.Wrap(ErrUnreadable, err.Error())
	}
	for _, f := range zr.File {
		if f.Name != docxDocument {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", errors.Wrap(ErrUnreadable, err.Error())
		}
		defer rc.Close()

		xml, err := io.ReadAll(io.LimitReader(rc, docxMaxXMLSize))
		if err != nil {
			return "", errors.Wrap(ErrUnreadable, err.Error())
		}
		return stripDOCX(string(xml)), nil
	}
	return "", errors.Wrap(ErrUnreadable, "docx: missing "+docxDocument)
}

func stripDOCX(xml string) string {
	xml = docxParaProps.ReplaceAllString(xml, "")
	xml = docxParaEnd.ReplaceAllString(xml, "\n")
	xml = docxBreak.ReplaceAllString(xml, "\n")
	xml = docxTab.ReplaceAllString(xml, "\t")
	xml = docxTag.ReplaceAllString(xml, "")
	return html.UnescapeString(xml)
}
