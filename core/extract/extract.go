// Package extract turns uploaded documents (PDF, DOCX, RTF, plain text) into normalized plain text.
package extract

import (
	"bytes"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/alloqly/alloqly/core"
)

type Format string

// MaxFilenameLen bounds the recorded name of an uploaded file.
const MaxFilenameLen = 255

const (
	PDF  Format = "pdf"
	DOCX Format = "docx"
	RTF  Format = "rtf"
	Text Format = "text"
)

var (
	// errors
	ErrUnsupportedFormat = errors.New("unsupported file format: upload a PDF, DOCX, RTF or plain text file")
	ErrUnreadable        = errors.New("the document could not be read")
	ErrEmptyDocument     = errors.New("no extractable text found in the document")
	ErrTooLarge          = errors.New("the file is too large")

	pdfMagic  = []byte("%PDF-")
	zipMagic  = []byte("PK\x03\x04")
	rtfMagic  = []byte(`{\rtf`)
	utf8BOM   = []byte("\xEF\xBB\xBF")
	extFormat = map[string]Format{
		".pdf":  PDF,
		".docx": DOCX,
		".rtf":  RTF,
		".txt":  Text,
		".text": Text,
		".md":   Text,
	}
)

// Result is the outcome of an extraction.
type Result struct {
	Text      string `json:"text"`
	Format    Format `json:"format"`
	Filename  string `json:"filename,omitempty"`
	Chars     int    `json:"chars"`
	Truncated bool   `json:"truncated"`
}

type Extractor struct {
	maxBytes int64
	maxChars int
}

func NewExtractor(conf core.UploadsConfig) *Extractor {
	return &Extractor{maxBytes: conf.MaxBytes, maxChars: conf.MaxChars}
}

// MaxBytes is the largest accepted upload.
func (ex *Extractor) MaxBytes() int64 { return ex.maxBytes }

// Extract reads the document in r, detects its format and returns its normalized, truncated text.
func (ex *Extractor) Extract(r io.Reader, filename string) (Result, error) {
	lr := r
	if ex.maxBytes > 0 {
		lr = io.LimitReader(r, ex.maxBytes+1)
	}
	data, err := io.ReadAll(lr)
	if err != nil {
		return Result{}, errors.Wrap(err, "reading upload")
	}
	if ex.maxBytes > 0 && int64(len(data)) > ex.maxBytes {
		return Result{}, ErrTooLarge
	}
	if len(data) == 0 {
		return Result{}, ErrEmptyDocument
	}

	format, err := Detect(data, filename)
	if err != nil {
		return Result{}, err
	}

	var raw string
	switch format {
	case PDF:
		raw, err = pdfText(data)
	case DOCX:
		raw, err = docxText(data)
	case RTF:
		raw = rtfText(data)
	default:
		raw = plainText(data)
	}
	if err != nil {
		return Result{}, err
	}

	res, err := ex.FromText(raw)
	if err != nil {
		return Result{}, err
	}
	res.Format = format
	res.Filename = path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if res.Filename == "." || res.Filename == "/" {
		res.Filename = ""
	}
	res.Filename = core.TruncateRunes(res.Filename, MaxFilenameLen)
	return res, nil
}

// FromText normalizes and truncates pasted text.
func (ex *Extractor) FromText(text string) (Result, error) {
	text = Normalize(text)
	text, truncated := Truncate(text, ex.maxChars)
	if text == "" {
		return Result{}, ErrEmptyDocument
	}
	return Result{
		Text:      text,
		Format:    Text,
		Chars:     utf8.RuneCountInString(text),
		Truncated: truncated,
	}, nil
}

// Detect sniffs the format of data: magic bytes first, then the filename extension, then valid UTF-8.
func Detect(data []byte, filename string) (Format, error) {
	switch {
	case bytes.HasPrefix(data, pdfMagic):
		return PDF, nil
	case bytes.HasPrefix(data, zipMagic):
		if isDOCX(data) {
			return DOCX, nil
		}
		return "", ErrUnsupportedFormat
	case bytes.HasPrefix(bytes.TrimPrefix(data, utf8BOM), rtfMagic):
		return RTF, nil
	}

	if format, ok := extFormat[strings.ToLower(path.Ext(filename))]; ok {
		if format != Text || bytes.IndexByte(data, 0) < 0 {
			return format, nil
		}
		return "", ErrUnsupportedFormat
	}
	if isText(data) {
		return Text, nil
	}
	return "", ErrUnsupportedFormat
}

func isText(data []byte) bool {
	return utf8.Valid(data) && bytes.IndexByte(data, 0) < 0
}

func plainText(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	return strings.ToValidUTF8(string(data), "�")
}
