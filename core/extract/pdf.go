package extract

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"
)

// pdfText returns the plain text of every page of the PDF in data.
func pdfText(data []byte) (text string, err error) {
	// the pdf reader panics on some malformed documents
	defer func() {
		if r := recover(); r != nil {
			text, err = "", errors.Wrap(ErrUnreadable, fmt.Sprintf("pdf: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.Wrap(ErrUnreadable, err.Error())
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", errors.Wrap(ErrUnreadable, err.Error())
	}
	buf, err := io.ReadAll(plain)
	if err != nil {
		return "", errors.Wrap(ErrUnreadable, err.Error())
	}
	return string(buf), nil
}
