package pdftext

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// Extract decodes the plain text of a PDF held in memory.
//
// The pdf package panics on some malformed files; scanned petitions
// come off a government portal so that case is recovered into an error
// instead of taking down the batch.
func Extract(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf decode panic: %v", r)
		}
	}()

	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return "", fmt.Errorf("content is not a pdf (%d bytes)", len(data))
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	if len(bytes.TrimSpace(out)) == 0 {
		return "", fmt.Errorf("pdf contains no extractable text")
	}
	return string(out), nil
}
