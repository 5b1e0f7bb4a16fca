// Package pages estimates how many quota pages an uploaded file costs.
package pages

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Fallback is charged for files that are not PDFs or cannot be read.
const Fallback = 1

var pdfMagic = []byte("%PDF-")

func init() {
	api.DisableConfigDir()
}

// Estimate returns the page cost of one file. PDFs cost their page count;
// anything else costs Fallback. On a read error Fallback is returned together
// with the error so the caller can log it. rs is rewound before returning.
func Estimate(rs io.ReadSeeker, name, contentType string) (int, error) {
	defer func() { _, _ = rs.Seek(0, io.SeekStart) }()

	isPDF, err := looksLikePDF(rs, name, contentType)
	if err != nil {
		return Fallback, err
	}
	if !isPDF {
		return Fallback, nil
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return Fallback, err
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(rs, conf)
	if err != nil {
		return Fallback, fmt.Errorf("count pages of %s: %w", name, err)
	}
	if n < 1 {
		return Fallback, nil
	}
	return n, nil
}

// Total sums the estimates of several files. It is never below the number of files.
func Total(counts []int) int {
	total := 0
	for _, c := range counts {
		if c < Fallback {
			c = Fallback
		}
		total += c
	}
	return total
}

func looksLikePDF(rs io.ReadSeeker, name, contentType string) (bool, error) {
	if strings.EqualFold(path.Ext(name), ".pdf") || strings.HasPrefix(contentType, "application/pdf") {
		return true, nil
	}
	head := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(rs, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, err
	}
	return bytes.Equal(head[:n], pdfMagic), nil
}
