package parser

import (
	"bytes"
	"fmt"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/famlearn/internal/model"
)

type Result struct {
	Content         string
	PageCount       int
	Estimated       model.BookMetadata
	TableOfContents []*model.ChapterNode
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func Parse(format model.FileFormat, data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	switch format {
	case model.FormatPDF:
		return parsePDF(data)
	case model.FormatEPUB:
		return parseEPUB(data)
	case model.FormatTXT:
		return parseTXT(data)
	}
	return nil, fmt.Errorf("unsupported file format: %s", format)
}

func parseTXT(data []byte) (*Result, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("txt is not valid utf-8")
	}
	text := string(data)
	return &Result{
		Content:         text,
		PageCount:       1,
		TableOfContents: ExtractTOC(text),
	}, nil
}

// FormatFromName picks the format by extension and falls back to pdf.
func FormatFromName(name string) model.FileFormat {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".epub":
		return model.FormatEPUB
	case ".txt":
		return model.FormatTXT
	}
	return model.FormatPDF
}

func FormatFromMIME(contentType string) (model.FileFormat, bool) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	switch mt {
	case "application/pdf":
		return model.FormatPDF, true
	case "application/epub+zip":
		return model.FormatEPUB, true
	case "text/plain":
		return model.FormatTXT, true
	}
	return "", false
}

var bookExtRegex = regexp.MustCompile(`(?i)\.(pdf|epub|txt)$`)

// TitleFromName strips a known book extension from a file name.
func TitleFromName(name string) string {
	return bookExtRegex.ReplaceAllString(filepath.Base(name), "")
}

// Summary keeps the head and tail of text longer than max runes.
func Summary(text string, max int) string {
	runes := []rune(text)
	if max <= 0 || len(runes) <= max {
		return text
	}
	half := max / 2
	return string(runes[:half]) + "\n\n[...]\n\n" + string(runes[len(runes)-half:])
}
