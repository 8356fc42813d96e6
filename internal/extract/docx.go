package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// maxDOCXPart bounds the decompressed size of a single zip entry.
const maxDOCXPart = 64 << 20

type docxBody struct {
	Paragraphs []docxParagraph `xml:"body>p"`
}

type docxParagraph struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Text []string   `xml:"t"`
	Tabs []struct{} `xml:"tab"`
}

type docxCore struct {
	Title string `xml:"title"`
}

func extractDOCX(content []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a zip archive", ErrInvalidDocument)
	}

	body, err := readZipPart(zr, "word/document.xml")
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("%w: word/document.xml missing", ErrInvalidDocument)
	}

	var doc docxBody
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	paragraphs := make([]string, 0, len(doc.Paragraphs))
	for _, p := range doc.Paragraphs {
		var sb strings.Builder
		for _, r := range p.Runs {
			for range r.Tabs {
				sb.WriteByte('\t')
			}
			for _, t := range r.Text {
				sb.WriteString(t)
			}
		}
		if line := strings.TrimSpace(sb.String()); line != "" {
			paragraphs = append(paragraphs, line)
		}
	}

	out := &Document{Text: strings.Join(paragraphs, "\n")}

	if core, err := readZipPart(zr, "docProps/core.xml"); err == nil && core != nil {
		var props docxCore
		if xml.Unmarshal(core, &props) == nil {
			out.Title = strings.TrimSpace(props.Title)
		}
	}
	return out, nil
}

// readZipPart returns the named entry, or nil when it does not exist.
func readZipPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", ErrInvalidDocument, name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, maxDOCXPart+1))
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidDocument, name, err)
		}
		if len(data) > maxDOCXPart {
			return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidDocument, name, maxDOCXPart)
		}
		return data, nil
	}
	return nil, nil
}
