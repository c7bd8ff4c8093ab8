package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/xxxsen/famlearn/internal/model"
)

const containerPath = "META-INF/container.xml"

type epubContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type epubPackage struct {
	Metadata struct {
		Titles   []string `xml:"title"`
		Creators []string `xml:"creator"`
		Subjects []string `xml:"subject"`
	} `xml:"metadata"`
	Manifest []struct {
		ID        string `xml:"id,attr"`
		Href      string `xml:"href,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"manifest>item"`
	Spine []struct {
		IDRef string `xml:"idref,attr"`
	} `xml:"spine>itemref"`
}

func parseEPUB(data []byte) (*Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("epub zip: %w", err)
	}
	var container epubContainer
	if err := decodeZipXML(zr, containerPath, &container); err != nil {
		return nil, fmt.Errorf("epub container: %w", err)
	}
	if len(container.Rootfiles) == 0 || container.Rootfiles[0].FullPath == "" {
		return nil, fmt.Errorf("epub container has no rootfile")
	}
	opfPath := container.Rootfiles[0].FullPath
	var pkg epubPackage
	if err := decodeZipXML(zr, opfPath, &pkg); err != nil {
		return nil, fmt.Errorf("epub package: %w", err)
	}

	hrefs := make(map[string]string, len(pkg.Manifest))
	for _, item := range pkg.Manifest {
		hrefs[item.ID] = item.Href
	}
	base := path.Dir(opfPath)
	res := &Result{
		PageCount: len(pkg.Spine),
		Estimated: model.BookMetadata{
			Title:   firstNonEmpty(pkg.Metadata.Titles),
			Author:  firstNonEmpty(pkg.Metadata.Creators),
			Subject: strings.Join(pkg.Metadata.Subjects, ", "),
		},
	}
	var sb strings.Builder
	for i, ref := range pkg.Spine {
		href, ok := hrefs[ref.IDRef]
		if !ok {
			continue
		}
		if unescaped, err := url.PathUnescape(href); err == nil {
			href = unescaped
		}
		raw, err := readZipFile(zr, path.Join(base, href))
		if err != nil {
			continue
		}
		title, text := extractXHTML(raw)
		if title != "" {
			id := ref.IDRef
			if id == "" {
				id = fmt.Sprintf("chapter-%d", i)
			}
			res.TableOfContents = append(res.TableOfContents, &model.ChapterNode{ID: id, Title: title, Level: 1})
		}
		if text == "" {
			continue
		}
		if title == "" {
			title = ref.IDRef
		}
		fmt.Fprintf(&sb, "\n\n=== %s ===\n\n%s\n", title, text)
	}
	res.Content = sb.String()
	return res, nil
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	f := findZipFile(zr, name)
	if f == nil {
		return nil, fmt.Errorf("%s not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func decodeZipXML(zr *zip.Reader, name string, dst interface{}) error {
	raw, err := readZipFile(zr, name)
	if err != nil {
		return err
	}
	return xml.Unmarshal(raw, dst)
}

// extractXHTML returns the first heading (or the document title) and the
// visible text of a content document.
func extractXHTML(raw []byte) (string, string) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	var (
		out      strings.Builder
		heading  strings.Builder
		docTitle strings.Builder
		skip     int
		inHead   int
		inTitle  bool
		found    bool
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch strings.ToLower(t.Name.Local) {
			case "script", "style":
				skip++
			case "title":
				inTitle = true
			case "h1", "h2", "h3":
				if !found {
					inHead++
				}
			case "p", "div", "br", "li", "tr":
				out.WriteString("\n")
			}
		case xml.EndElement:
			switch strings.ToLower(t.Name.Local) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "title":
				inTitle = false
			case "h1", "h2", "h3":
				if inHead > 0 {
					inHead--
					if inHead == 0 && strings.TrimSpace(heading.String()) != "" {
						found = true
					}
				}
				out.WriteString("\n")
			}
		case xml.CharData:
			if skip > 0 {
				continue
			}
			if inTitle {
				docTitle.Write(t)
				continue
			}
			if inHead > 0 {
				heading.Write(t)
			}
			out.Write(t)
		}
	}
	title := collapseSpaces(heading.String())
	if title == "" {
		title = collapseSpaces(docTitle.String())
	}
	return title, cleanText(out.String())
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cleanText(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if c := collapseSpaces(line); c != "" {
			kept = append(kept, c)
		}
	}
	return strings.Join(kept, "\n")
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
