package parser

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/famlearn/internal/model"
)

func TestExtractTOC_DetectsAndNests(t *testing.T) {
	text := strings.Join([]string{
		"封面",
		"第一章 数与代数",
		"第1节 加法",
		"1.1.1 进位加法",
		"第2节 减法",
		"Chapter 2 Geometry",
		"2.1 Lines",
		"一、复习题",
		"这一行非常非常长" + strings.Repeat("长", 60),
		"第二章",
	}, "\n")

	toc := ExtractTOC(text)
	require.Len(t, toc, 3)

	require.Equal(t, "数与代数", toc[0].Title)
	require.Equal(t, 1, toc[0].Level)
	require.Equal(t, "chapter-1", toc[0].ID)
	require.Len(t, toc[0].Children, 2)
	require.Equal(t, "加法", toc[0].Children[0].Title)
	require.Equal(t, 2, toc[0].Children[0].Level)
	require.Len(t, toc[0].Children[0].Children, 1)
	require.Equal(t, 3, toc[0].Children[0].Children[0].Level)
	require.Equal(t, "减法", toc[0].Children[1].Title)

	require.Equal(t, "Geometry", toc[1].Title)
	require.Len(t, toc[1].Children, 1)
	require.Equal(t, "Lines", toc[1].Children[0].Title)

	require.Equal(t, "复习题", toc[2].Title)
}

func TestExtractTOC_SectionWithoutChapterIsRoot(t *testing.T) {
	toc := ExtractTOC("1.2 Orphan section\nplain text")
	require.Len(t, toc, 1)
	require.Equal(t, 2, toc[0].Level)
}

func TestParseTXT(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("第一章 开始\n正文")...)
	res, err := Parse(model.FormatTXT, data)
	require.NoError(t, err)
	require.Equal(t, 1, res.PageCount)
	require.True(t, strings.HasPrefix(res.Content, "第一章"))
	require.Len(t, res.TableOfContents, 1)

	_, err = Parse(model.FormatTXT, []byte{0xff, 0xfe, 0xfd})
	require.Error(t, err)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(model.FormatPDF, nil)
	require.Error(t, err)
	_, err = Parse(model.FormatPDF, []byte("not a pdf at all"))
	require.Error(t, err)
	_, err = Parse(model.FormatEPUB, []byte("not a zip"))
	require.Error(t, err)
	_, err = Parse("docx", []byte("x"))
	require.Error(t, err)
}

func buildEPUB(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestParseEPUB(t *testing.T) {
	data := buildEPUB(t, map[string]string{
		"mimetype": "application/epub+zip",
		"META-INF/container.xml": `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`,
		"OEBPS/content.opf": `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Reading Book</dc:title>
    <dc:creator>Jane Author</dc:creator>
    <dc:subject>English</dc:subject>
  </metadata>
  <manifest>
    <item id="c1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="c2" href="text/ch%202.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine><itemref idref="c1"/><itemref idref="c2"/><itemref idref="missing"/></spine>
</package>`,
		"OEBPS/text/ch1.xhtml": `<html><head><title>Doc One</title><style>p{}</style></head>
<body><h1>Chapter One</h1><p>Hello&nbsp;world.</p><br><p>Second line</p></body></html>`,
		"OEBPS/text/ch 2.xhtml": `<html><head><title>Second Title</title></head><body><p>More text</p></body></html>`,
	})

	res, err := Parse(model.FormatEPUB, data)
	require.NoError(t, err)
	require.Equal(t, 3, res.PageCount)
	require.Equal(t, "Reading Book", res.Estimated.Title)
	require.Equal(t, "Jane Author", res.Estimated.Author)
	require.Equal(t, "English", res.Estimated.Subject)
	require.Len(t, res.TableOfContents, 2)
	require.Equal(t, "Chapter One", res.TableOfContents[0].Title)
	require.Equal(t, "c1", res.TableOfContents[0].ID)
	require.Equal(t, "Second Title", res.TableOfContents[1].Title)
	require.Contains(t, res.Content, "=== Chapter One ===")
	require.Contains(t, res.Content, "Second line")
	require.Contains(t, res.Content, "More text")
	require.NotContains(t, res.Content, "p{}")
}

func TestFormatDetection(t *testing.T) {
	require.Equal(t, model.FormatEPUB, FormatFromName("A.EPUB"))
	require.Equal(t, model.FormatTXT, FormatFromName("notes.txt"))
	require.Equal(t, model.FormatPDF, FormatFromName("book.pdf"))
	require.Equal(t, model.FormatPDF, FormatFromName("noext"))

	f, ok := FormatFromMIME("text/plain; charset=utf-8")
	require.True(t, ok)
	require.Equal(t, model.FormatTXT, f)
	_, ok = FormatFromMIME("application/octet-stream")
	require.False(t, ok)

	require.Equal(t, "数学三年级", TitleFromName("/tmp/数学三年级.PDF"))
}

func TestSummary(t *testing.T) {
	require.Equal(t, "short", Summary("short", 10))
	s := Summary(strings.Repeat("a", 20)+strings.Repeat("b", 20), 10)
	require.True(t, strings.HasPrefix(s, "aaaaa\n"))
	require.True(t, strings.HasSuffix(s, "\nbbbbb"))
}
