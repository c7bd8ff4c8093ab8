package model

type FileFormat string

const (
	FormatPDF  FileFormat = "pdf"
	FormatEPUB FileFormat = "epub"
	FormatTXT  FileFormat = "txt"
)

type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type ChapterNode struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Level     int            `json:"level"`
	PageRange *PageRange     `json:"pageRange,omitempty"`
	Children  []*ChapterNode `json:"children,omitempty"`
}

type BookMetadata struct {
	Title           string         `json:"title"`
	Author          string         `json:"author,omitempty"`
	Subject         string         `json:"subject,omitempty"`
	Category        string         `json:"category,omitempty"`
	Grade           string         `json:"grade,omitempty"`
	Publisher       string         `json:"publisher,omitempty"`
	PublishDate     string         `json:"publishDate,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	TableOfContents []*ChapterNode `json:"tableOfContents,omitempty"`
}

type BookRecord struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"ownerId"`
	FileFormat FileFormat `json:"fileFormat"`
	FileSize   int64      `json:"fileSize"`
	FilePath   string     `json:"filePath"`
	Status     string     `json:"status"`
	Ctime      int64      `json:"ctime"`
	Mtime      int64      `json:"mtime"`
	BookMetadata
}

type ParsedBook struct {
	FileName   string        `json:"fileName"`
	FileFormat FileFormat    `json:"fileFormat"`
	FileSize   int64         `json:"fileSize"`
	PageCount  int           `json:"pageCount"`
	Content    string        `json:"content"`
	Metadata   *BookMetadata `json:"metadata"`
}
