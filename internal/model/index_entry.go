package model

import "encoding/json"

const SharedOwner = "shared"

type IndexEntry struct {
	ID        string          `json:"id"`
	Type      DocType         `json:"type"`
	OwnerID   string          `json:"ownerId"`
	UserName  string          `json:"userName,omitempty"`
	Subject   string          `json:"subject,omitempty"`
	Chapter   string          `json:"chapter,omitempty"`
	Title     string          `json:"title,omitempty"`
	Timestamp int64           `json:"timestamp"`
	MDPath    string          `json:"mdPath,omitempty"`
	ImagePath string          `json:"imagePath,omitempty"`
	FilePath  string          `json:"filePath,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type IndexQuery struct {
	OwnerID string
	Subject string
	Type    DocType
	Limit   int
}
