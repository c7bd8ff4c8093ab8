package model

type UploadStatus string

const (
	UploadPending UploadStatus = "pending"
	UploadMerging UploadStatus = "merging"
	UploadMerged  UploadStatus = "merged"
	UploadFailed  UploadStatus = "failed"
)

type UploadSession struct {
	FileID      string       `json:"fileId"`
	FileName    string       `json:"fileName"`
	OwnerID     string       `json:"ownerId"`
	TotalChunks int          `json:"totalChunks"`
	Received    []int        `json:"receivedChunks"`
	Status      UploadStatus `json:"status"`
	FilePath    string       `json:"filePath,omitempty"`
	Ctime       int64        `json:"ctime"`
	Mtime       int64        `json:"mtime"`
}

// HasChunk reports whether idx was recorded as received.
func (s *UploadSession) HasChunk(idx int) bool {
	for _, v := range s.Received {
		if v == idx {
			return true
		}
	}
	return false
}
