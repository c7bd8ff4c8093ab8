package model

type ProblemStatus string

const (
	ProblemCorrect   ProblemStatus = "correct"
	ProblemWrong     ProblemStatus = "wrong"
	ProblemCorrected ProblemStatus = "corrected"
)

func (s ProblemStatus) Valid() bool {
	switch s {
	case ProblemCorrect, ProblemWrong, ProblemCorrected:
		return true
	}
	return false
}

type DocType string

const (
	DocWrongProblem DocType = "wrong_problem"
	DocHomework     DocType = "homework"
	DocNote         DocType = "note"
	DocExam         DocType = "exam_paper"
	DocCourseware   DocType = "courseware"
	DocTextbook     DocType = "textbook"
)

type KnowledgeStatus string

const (
	KnowledgeMastered   KnowledgeStatus = "mastered"
	KnowledgeUnmastered KnowledgeStatus = "unmastered"
)

type ProcessingStatus string

const (
	ProcessingPending   ProcessingStatus = "pending"
	ProcessingRunning   ProcessingStatus = "processing"
	ProcessingCompleted ProcessingStatus = "completed"
	ProcessingFailed    ProcessingStatus = "failed"
)

type ProblemUnit struct {
	ID             string        `json:"id"`
	QuestionNumber string        `json:"questionNumber"`
	Content        string        `json:"content"`
	StudentAnswer  string        `json:"studentAnswer,omitempty"`
	TeacherComment string        `json:"teacherComment,omitempty"`
	Correction     string        `json:"correction,omitempty"`
	Status         ProblemStatus `json:"status"`
}

type StructuredMeta struct {
	Type            DocType         `json:"type"`
	Subject         string          `json:"subject"`
	ChapterHint     string          `json:"chapter_hint,omitempty"`
	KnowledgeStatus KnowledgeStatus `json:"knowledge_status"`
	Problems        []ProblemUnit   `json:"problems"`
}

// HasIssues reports whether any problem was marked wrong or corrected.
func (m *StructuredMeta) HasIssues() bool {
	for _, p := range m.Problems {
		if p.Status == ProblemWrong || p.Status == ProblemCorrected {
			return true
		}
	}
	return false
}

type ScannedItem struct {
	ID           string           `json:"id"`
	OwnerID      string           `json:"ownerId"`
	Timestamp    int64            `json:"timestamp"`
	ImageURL     string           `json:"imageUrl,omitempty"`
	ImagePath    string           `json:"imagePath,omitempty"`
	RawMarkdown  string           `json:"rawMarkdown"`
	Meta         StructuredMeta   `json:"meta"`
	Status       ProcessingStatus `json:"status"`
	ParentExamID string           `json:"parentExamId,omitempty"`
	PageNumber   int              `json:"pageNumber,omitempty"`
	TotalPages   int              `json:"totalPages,omitempty"`
}

type ImageAnalysis struct {
	Text string         `json:"text"`
	Meta StructuredMeta `json:"meta"`
}
