package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xxxsen/famlearn/internal/model"
)

var (
	ErrSaved          = errors.New("draft already saved")
	ErrUnknownProblem = errors.New("unknown problem")
	ErrInvalidStatus  = errors.New("invalid problem status")
)

// Saver persists a reviewed item with its original image.
type Saver interface {
	SaveScannedItem(ctx context.Context, item *model.ScannedItem, encodedImage string) error
}

// Draft is a recognized page under review. It becomes read only once saved.
type Draft struct {
	mu    sync.Mutex
	item  *model.ScannedItem
	image Image
	saved bool
}

// Item returns a copy of the current item.
func (d *Draft) Item() model.ScannedItem {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := *d.item
	out.Meta.Problems = append([]model.ProblemUnit(nil), d.item.Meta.Problems...)
	return out
}

func (d *Draft) Saved() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saved
}

// SetProblemStatus edits one problem and reclassifies the page.
func (d *Draft) SetProblemStatus(problemID string, status model.ProblemStatus) error {
	status = model.ProblemStatus(strings.ToLower(strings.TrimSpace(string(status))))
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.saved {
		return ErrSaved
	}
	problems := d.item.Meta.Problems
	for i := range problems {
		if problems[i].ID == problemID || problems[i].QuestionNumber == problemID {
			problems[i].Status = status
			reclassify(&d.item.Meta)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownProblem, problemID)
}

func reclassify(meta *model.StructuredMeta) {
	if meta.HasIssues() {
		meta.Type = model.DocWrongProblem
		meta.KnowledgeStatus = model.KnowledgeUnmastered
		return
	}
	meta.KnowledgeStatus = model.KnowledgeMastered
}

// Save hands the item to saver. A failed save leaves the draft editable.
func (d *Draft) Save(ctx context.Context, saver Saver) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.saved {
		return ErrSaved
	}
	if err := saver.SaveScannedItem(ctx, d.item, d.image.Encoded); err != nil {
		return err
	}
	d.saved = true
	return nil
}
