package capture

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/famlearn/internal/model"
)

var (
	ErrBusy     = errors.New("capture queue is busy")
	ErrNoImages = errors.New("no images to process")
)

// Analyzer runs OCR over one encoded image.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, encoded string) (*model.ImageAnalysis, error)
}

// PageError reports the page that stopped a batch.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// Record is one emitted page together with the image it came from.
type Record struct {
	Item  *model.ScannedItem
	Image Image
}

type State struct {
	Running bool   `json:"running"`
	BatchID string `json:"batchId,omitempty"`
	Page    int    `json:"page"`
	Total   int    `json:"total"`
}

// Queue feeds images to the analyzer one at a time. At most one analysis
// call is in flight per queue.
type Queue struct {
	analyzer Analyzer
	ownerID  string
	now      func() time.Time

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

func NewQueue(analyzer Analyzer, ownerID string) *Queue {
	return &Queue{analyzer: analyzer, ownerID: ownerID, now: time.Now}
}

func (q *Queue) begin(ctx context.Context, total int) (context.Context, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state.Running {
		return nil, ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.state = State{Running: true, Total: total}
	if total >= 2 {
		q.state.BatchID = "exam_" + strconv.FormatInt(q.now().UnixMilli(), 10)
	}
	return ctx, nil
}

func (q *Queue) finish() {
	q.mu.Lock()
	cancel := q.cancel
	q.cancel = nil
	q.state = State{}
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (q *Queue) advance(page int) {
	q.mu.Lock()
	q.state.Page = page
	q.mu.Unlock()
}

// State returns a snapshot of the running batch. It is zero when idle.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Cancel stops the running batch. A result that arrives afterwards is dropped.
func (q *Queue) Cancel() {
	q.mu.Lock()
	cancel := q.cancel
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run analyses images in input order and calls emit after each success. The
// first failure aborts the remaining pages; records already emitted stay
// emitted. It returns the number of emitted records.
func (q *Queue) Run(ctx context.Context, images []Image, emit func(Record)) (int, error) {
	if len(images) == 0 {
		return 0, ErrNoImages
	}
	ctx, err := q.begin(ctx, len(images))
	if err != nil {
		return 0, err
	}
	defer q.finish()
	batchID := q.State().BatchID
	logger := logutil.GetLogger(ctx).With(zap.String("batch_id", batchID), zap.Int("total", len(images)))

	emitted := 0
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return emitted, err
		}
		q.advance(i + 1)
		res, err := q.analyzer.AnalyzeImage(ctx, img.Encoded)
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Info("capture cancelled, dropping in-flight result", zap.Int("page", i+1))
			return emitted, ctxErr
		}
		if err != nil {
			logger.Error("capture aborted", zap.Int("page", i+1), zap.String("image", img.Name), zap.Error(err))
			return emitted, &PageError{Page: i + 1, Err: err}
		}
		item := q.newItem(res)
		if batchID != "" {
			item.ID = item.ID + "-" + strconv.Itoa(i+1)
			item.ParentExamID = batchID
			item.PageNumber = i + 1
			item.TotalPages = len(images)
		}
		emit(Record{Item: item, Image: img})
		emitted++
	}
	logger.Info("capture batch finished", zap.Int("emitted", emitted))
	return emitted, nil
}

func (q *Queue) newItem(res *model.ImageAnalysis) *model.ScannedItem {
	now := q.now()
	meta := res.Meta
	meta.Problems = append([]model.ProblemUnit(nil), res.Meta.Problems...)
	return &model.ScannedItem{
		ID:          strconv.FormatInt(now.UnixMilli(), 10),
		OwnerID:     q.ownerID,
		Timestamp:   now.UnixMilli(),
		RawMarkdown: res.Text,
		Meta:        meta,
		Status:      model.ProcessingCompleted,
	}
}

// Recognize is the single image flow. The returned draft can be edited and
// then saved explicitly.
func (q *Queue) Recognize(ctx context.Context, img Image) (*Draft, error) {
	ctx, err := q.begin(ctx, 1)
	if err != nil {
		return nil, err
	}
	defer q.finish()
	q.advance(1)
	res, err := q.analyzer.AnalyzeImage(ctx, img.Encoded)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}
	return &Draft{item: q.newItem(res), image: img}, nil
}
