package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/util"
	"github.com/ppiankov/credence/internal/verify"
)

// maxLineBytes bounds one input line; a JSON line may carry a full claim
const maxLineBytes = 1 << 20

// Verifier runs one verification
type Verifier interface {
	Verify(ctx context.Context, sub model.Submission, userID string) (*verify.Result, error)
}

// Item is one submission read from a batch file
type Item struct {
	Line       int
	Input      string
	Submission model.Submission
}

// VerifyJob verifies one Item
type VerifyJob struct {
	Item     Item
	UserID   string
	Verifier Verifier
	Limiter  *util.Limiter
}

// Execute runs the verification, waiting on the limiter first
func (j *VerifyJob) Execute(ctx context.Context) Result {
	out := &VerifyResult{Line: j.Item.Line, Input: j.Item.Input}
	if j.Limiter != nil {
		if err := j.Limiter.Wait(ctx, "batch"); err != nil {
			out.setError(err)
			return out
		}
	}
	res, err := j.Verifier.Verify(ctx, j.Item.Submission, j.UserID)
	if err != nil {
		out.setError(err)
		return out
	}
	out.Verification = res.Verdict
	out.Cached = res.Cached
	return out
}

// VerifyResult is one line of batch output
type VerifyResult struct {
	Line         int            `json:"line"`
	Input        string         `json:"input"`
	Verification *model.Verdict `json:"verification,omitempty"`
	Cached       bool           `json:"cached,omitempty"`
	Kind         string         `json:"errorKind,omitempty"`
	Message      string         `json:"error,omitempty"`

	Error error `json:"-"`
}

func (r *VerifyResult) setError(err error) {
	r.Error = err
	r.Kind = model.KindOf(err).String()
	r.Message = err.Error()
}

// GetError returns the verification error, if any
func (r *VerifyResult) GetError() error {
	return r.Error
}

// Summary counts batch outcomes
type Summary struct {
	Total    int
	Failures int
	Cached   int
	Labels   map[model.Label]int
}

// Summarize tallies results
func Summarize(results []*VerifyResult) Summary {
	s := Summary{Total: len(results), Labels: make(map[model.Label]int)}
	for _, r := range results {
		if r.Error != nil {
			s.Failures++
			continue
		}
		if r.Cached {
			s.Cached++
		}
		s.Labels[r.Verification.Label]++
	}
	return s
}

// BatchProcessor verifies many submissions concurrently
type BatchProcessor struct {
	verifier    Verifier
	concurrency int
	limiter     *util.Limiter
	userID      string
	logger      *zap.Logger
}

// NewBatchProcessor creates a processor. A non-positive rate disables
// throttling.
func NewBatchProcessor(v Verifier, concurrency int, requestsPerSecond float64, burst int) *BatchProcessor {
	var limiter *util.Limiter
	if requestsPerSecond > 0 {
		limiter = util.NewLimiter(requestsPerSecond, burst)
	}
	return &BatchProcessor{
		verifier:    v,
		concurrency: concurrency,
		limiter:     limiter,
		logger:      zap.NewNop(),
	}
}

// WithUserID attributes every verification to userID
func (b *BatchProcessor) WithUserID(userID string) *BatchProcessor {
	b.userID = userID
	return b
}

// WithLogger sets the logger
func (b *BatchProcessor) WithLogger(l *zap.Logger) *BatchProcessor {
	b.logger = l
	return b
}

// ProcessItems verifies items and returns results in input order
func (b *BatchProcessor) ProcessItems(ctx context.Context, items []Item) []*VerifyResult {
	if len(items) == 0 {
		return []*VerifyResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	go func() {
		defer pool.Close()
		for _, item := range items {
			job := &VerifyJob{Item: item, UserID: b.userID, Verifier: b.verifier, Limiter: b.limiter}
			if !pool.Submit(job) {
				return
			}
		}
	}()

	results := make([]*VerifyResult, 0, len(items))
	for res := range pool.Results() {
		vr := res.(*VerifyResult)
		if vr.Error != nil {
			b.logger.Warn("batch item failed", zap.Int("line", vr.Line), zap.Error(vr.Error))
		}
		results = append(results, vr)
	}

	// Items never started because ctx ended still get a result line
	if len(results) < len(items) {
		done := make(map[int]bool, len(results))
		for _, r := range results {
			done[r.Line] = true
		}
		cause := context.Cause(ctx)
		if cause == nil {
			cause = errors.New("not processed")
		}
		for _, item := range items {
			if !done[item.Line] {
				r := &VerifyResult{Line: item.Line, Input: item.Input}
				r.setError(model.E(model.KindInternal, "batch", cause))
				results = append(results, r)
			}
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Line < results[j].Line })
	return results
}

// ProcessFile reads items from a file and verifies them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*VerifyResult, error) {
	items, err := ReadItemsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}
	return b.ProcessItems(ctx, items), nil
}

// WriteJSONL writes one JSON object per result
func WriteJSONL(w io.Writer, results []*VerifyResult) error {
	enc := json.NewEncoder(w)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode line %d: %w", r.Line, err)
		}
	}
	return nil
}

// ReadItemsFromFile reads batch items from a file
func ReadItemsFromFile(filePath string) ([]Item, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()
	return ReadItems(file)
}

// batchLine is the JSON form of an input line
type batchLine struct {
	Text        string `json:"text"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
}

// ReadItems parses one submission per line. A line is either a JSON object
// with text/url fields, an absolute URL, or claim text. Blank lines, lines
// starting with # and exact duplicates are skipped.
func ReadItems(r io.Reader) ([]Item, error) {
	var items []Item
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true

		sub, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		items = append(items, Item{Line: lineNo, Input: line, Submission: sub})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}
	return items, nil
}

func parseLine(line string) (model.Submission, error) {
	if !strings.HasPrefix(line, "{") {
		if model.IsAbsoluteURL(line) {
			return model.Submission{URL: line}, nil
		}
		return model.Submission{Text: line}, nil
	}

	var bl batchLine
	if err := json.Unmarshal([]byte(line), &bl); err != nil {
		return model.Submission{}, fmt.Errorf("parse JSON: %w", err)
	}
	sub := model.Submission{Text: bl.Text, URL: bl.URL}
	if bl.ContentType != "" {
		ct, ok := model.ParseContentType(bl.ContentType)
		if !ok {
			return sub, fmt.Errorf("unknown content type %q", bl.ContentType)
		}
		sub.Type = ct
	}
	return sub, nil
}
