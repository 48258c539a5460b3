package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // page decoders
	"image/png"
	"strings"
	"sync/atomic"
	"time"

	_ "golang.org/x/image/webp" // page decoder

	"github.com/okian/grader/internal/adapters/mq/worker"
	"github.com/okian/grader/internal/domain/collage"
	"github.com/okian/grader/internal/domain/grading"
	"github.com/okian/grader/internal/domain/layout"
	"github.com/okian/grader/internal/domain/model"
	"github.com/okian/grader/internal/domain/rubric"
	"github.com/okian/grader/pkg/logger"
	"github.com/okian/grader/pkg/metrics"
)

// Collage phases reported through ProgressFunc.
const (
	PhaseGrading  = "grading"
	PhaseIdentity = "identity"
	PhaseTemplate = "template"
	PhaseGrids    = "grids"
)

// ProgressFunc observes batch progress. It is called concurrently.
type ProgressFunc func(phase string, done, total int)

// BatchRequest is a vertical batch: one grading call per submission.
type BatchRequest struct {
	Submissions []model.Submission
	Rubric      string
	Settings    Settings
	// Workers bounds concurrent grading calls; zero uses the coordinator
	// default.
	Workers  int
	Progress ProgressFunc
}

// CollageRequest is a collage batch: answer regions are cropped, packed into
// grids per question label and graded one grid per call.
type CollageRequest struct {
	BatchRequest
	// LayoutMap is a precomputed layout; when empty the detector is probed.
	LayoutMap   []layout.PageBoxes
	IgnoreFirst bool
}

// CoordinatorConfig wires a Coordinator.
type CoordinatorConfig struct {
	// Workers is the default per-batch concurrency.
	Workers     int
	Detector    layout.Detector
	Packer      *collage.Packer
	ScanLimit   int
	HeaderRatio float64
	Logger      logger.Logger
}

// Coordinator fans submissions out to the orchestrator and reassembles the
// results in submission order. One failed submission never fails the batch.
type Coordinator struct {
	orch        *Orchestrator
	workers     int
	detector    layout.Detector
	packer      *collage.Packer
	scanLimit   int
	headerRatio float64
	logger      logger.Logger
}

// NewCoordinator builds a coordinator over orch.
func NewCoordinator(orch *Orchestrator, cfg CoordinatorConfig) *Coordinator {
	c := &Coordinator{
		orch:        orch,
		workers:     cfg.Workers,
		detector:    cfg.Detector,
		packer:      cfg.Packer,
		scanLimit:   cfg.ScanLimit,
		headerRatio: cfg.HeaderRatio,
		logger:      cfg.Logger,
	}
	if c.workers <= 0 {
		c.workers = 1
	}
	if c.packer == nil {
		c.packer = collage.NewPacker()
	}
	if c.scanLimit <= 0 {
		c.scanLimit = layout.DefaultScanLimit
	}
	if c.headerRatio <= 0 {
		c.headerRatio = 0.15
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("coordinator")
	}
	return c
}

// Orchestrator returns the orchestrator the coordinator grades with.
func (c *Coordinator) Orchestrator() *Orchestrator { return c.orch }

func (c *Coordinator) limit(n int) int {
	if n > 0 {
		return n
	}
	return c.workers
}

// prepare assigns default keys and compiles the rubric. Only the errors it
// returns stop a batch.
func (c *Coordinator) prepare(req BatchRequest) ([]model.Submission, *rubric.Compiled, error) {
	if len(req.Submissions) == 0 {
		return nil, nil, ErrNoSubmissions
	}
	subs := make([]model.Submission, len(req.Submissions))
	seen := make(map[string]struct{}, len(subs))
	for i, s := range req.Submissions {
		if strings.TrimSpace(s.Key) == "" {
			s.Key = fmt.Sprintf("S%03d", i+1)
		}
		if _, dup := seen[s.Key]; dup {
			return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateSubmission, s.Key)
		}
		seen[s.Key] = struct{}{}
		subs[i] = s
	}
	compiled, err := c.orch.Compile(req.Rubric, req.Settings.Subject)
	if err != nil {
		return nil, nil, err
	}
	return subs, compiled, nil
}

func failedResult(i int, sub model.Submission, reason string) model.StudentResult {
	return model.StudentResult{
		Index:     i,
		Key:       sub.Key,
		Response:  grading.Degraded(reason),
		Failed:    true,
		Error:     reason,
		PageCount: len(sub.Pages),
	}
}

// RunBatch grades every submission with one call each, at most Workers at a
// time. Results keep submission order whatever the completion order.
func (c *Coordinator) RunBatch(ctx context.Context, req BatchRequest) ([]model.StudentResult, error) {
	subs, compiled, err := c.prepare(req)
	if err != nil {
		return nil, err
	}

	n := len(subs)
	results := make([]model.StudentResult, n)
	var done atomic.Int64
	report := func() {
		d := int(done.Add(1))
		if req.Progress != nil {
			req.Progress(PhaseGrading, d, n)
		}
	}

	worker.Each(ctx, c.limit(req.Workers), n, func(ctx context.Context, i int) {
		defer report()
		start := time.Now()
		sub := subs[i]
		resp, gerr := c.orch.grade(ctx, GradeRequest{Pages: sub.Pages, Compiled: compiled, Settings: req.Settings})
		metrics.RecordSubmissionGraded(string(model.StrategyVertical), gerr != nil, time.Since(start))

		r := model.StudentResult{
			Index:     i,
			Key:       sub.Key,
			StudentID: resp.StudentInfo.ID,
			Name:      resp.StudentInfo.Name,
			Response:  resp,
			PageCount: len(sub.Pages),
		}
		if gerr != nil {
			r.Failed = true
			r.Error = gerr.Error()
			c.logger.Warn(ctx, "submission failed",
				logger.String("key", sub.Key),
				logger.Error(gerr),
			)
		}
		results[i] = r
	}, func(i int, perr error) {
		results[i] = failedResult(i, subs[i], perr.Error())
		metrics.RecordErrorByComponent("coordinator", "panic")
	})

	return c.finish(ctx, subs, results)
}

// finish fills slots skipped after cancellation.
func (c *Coordinator) finish(ctx context.Context, subs []model.Submission, results []model.StudentResult) ([]model.StudentResult, error) {
	for i := range results {
		if results[i].Response == nil {
			reason := "not graded"
			if err := ctx.Err(); err != nil {
				reason = err.Error()
			}
			results[i] = failedResult(i, subs[i], reason)
		}
	}
	return results, ctx.Err()
}

// acquired is a submission after phase 1.
type acquired struct {
	pages    []image.Image
	identity grading.Identity
	cost     float64
	err      error
}

// RunCollageBatch grades a batch by question label instead of by student.
// Phase 1 decodes pages and reads identities, phase 2 fixes the exam
// template, phase 3 grades one packed grid per call and scatters the cells
// back to their owners. The returned diagnostics report a template
// fallback.
func (c *Coordinator) RunCollageBatch(ctx context.Context, req CollageRequest) ([]model.StudentResult, model.Diagnostics, error) {
	var diag model.Diagnostics
	subs, compiled, err := c.prepare(req.BatchRequest)
	if err != nil {
		return nil, diag, err
	}
	if len(req.LayoutMap) == 0 && c.detector == nil {
		return nil, diag, layout.ErrNoDetector
	}

	n := len(subs)
	limit := c.limit(req.Workers)
	progress := func(phase string, done, total int) {
		if req.Progress != nil {
			req.Progress(phase, done, total)
		}
	}

	// Phase 1.
	acq := make([]acquired, n)
	var identified atomic.Int64
	worker.Each(ctx, limit, n, func(ctx context.Context, i int) {
		defer func() { progress(PhaseIdentity, int(identified.Add(1)), n) }()
		acq[i] = c.acquire(ctx, subs[i])
	}, func(i int, perr error) {
		acq[i] = acquired{err: perr}
	})
	if ctx.Err() != nil {
		return c.abandon(ctx, subs)
	}

	// Phase 2. Hard barrier: no grid is cut before the template is known.
	labels := compiled.Labels
	var tmpl layout.Template
	if len(req.LayoutMap) > 0 {
		tmpl = layout.FromMap(labels, req.LayoutMap)
	} else {
		probe := make([][]image.Image, n)
		for i := range acq {
			probe[i] = acq[i].pages
		}
		res, derr := layout.Determine(ctx, c.detector, probe, labels, layout.Options{
			ScanLimit:   c.scanLimit,
			IgnoreFirst: req.IgnoreFirst,
		})
		if derr != nil {
			return c.abandon(ctx, subs)
		}
		for _, e := range res.Errors {
			diag.Notes = append(diag.Notes, e.Error())
		}
		if res.Fallback {
			diag.TemplateFallback = true
			metrics.RecordTemplateFallback()
			c.logger.Warn(ctx, "no submission matched the rubric layout, using the first submission",
				logger.Int("labels", len(labels)),
				logger.Int("probed", min(n, c.scanLimit)),
			)
		}
	}
	progress(PhaseTemplate, 1, 1)

	// Phase 3.
	board := make(collage.Board, n)
	for i, sub := range subs {
		if acq[i].err != nil {
			continue
		}
		resp := &grading.Response{StudentInfo: grading.StudentInfo{
			Name: acq[i].identity.Name,
			ID:   acq[i].identity.StudentID,
		}}
		if acq[i].cost > 0 {
			resp.AddCost(grading.CostIdentity, acq[i].cost)
		}
		board[sub.Key] = collage.NewAccumulator(resp)
	}

	known := make(map[string]bool, len(labels))
	for _, l := range labels {
		known[l] = true
	}
	var grids []collage.Grid
	for _, label := range labels {
		var crops []collage.Crop
		for _, region := range tmpl {
			if region.Label != label {
				continue
			}
			for i, sub := range subs {
				if acq[i].err != nil || region.Page >= len(acq[i].pages) {
					continue
				}
				img, ok := layout.Crop(acq[i].pages[region.Page], region.Box)
				if !ok {
					continue
				}
				crops = append(crops, collage.Crop{Submission: sub.Key, Image: img})
			}
		}
		grids = append(grids, c.packer.Pack(label, crops)...)
	}
	for _, region := range tmpl {
		if !known[region.Label] {
			diag.Notes = append(diag.Notes, "ungraded region "+region.Label)
		}
	}

	var graded atomic.Int64
	worker.Each(ctx, limit, len(grids), func(ctx context.Context, i int) {
		defer func() { progress(PhaseGrids, int(graded.Add(1)), len(grids)) }()
		c.gradeGrid(ctx, grids[i], compiled, req.Settings, board)
	}, func(i int, perr error) {
		collage.Scatter(grids[i].Manifest, nil, 0, perr.Error(), board, nil, nil)
	})

	results := make([]model.StudentResult, n)
	for i, sub := range subs {
		acc, ok := board[sub.Key]
		if !ok {
			results[i] = failedResult(i, sub, acq[i].err.Error())
			metrics.RecordSubmissionGraded(string(model.StrategyCollage), true, 0)
			continue
		}
		resp := acc.Finish(labels)
		results[i] = model.StudentResult{
			Index:     i,
			Key:       sub.Key,
			StudentID: resp.StudentInfo.ID,
			Name:      resp.StudentInfo.Name,
			Response:  resp,
			PageCount: len(sub.Pages),
		}
		metrics.RecordSubmissionGraded(string(model.StrategyCollage), false, 0)
	}
	res, err := c.finish(ctx, subs, results)
	return res, diag, err
}

func (c *Coordinator) abandon(ctx context.Context, subs []model.Submission) ([]model.StudentResult, model.Diagnostics, error) {
	results := make([]model.StudentResult, len(subs))
	res, err := c.finish(ctx, subs, results)
	return res, model.Diagnostics{}, err
}

// acquire decodes the pages of sub and reads the student's identity from the
// first page header. Identity failures leave the identity blank.
func (c *Coordinator) acquire(ctx context.Context, sub model.Submission) acquired {
	var a acquired
	if len(sub.Pages) == 0 {
		a.err = ErrNoPages
		return a
	}
	for pi, p := range sub.Pages {
		img, _, err := image.Decode(bytes.NewReader(p.Data))
		if err != nil {
			a.err = fmt.Errorf("%w: page %d: %v", ErrDecodePage, pi, err)
			return a
		}
		a.pages = append(a.pages, img)
	}

	header, ok := layout.Header(a.pages[0], c.headerRatio)
	if !ok {
		return a
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, header); err != nil {
		return a
	}
	id, cost, err := c.orch.Identify(ctx, model.Page{Data: buf.Bytes(), MIME: "image/png"})
	a.cost = cost
	if err != nil {
		c.logger.Warn(ctx, "identity extraction failed",
			logger.String("key", sub.Key),
			logger.Error(err),
		)
		return a
	}
	a.identity = id
	return a
}

func (c *Coordinator) gradeGrid(ctx context.Context, g collage.Grid, compiled *rubric.Compiled, s Settings, board collage.Board) {
	m := g.Manifest
	data, err := g.PNG()
	if err != nil {
		collage.Scatter(m, nil, 0, err.Error(), board, nil, nil)
		metrics.RecordGridGraded(true)
		return
	}
	reply, cost, err := c.orch.GradeGrid(ctx, GridRequest{
		Image:    data,
		Label:    m.Label,
		Valid:    m.Populated(),
		Compiled: compiled,
		Settings: s,
	})
	metrics.RecordGridGraded(err != nil)
	failure := ""
	if err != nil {
		failure = err.Error()
		c.logger.Warn(ctx, "grid failed",
			logger.String("grid", m.GridID),
			logger.String("label", m.Label),
			logger.Error(err),
		)
	}
	collage.Scatter(m, reply, cost, failure, board, c.orch.Reconciler(), compiled)
}
