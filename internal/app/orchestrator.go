package service

import (
	"context"
	"fmt"

	"github.com/okian/grader/internal/adapters/llm"
	"github.com/okian/grader/internal/domain/grading"
	"github.com/okian/grader/internal/domain/model"
	"github.com/okian/grader/internal/domain/rubric"
	"github.com/okian/grader/internal/util"
	"github.com/okian/grader/pkg/logger"
	"github.com/okian/grader/pkg/metrics"
)

// Settings are the per-request grading knobs. Empty fields take the
// orchestrator defaults.
type Settings struct {
	Mode        string   `json:"mode,omitempty"`
	Subject     string   `json:"subject,omitempty"`
	Language    string   `json:"language,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Model       string   `json:"model,omitempty"`
}

func (s Settings) merge(def Settings) Settings {
	if s.Mode == "" {
		s.Mode = def.Mode
	}
	if s.Subject == "" {
		s.Subject = def.Subject
	}
	if s.Language == "" {
		s.Language = def.Language
	}
	if s.Temperature == nil {
		s.Temperature = def.Temperature
	}
	if s.Model == "" {
		s.Model = def.Model
	}
	return s
}

func (s Settings) temperature() float64 {
	var t float64
	if s.Temperature != nil {
		t = *s.Temperature
	}
	return grading.EffectiveTemperature(s.Mode, t)
}

func (s Settings) prompt() grading.PromptOptions {
	return grading.PromptOptions{Subject: s.Subject, Mode: s.Mode, Language: s.Language}
}

// GradeRequest is one whole-submission grading call.
type GradeRequest struct {
	Pages  []model.Page
	Rubric string
	// Compiled skips rubric compilation when set.
	Compiled *rubric.Compiled
	Settings Settings
}

// GridRequest is one collage grid grading call.
type GridRequest struct {
	Image    []byte // PNG
	Label    string
	Valid    []int
	Compiled *rubric.Compiled
	Settings Settings
}

// OrchestratorConfig wires an Orchestrator.
type OrchestratorConfig struct {
	Profiles   *grading.Profiles
	Pricing    *grading.Pricing
	Reconciler *grading.Reconciler
	Rubrics    *rubric.Cache
	Defaults   Settings
	// IdentityModel reads page headers; empty uses the grading model.
	IdentityModel string
	InferChecks   bool
	FixTotals     bool
	Logger        logger.Logger
}

// Orchestrator runs the prompt, parse, reconcile and price pipeline for one
// grading unit. It never retries; retries belong to the client middleware.
type Orchestrator struct {
	client        llm.Client
	profiles      *grading.Profiles
	pricing       *grading.Pricing
	rec           *grading.Reconciler
	rubrics       *rubric.Cache
	defaults      Settings
	identityModel string
	inferChecks   bool
	fixTotals     bool
	logger        logger.Logger
}

// NewOrchestrator builds an orchestrator around client. Nil config fields get
// the built-in profiles, pricing, a metrics-observing reconciler and a
// 128-entry rubric cache.
func NewOrchestrator(client llm.Client, cfg OrchestratorConfig) (*Orchestrator, error) {
	o := &Orchestrator{
		client:        client,
		profiles:      cfg.Profiles,
		pricing:       cfg.Pricing,
		rec:           cfg.Reconciler,
		rubrics:       cfg.Rubrics,
		defaults:      cfg.Defaults,
		identityModel: cfg.IdentityModel,
		inferChecks:   cfg.InferChecks,
		fixTotals:     cfg.FixTotals,
		logger:        cfg.Logger,
	}
	if o.profiles == nil {
		o.profiles = grading.DefaultProfiles()
	}
	if o.pricing == nil {
		o.pricing = grading.DefaultPricing()
	}
	if o.rec == nil {
		o.rec = grading.NewReconciler(grading.WithObserver(metrics.GradingObserver{}))
	}
	if o.rubrics == nil {
		c, err := rubric.NewCache(0)
		if err != nil {
			return nil, err
		}
		o.rubrics = c
	}
	if o.defaults.Mode == "" {
		o.defaults.Mode = grading.ModeStrict
	}
	if o.identityModel == "" {
		o.identityModel = o.defaults.Model
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("orchestrator")
	}
	return o, nil
}

// Reconciler returns the reconciler shared with collage scatter.
func (o *Orchestrator) Reconciler() *grading.Reconciler { return o.rec }

// Compile parses rubric text through the cache. A rubric that cannot be
// parsed or has no question label is ErrEmptyRubric.
func (o *Orchestrator) Compile(text, subject string) (*rubric.Compiled, error) {
	if subject == "" {
		subject = o.defaults.Subject
	}
	c, err := o.rubrics.Compile(text, rubric.CompileOptions{
		Subject:     subject,
		InferChecks: o.inferChecks,
		FixTotals:   o.fixTotals,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmptyRubric, err)
	}
	if len(c.Labels) == 0 {
		return nil, ErrEmptyRubric
	}
	return c, nil
}

// Grade grades one submission. Every failure yields a degraded response
// whose general comment carries the reason.
func (o *Orchestrator) Grade(ctx context.Context, req GradeRequest) *grading.Response {
	resp, _ := o.grade(ctx, req)
	return resp
}

func (o *Orchestrator) grade(ctx context.Context, req GradeRequest) (*grading.Response, error) {
	s := req.Settings.merge(o.defaults)

	compiled := req.Compiled
	if compiled == nil {
		c, err := o.Compile(req.Rubric, s.Subject)
		if err != nil {
			return grading.Degraded(err.Error()), err
		}
		compiled = c
	}
	if len(req.Pages) == 0 {
		return grading.Degraded(ErrNoPages.Error()), ErrNoPages
	}

	tr := grading.NewTracker(func(from, to grading.Stage) {
		o.logger.Debug(ctx, "grading stage",
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})

	_ = tr.Move(grading.StageRequesting)
	reply, err := o.client.Generate(ctx, llm.Request{
		Model:       s.Model,
		Purpose:     llm.PurposeGrading,
		Prompt:      o.profiles.GradingPrompt(s.prompt(), compiled.Text),
		Images:      images(req.Pages),
		Schema:      grading.ResponseSchema(),
		Temperature: s.temperature(),
	})
	if err != nil {
		_ = tr.Fail()
		o.logger.Warn(ctx, "grading call failed", logger.Error(err))
		return grading.Degraded(err.Error()), err
	}
	cost := o.price(reply, s.Model, llm.PurposeGrading)

	_ = tr.Move(grading.StageParsing)
	resp, err := grading.DecodeResponse(reply.Text)
	if err != nil {
		_ = tr.Fail()
		o.logger.Warn(ctx, "grading reply rejected", logger.Error(err))
		d := grading.Degraded(err.Error())
		d.AddCost(grading.CostGrading, cost)
		return d, err
	}

	_ = tr.Move(grading.StageReconciling)
	grading.SanitizeResponse(resp)
	o.rec.Reconcile(resp, compiled)
	resp.StudentInfo.Name = grading.BlankUnknown(resp.StudentInfo.Name)
	resp.StudentInfo.ID = grading.BlankUnknown(resp.StudentInfo.ID)
	resp.AddCost(grading.CostGrading, cost)

	_ = tr.Move(grading.StageDone)
	return resp, nil
}

// GradeGrid grades one collage grid. The returned cost is owed even when the
// reply could not be decoded.
func (o *Orchestrator) GradeGrid(ctx context.Context, req GridRequest) (*grading.GridResponse, float64, error) {
	s := req.Settings.merge(o.defaults)
	if req.Compiled == nil {
		return nil, 0, ErrEmptyRubric
	}

	reply, err := o.client.Generate(ctx, llm.Request{
		Model:       s.Model,
		Purpose:     llm.PurposeGrid,
		Prompt:      o.profiles.GridPrompt(s.prompt(), req.Label, req.Valid, req.Compiled.Text),
		Images:      []llm.Image{{Data: req.Image, MIME: "image/png"}},
		Schema:      grading.GridSchema(),
		Temperature: s.temperature(),
	})
	if err != nil {
		return nil, 0, err
	}
	cost := o.price(reply, s.Model, llm.PurposeGrid)

	g, err := grading.DecodeGrid(reply.Text)
	if err != nil {
		return nil, cost, err
	}
	return grading.SanitizeGrid(g), cost, nil
}

// Identify reads the handwritten name and student id from a header image.
func (o *Orchestrator) Identify(ctx context.Context, header model.Page) (grading.Identity, float64, error) {
	reply, err := o.client.Generate(ctx, llm.Request{
		Model:   o.identityModel,
		Purpose: llm.PurposeIdentity,
		Prompt:  grading.IdentityPrompt,
		Images:  images([]model.Page{header}),
		Schema:  grading.IdentitySchema(),
	})
	if err != nil {
		return grading.Identity{}, 0, err
	}
	cost := o.price(reply, o.identityModel, llm.PurposeIdentity)
	id, err := grading.DecodeIdentity(reply.Text)
	if err != nil {
		return grading.Identity{}, cost, err
	}
	return id, cost, nil
}

func (o *Orchestrator) price(reply *llm.Reply, requested, purpose string) float64 {
	m := reply.Model
	if m == "" {
		m = requested
	}
	cost := o.pricing.Cost(m, reply.Usage)
	metrics.RecordCost(purpose, cost)
	return cost
}

func images(pages []model.Page) []llm.Image {
	out := make([]llm.Image, 0, len(pages))
	for _, p := range pages {
		out = append(out, llm.Image{Data: p.Data, MIME: util.PickMIME(p.MIME, "", p.Data)})
	}
	return out
}
