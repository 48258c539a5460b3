package service_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	service "github.com/okian/grader/internal/app"
	"github.com/okian/grader/internal/adapters/llm"
	"github.com/okian/grader/internal/domain/grading"
	"github.com/okian/grader/internal/domain/model"
	"github.com/okian/grader/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const quizRubric = `{
  "exam_title": "Quiz",
  "questions": [
    {"id": "1", "points": 10, "rubric": [
      {"rule_id": "1.S1", "points": 10, "criterion": "Differentiate",
       "check": {"engine": "sympy", "type": "derivative", "expected": "-csc(x)*cot(x)"}}
    ]},
    {"id": "2", "points": 5, "rubric": [
      {"rule_id": "2.S1", "points": 5, "criterion": "Integrate"}
    ]}
  ]
}`

const quizReply = `{
  "student_info": {"name": "Lin", "id": "B01"},
  "questions": [
    {"id": "1", "score": 10, "reasoning": "ok", "breakdown": [
      {"rule_id": "1.S1", "rule": "Differentiate", "score": 10, "comment": "good", "evidence": "-csc x cot x", "sympy_expr": "-csc(x)*cot(x)"}
    ]},
    {"id": "2", "score": 7, "reasoning": "generous", "breakdown": [
      {"rule_id": "2.S1", "rule": "Integrate", "score": 7, "comment": "學生寫：1/3", "evidence": "1/3", "sympy_expr": ""}
    ]}
  ],
  "general_comment": "fine",
  "total_score": 99
}`

// million prices at exactly the input rate of the model.
var million = grading.Usage{InputTokens: 1_000_000}

func newOrchestrator(client llm.Client) *service.Orchestrator {
	o, err := service.NewOrchestrator(client, service.OrchestratorConfig{
		Defaults:      service.Settings{Model: "gemini-2.5-pro", Mode: grading.ModeStrict},
		IdentityModel: "gemini-2.5-flash",
		Logger:        logger.NewNop(),
	})
	if err != nil {
		panic(err)
	}
	return o
}

func pages(tag string) []model.Page {
	return []model.Page{{Data: []byte(tag), MIME: "image/png"}}
}

func pngPage(w, h int) model.Page {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return model.Page{Data: buf.Bytes(), MIME: "image/png"}
}
