package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/grader/internal/adapters/http/api"
	"github.com/okian/grader/internal/adapters/http/swagger"
	"github.com/okian/grader/internal/adapters/llm"
	"github.com/okian/grader/internal/adapters/repository"
	"github.com/okian/grader/internal/adapters/storage"
	"github.com/okian/grader/internal/config"
	"github.com/okian/grader/internal/domain/grading"
	"github.com/okian/grader/pkg/logger"
)

const rubricDoc = `{"questions": [{"id": "1", "points": 10, "rubric": [{"rule_id": "1.S1", "points": 10, "criterion": "answer"}]}]}`

const replyDoc = `{"student_info": {"name": "Lin", "id": "B01"},
 "questions": [{"id": "1", "score": 12, "reasoning": "ok", "breakdown": [
   {"rule_id": "1.S1", "rule": "answer", "score": 12, "comment": "ok", "evidence": "x", "sympy_expr": ""}]}],
 "general_comment": "fine", "total_score": 12}`

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestWiringHelpers(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given the default configuration", t, func() {
		cfg := config.New(ctx)

		convey.Convey("Then pricing keeps the built-in rates", func() {
			p := pricingFrom(cfg)
			convey.So(p.Rate("gemini-2.5-flash").Input, convey.ShouldEqual, 0.075)
			convey.So(p.Rate("gemini-2.5-pro").Input, convey.ShouldEqual, 1.25)
		})

		convey.Convey("Then configured rates override and extend the table", func() {
			cfg.Pricing = map[string]grading.Rate{
				"pro":        {Input: 2, Output: 8},
				"flash-lite": {Input: 0.01, Output: 0.04},
			}
			p := pricingFrom(cfg)
			convey.So(p.Rate("gemini-2.5-pro").Input, convey.ShouldEqual, 2)
			convey.So(p.Rate("gemini-2.5-flash-lite").Input, convey.ShouldEqual, 0.01)
			convey.So(p.Rate("gemini-2.5-flash").Input, convey.ShouldEqual, 0.075)
			convey.So(p.Rate("unknown").Input, convey.ShouldEqual, 2)
		})

		convey.Convey("Then the batch store lives in memory", func() {
			store, err := newStore(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			_, ok := store.(*repository.MemoryStore)
			convey.So(ok, convey.ShouldBeTrue)
		})

		convey.Convey("Then no object source is configured", func() {
			src, err := newObjectSource(cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(src, convey.ShouldBeNil)
		})

		convey.Convey("Then a half configured bucket is an error", func() {
			cfg.S3Endpoint = "localhost:9000"
			cfg.S3Bucket = "scans"
			_, err := newObjectSource(cfg)
			convey.So(errors.Is(err, storage.ErrConfig), convey.ShouldBeTrue)
		})

		convey.Convey("Then the Gemini client needs a key", func() {
			_, err := newModelClient(ctx, cfg, logger.NewNop())
			convey.So(errors.Is(err, llm.ErrMissingAPIKey), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given a flaky model behind the client middleware", t, func() {
		cfg := config.New(ctx)
		cfg.RetryBaseDelayMS = 1
		cfg.RateLimitRPS = 1000
		cfg.RateLimitBurst = 10
		attempts := 0
		inner := llm.NewFakeClient(func(context.Context, llm.Request) (*llm.Reply, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("503 unavailable")
			}
			return &llm.Reply{Text: "ok"}, nil
		})

		reply, err := wrapClient(inner, cfg, logger.NewNop()).Generate(ctx, llm.Request{Prompt: "p"})

		convey.Convey("Then transient failures are retried", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(reply.Text, convey.ShouldEqual, "ok")
			convey.So(attempts, convey.ShouldEqual, 3)
		})
	})
}

func TestServerEndToEnd(t *testing.T) {
	convey.Convey("Given the assembled server over a scripted model", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		client := llm.NewStaticClient(replyDoc, grading.Usage{InputTokens: 1_000_000})

		svc, err := build(ctx, cfg, client, logger.NewNop())
		convey.So(err, convey.ShouldBeNil)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		mux := http.NewServeMux()
		swagger.Register(ctx, mux)
		api.NewServer(svc, api.WithLogger(logger.NewNop())).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		page := base64.StdEncoding.EncodeToString([]byte("scan"))
		rubric, _ := json.Marshal(rubricDoc)

		convey.Convey("When a submission is graded synchronously", func() {
			body := `{"pages": [{"data": "` + page + `", "mime": "image/png"}], "rubric": ` + string(rubric) + `}`
			resp, err := http.Post(srv.URL+"/grade", "application/json", strings.NewReader(body))
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()

			var out grading.Response
			convey.So(json.NewDecoder(resp.Body).Decode(&out), convey.ShouldBeNil)

			convey.Convey("Then the over-scored answer is capped and priced", func() {
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
				convey.So(out.TotalScore.Float(), convey.ShouldEqual, 10)
				convey.So(out.Questions[0].Score.Float(), convey.ShouldEqual, 10)
				convey.So(out.CostUSD, convey.ShouldAlmostEqual, 1.25, 1e-9)
				convey.So(client.Calls()[0].Temperature, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When a batch is submitted", func() {
			body := `{"submissions": [{"pages": [{"data": "` + page + `"}]}, {"pages": [{"data": "` + page + `"}]}], "rubric": ` + string(rubric) + `}`
			resp, err := http.Post(srv.URL+"/batches", "application/json", strings.NewReader(body))
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusAccepted)

			var ack struct {
				BatchID string `json:"batch_id"`
			}
			convey.So(json.NewDecoder(resp.Body).Decode(&ack), convey.ShouldBeNil)

			convey.Convey("Then it completes and can be read back", func() {
				var status string
				var total int
				deadline := time.Now().Add(5 * time.Second)
				for time.Now().Before(deadline) && status != "completed" {
					r, err := http.Get(srv.URL + "/batches/" + ack.BatchID)
					convey.So(err, convey.ShouldBeNil)
					var b struct {
						Status  string `json:"status"`
						Results []any  `json:"results"`
					}
					_ = json.NewDecoder(r.Body).Decode(&b)
					r.Body.Close()
					status, total = b.Status, len(b.Results)
					time.Sleep(10 * time.Millisecond)
				}
				convey.So(status, convey.ShouldEqual, "completed")
				convey.So(total, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("Then the docs and stats are served", func() {
			for _, path := range []string{"/openapi.yaml", "/api-docs", "/stats", "/healthz"} {
				resp, err := http.Get(srv.URL + path)
				convey.So(err, convey.ShouldBeNil)
				resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			}
		})
	})
}
