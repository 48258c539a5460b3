package api_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/grader/internal/adapters/http/api"
	"github.com/okian/grader/internal/adapters/repository"
	service "github.com/okian/grader/internal/app"
	"github.com/okian/grader/internal/domain/grading"
	"github.com/okian/grader/internal/domain/model"
	"github.com/okian/grader/internal/util"
	"github.com/okian/grader/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type mockDeps struct {
	mu        sync.Mutex
	graded    []service.GradeRequest
	submitted []service.SubmitRequest
	limits    []int

	submitErr error
	duplicate bool
	panicky   bool
	batches   map[string]*model.Batch
	updates   chan model.Progress
}

func newMockDeps() *mockDeps {
	return &mockDeps{
		batches: map[string]*model.Batch{
			"b1": {ID: "b1", Status: model.StatusRunning, Total: 2},
		},
		updates: make(chan model.Progress, 4),
	}
}

func (m *mockDeps) Grade(_ context.Context, req service.GradeRequest) *grading.Response {
	if m.panicky {
		panic("boom")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graded = append(m.graded, req)
	return &grading.Response{GeneralComment: "ok", TotalScore: 12}
}

func (m *mockDeps) Submit(_ context.Context, req service.SubmitRequest) (*model.Batch, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return nil, false, m.submitErr
	}
	m.submitted = append(m.submitted, req)
	return &model.Batch{ID: "b1", Status: model.StatusQueued}, m.duplicate, nil
}

func (m *mockDeps) Batch(_ context.Context, id string) (*model.Batch, error) {
	if b, ok := m.batches[id]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("batch %q: %w", id, repository.ErrNotFound)
}

func (m *mockDeps) Batches(_ context.Context, limit int) ([]*model.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits = append(m.limits, limit)
	return []*model.Batch{m.batches["b1"]}, nil
}

func (m *mockDeps) Subscribe(ctx context.Context, id string) (<-chan model.Progress, func(), error) {
	if _, err := m.Batch(ctx, id); err != nil {
		return nil, func() {}, err
	}
	return m.updates, func() {}, nil
}

func (m *mockDeps) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true, "queueSize": 3}
}

func newMux(deps api.Dependencies, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	opts = append([]api.Option{api.WithLogger(logger.NewNop())}, opts...)
	api.NewServer(deps, opts...).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) (code, message string) {
	var out struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(w.Body).Decode(&out)
	return out.Code, out.Message
}

var page = util.MakeDataURL("image/png", base64.StdEncoding.EncodeToString([]byte("fake-png")))

func TestGradeHandler(t *testing.T) {
	Convey("Given the API server", t, func() {
		deps := newMockDeps()
		mux := newMux(deps)

		Convey("When a valid submission is posted", func() {
			body := `{
				"pages": [{"data": "` + page + `"}],
				"rubric": {"questions": [{"id": "1", "points": 10}]},
				"settings": {"mode": "Standard", "temperature": 0.5}
			}`
			w := do(mux, http.MethodPost, "/grade", body)

			Convey("Then the graded response is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var resp grading.Response
				So(json.NewDecoder(w.Body).Decode(&resp), ShouldBeNil)
				So(resp.TotalScore.Float(), ShouldEqual, 12)
			})

			Convey("Then pages and settings reach the service decoded", func() {
				So(deps.graded, ShouldHaveLength, 1)
				got := deps.graded[0]
				So(string(got.Pages[0].Data), ShouldEqual, "fake-png")
				So(got.Pages[0].MIME, ShouldEqual, "image/png")
				So(got.Rubric, ShouldEqual, `{"questions": [{"id": "1", "points": 10}]}`)
				So(got.Settings.Mode, ShouldEqual, grading.ModeStandard)
				So(*got.Settings.Temperature, ShouldEqual, 0.5)
			})
		})

		Convey("When the rubric is sent as a string", func() {
			body := `{"pages": [{"data": "` + page + `", "mime": "image/jpeg"}], "rubric": "questions: []"}`
			w := do(mux, http.MethodPost, "/grade", body)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.graded[0].Rubric, ShouldEqual, "questions: []")
			So(deps.graded[0].Pages[0].MIME, ShouldEqual, "image/jpeg")
		})

		Convey("When the request is malformed", func() {
			p := `[{"data": "` + page + `"}]`
			cases := []struct{ body, want string }{
				{`{invalid json`, "invalid json"},
				{``, "empty body"},
				{`{"rubric": "x"}`, "pages: required"},
				{`{"pages": ` + p + `}`, "rubric: required"},
				{`{"pages": ` + p + `, "rubric": "x", "settings": {"mode": "Loose"}}`, "settings.mode: oneof"},
				{`{"pages": ` + p + `, "rubric": "x", "settings": {"temperature": 3}}`, "settings.temperature: lte"},
				{`{"pages": [{"data": "%%%"}], "rubric": "x"}`, "page 0"},
			}
			for _, tc := range cases {
				w := do(mux, http.MethodPost, "/grade", tc.body)
				code, msg := decodeError(w)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(code, ShouldEqual, "bad_request")
				So(msg, ShouldContainSubstring, tc.want)
			}
			So(deps.graded, ShouldBeEmpty)
		})

		Convey("When the body exceeds the limit", func() {
			small := newMux(deps, api.WithMaxBodyBytes(32))
			w := do(small, http.MethodPost, "/grade", `{"pages": [{"data": "`+page+`"}], "rubric": "x"}`)
			_, msg := decodeError(w)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(msg, ShouldContainSubstring, "exceeds")
		})

		Convey("When the handler panics", func() {
			deps.panicky = true
			w := do(mux, http.MethodPost, "/grade", `{"pages": [{"data": "`+page+`"}], "rubric": "x"}`)
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("When the wrong method is used", func() {
			w := do(mux, http.MethodGet, "/grade", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestBatchHandler(t *testing.T) {
	Convey("Given the API server", t, func() {
		deps := newMockDeps()
		mux := newMux(deps)
		inline := `{
			"strategy": "collage",
			"submissions": [{"key": " alice ", "pages": [{"data": "` + page + `"}]}],
			"rubric": "questions: []",
			"plan": "pro",
			"ignore_first": true,
			"layout_map": [{"page": 0, "boxes": [[0, 0, 10, 10]]}]
		}`

		Convey("When an inline batch is submitted", func() {
			req := httptest.NewRequest(http.MethodPost, "/batches", strings.NewReader(inline))
			req.Header.Set("Idempotency-Key", "exam-7")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then it is accepted", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				var resp struct {
					BatchID   string `json:"batch_id"`
					Status    string `json:"status"`
					Duplicate bool   `json:"duplicate"`
				}
				So(json.NewDecoder(w.Body).Decode(&resp), ShouldBeNil)
				So(resp.BatchID, ShouldEqual, "b1")
				So(resp.Status, ShouldEqual, "queued")
				So(resp.Duplicate, ShouldBeFalse)
			})

			Convey("Then the service sees the decoded request", func() {
				got := deps.submitted[0]
				So(got.Strategy, ShouldEqual, model.StrategyCollage)
				So(got.Submissions[0].Key, ShouldEqual, "alice")
				So(string(got.Submissions[0].Pages[0].Data), ShouldEqual, "fake-png")
				So(got.IdempotencyKey, ShouldEqual, "exam-7")
				So(got.Plan, ShouldEqual, "pro")
				So(got.IgnoreFirst, ShouldBeTrue)
				So(got.LayoutMap, ShouldHaveLength, 1)
				So(got.LayoutMap[0].Boxes[0].W, ShouldEqual, 10)
			})
		})

		Convey("When a prefix batch is submitted", func() {
			w := do(mux, http.MethodPost, "/batches", `{"prefix": "exam/2024", "rubric": "x", "idempotency_key": "k"}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.submitted[0].Prefix, ShouldEqual, "exam/2024")
			So(deps.submitted[0].IdempotencyKey, ShouldEqual, "k")
		})

		Convey("When the idempotency key replays", func() {
			deps.duplicate = true
			w := do(mux, http.MethodPost, "/batches", inline)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"duplicate":true`)
		})

		Convey("When the source is ambiguous or missing", func() {
			both := `{"prefix": "exam", "submissions": [{"pages": [{"data": "` + page + `"}]}], "rubric": "x"}`
			w := do(mux, http.MethodPost, "/batches", both)
			_, msg := decodeError(w)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(msg, ShouldContainSubstring, "prefix")

			w = do(mux, http.MethodPost, "/batches", `{"rubric": "x"}`)
			_, msg = decodeError(w)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(msg, ShouldContainSubstring, "submissions")
		})

		Convey("When the strategy is unknown", func() {
			w := do(mux, http.MethodPost, "/batches", `{"strategy": "diagonal", "prefix": "exam", "rubric": "x"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the service refuses the batch", func() {
			cases := []struct {
				err    error
				status int
			}{
				{service.ErrBackpressure, http.StatusTooManyRequests},
				{service.ErrNotStarted, http.StatusServiceUnavailable},
				{fmt.Errorf("x: %w", service.ErrEmptyRubric), http.StatusBadRequest},
				{fmt.Errorf("x: %w", service.ErrNoSource), http.StatusBadRequest},
				{errors.New("disk on fire"), http.StatusInternalServerError},
			}
			for _, tc := range cases {
				deps.submitErr = tc.err
				w := do(mux, http.MethodPost, "/batches", inline)
				So(w.Code, ShouldEqual, tc.status)
			}

			deps.submitErr = service.ErrBackpressure
			w := do(mux, http.MethodPost, "/batches", inline)
			code, _ := decodeError(w)
			So(code, ShouldEqual, "backpressure")
		})

		Convey("When a batch is read", func() {
			w := do(mux, http.MethodGet, "/batches/b1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var b model.Batch
			So(json.NewDecoder(w.Body).Decode(&b), ShouldBeNil)
			So(b.ID, ShouldEqual, "b1")
			So(b.Total, ShouldEqual, 2)

			w = do(mux, http.MethodGet, "/batches/nope", "")
			code, _ := decodeError(w)
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(code, ShouldEqual, "not_found")
		})

		Convey("When batches are listed", func() {
			w := do(mux, http.MethodGet, "/batches", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"b1"`)

			do(mux, http.MethodGet, "/batches?limit=100000", "")
			So(deps.limits, ShouldResemble, []int{50, 500})

			w = do(mux, http.MethodGet, "/batches?limit=abc", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestStreamHandler(t *testing.T) {
	Convey("Given a server streaming batch progress", t, func() {
		deps := newMockDeps()
		srv := httptest.NewServer(newMux(deps))
		defer srv.Close()
		base := "ws" + strings.TrimPrefix(srv.URL, "http")

		Convey("When a client subscribes to a known batch", func() {
			conn, resp, err := websocket.DefaultDialer.Dial(base+"/batches/b1/events", nil)
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusSwitchingProtocols)
			defer conn.Close()

			deps.updates <- model.Progress{BatchID: "b1", Status: model.StatusRunning, Completed: 1, Total: 2}
			deps.updates <- model.Progress{BatchID: "b1", Status: model.StatusCompleted, Completed: 2, Total: 2}
			close(deps.updates)

			Convey("Then every step arrives followed by a normal close", func() {
				_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
				var frames []model.Progress
				for {
					var msg struct {
						Type     string          `json:"type"`
						Progress *model.Progress `json:"progress"`
					}
					if err := conn.ReadJSON(&msg); err != nil {
						So(websocket.IsCloseError(err, websocket.CloseNormalClosure), ShouldBeTrue)
						break
					}
					So(msg.Type, ShouldEqual, "progress")
					frames = append(frames, *msg.Progress)
				}
				So(frames, ShouldHaveLength, 2)
				So(frames[1].Status, ShouldEqual, model.StatusCompleted)
			})
		})

		Convey("When a client subscribes to an unknown batch", func() {
			_, resp, err := websocket.DefaultDialer.Dial(base+"/batches/nope/events", nil)
			So(err, ShouldNotBeNil)
			So(resp, ShouldNotBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestHealthAndStats(t *testing.T) {
	Convey("Given the API server", t, func() {
		mux := newMux(newMockDeps())

		Convey("Then /healthz serves metrics", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then /stats serves service statistics", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var stats map[string]interface{}
			So(json.NewDecoder(w.Body).Decode(&stats), ShouldBeNil)
			So(stats["started"], ShouldEqual, true)
			So(stats["queueSize"], ShouldEqual, 3)
		})
	})

	Convey("Given a nil mux", t, func() {
		So(func() { api.NewServer(newMockDeps()).Register(context.Background(), nil) }, ShouldPanic)
	})
}

func TestErrorKinds(t *testing.T) {
	Convey("Given wrapped API errors", t, func() {
		cause := errors.New("pages: required")
		err := api.WrapKind("api.grade", api.ErrBadRequest, cause)

		So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
		So(errors.Is(err, api.ErrNotFound), ShouldBeFalse)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(err.Error(), ShouldEqual, "api.grade: bad request: pages: required")
		So(api.NewKind("api.grade", api.ErrBackpressure).Error(), ShouldEqual, "api.grade: backpressure")
	})
}
