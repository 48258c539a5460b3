package batchclient_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/grader/internal/batchclient"
	"github.com/okian/grader/internal/domain/grading"
	"github.com/okian/grader/internal/domain/model"
	"github.com/okian/grader/internal/domain/rubric"
	"github.com/okian/grader/internal/domain/types"
	"github.com/okian/grader/pkg/logger"
)

const rubricDoc = `{"questions": [
 {"id": "1", "points": 4, "rubric": [{"rule_id": "1.S1", "points": 4, "criterion": "setup"}]},
 {"id": "2", "points": 6, "rubric": [{"rule_id": "2.S1", "points": 6, "criterion": "answer"}]}]}`

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func result(key string, total float64, scores ...float64) model.StudentResult {
	resp := &grading.Response{TotalScore: types.Number(total)}
	for i, s := range scores {
		resp.Questions = append(resp.Questions, grading.Question{
			ID:    types.ID(string(rune('1' + i))),
			Score: types.Number(s),
		})
	}
	return model.StudentResult{Key: key, Response: resp}
}

func TestCollect(t *testing.T) {
	convey.Convey("Given a directory of student folders and loose scans", t, func() {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "s10", "p1.png"), []byte("a"))
		writeFile(t, filepath.Join(dir, "s2", "p10.png"), []byte("c"))
		writeFile(t, filepath.Join(dir, "s2", "p2.jpg"), []byte("b"))
		writeFile(t, filepath.Join(dir, "s2", "notes.txt"), []byte("skip"))
		writeFile(t, filepath.Join(dir, "s3.png"), []byte("d"))
		writeFile(t, filepath.Join(dir, ".hidden", "p1.png"), []byte("x"))
		writeFile(t, filepath.Join(dir, "empty", "readme.md"), []byte("x"))

		subs, err := batchclient.Collect(context.Background(), dir, 2)

		convey.Convey("Then submissions and pages are in natural order", func() {
			convey.So(err, convey.ShouldBeNil)
			keys := make([]string, 0, len(subs))
			for _, s := range subs {
				keys = append(keys, s.Key)
			}
			convey.So(keys, convey.ShouldResemble, []string{"s2", "s3", "s10"})

			convey.So(subs[0].Pages, convey.ShouldHaveLength, 2)
			convey.So(subs[0].Pages[0].Data, convey.ShouldEqual, base64.StdEncoding.EncodeToString([]byte("b")))
			convey.So(subs[0].Pages[0].MIME, convey.ShouldEqual, "image/jpeg")
			convey.So(subs[0].Pages[1].Data, convey.ShouldEqual, base64.StdEncoding.EncodeToString([]byte("c")))
			convey.So(subs[0].Pages[1].MIME, convey.ShouldEqual, "image/png")
			convey.So(subs[1].Pages, convey.ShouldHaveLength, 1)
		})
	})

	convey.Convey("Given a directory without images", t, func() {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "readme.md"), []byte("x"))

		_, err := batchclient.Collect(context.Background(), dir, 1)

		convey.Convey("Then collection fails", func() {
			convey.So(errors.Is(err, batchclient.ErrNoSubmissions), convey.ShouldBeTrue)
		})
	})
}

func TestVerify(t *testing.T) {
	convey.Convey("Given the rubric maxima", t, func() {
		r, err := rubric.Parse(rubricDoc)
		convey.So(err, convey.ShouldBeNil)
		maxima := batchclient.Maxima(r)
		convey.So(maxima, convey.ShouldResemble, map[string]float64{"1": 4, "2": 6})

		convey.Convey("When results are consistent", func() {
			issues := batchclient.Verify([]model.StudentResult{result("S001", 9, 4, 5)}, maxima)

			convey.Convey("Then nothing is reported", func() {
				convey.So(issues, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When a result breaks the rules", func() {
			bad := []model.StudentResult{
				result("S001", 12, 7, 5),
				result("S002", 1, -1, 1),
				{Key: "S003", Failed: true},
			}
			issues := batchclient.Verify(bad, maxima)

			convey.Convey("Then every problem is reported once", func() {
				convey.So(issues, convey.ShouldHaveLength, 3)
				convey.So(issues[0].Key, convey.ShouldEqual, "S001")
				convey.So(issues[0].Question, convey.ShouldEqual, "1")
				convey.So(issues[0].String(), convey.ShouldContainSubstring, "exceeds maximum 4")
				convey.So(issues[1].Key, convey.ShouldEqual, "S002")
				convey.So(issues[1].Problem, convey.ShouldContainSubstring, "negative")
				convey.So(issues[2].Key, convey.ShouldEqual, "S002")
				convey.So(issues[2].Question, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When a question is not in the rubric", func() {
			limit := 2.0
			res := result("S001", 3, 3)
			res.Response.Questions[0].ID = "9"
			res.Response.Questions[0].MaxScore = &limit

			issues := batchclient.Verify([]model.StudentResult{res}, maxima)

			convey.Convey("Then the reported maximum is used", func() {
				convey.So(issues, convey.ShouldHaveLength, 1)
				convey.So(issues[0].Problem, convey.ShouldContainSubstring, "exceeds maximum 2")
			})
		})
	})
}

// fakeService answers the batch API without an events stream, so clients
// fall back to polling.
type fakeService struct {
	polls   atomic.Int32
	results []model.StudentResult
	status  model.Status

	mu  sync.Mutex
	got batchclient.SubmitRequest
}

func (f *fakeService) request() batchclient.SubmitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got
}

func (f *fakeService) finish(status model.Status, results []model.StudentResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status, f.results = status, results
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /batches", func(w http.ResponseWriter, r *http.Request) {
		var req batchclient.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.got = req
		f.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(batchclient.SubmitResponse{BatchID: "b1", Status: model.StatusQueued})
	})
	mux.HandleFunc("GET /batches/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "b1" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"not_found","message":"batch not found"}`))
			return
		}
		f.mu.Lock()
		status, results := f.status, f.results
		f.mu.Unlock()
		b := model.Batch{ID: "b1", Status: model.StatusRunning, Total: len(results)}
		if f.polls.Add(1) >= 2 {
			b.Status = status
			b.Results = results
			b.Completed = len(results)
			b.CostUSD = 0.5
			if status == model.StatusFailed {
				b.Error = "model unavailable"
			}
		}
		_ = json.NewEncoder(w).Encode(b)
	})
	return mux
}

func TestRun(t *testing.T) {
	convey.Convey("Given a scan directory, a rubric and a grading service", t, func() {
		dir := t.TempDir()
		scans := filepath.Join(dir, "scans")
		writeFile(t, filepath.Join(scans, "alice", "p1.png"), []byte("a"))
		writeFile(t, filepath.Join(scans, "bob", "p1.png"), []byte("b"))
		rubricFile := filepath.Join(dir, "rubric.json")
		writeFile(t, rubricFile, []byte(rubricDoc))

		fake := &fakeService{
			status:  model.StatusCompleted,
			results: []model.StudentResult{result("alice", 9, 4, 5), result("bob", 10, 4, 6)},
		}
		srv := httptest.NewServer(fake.handler())
		defer srv.Close()

		cfg := &batchclient.Config{
			BaseURL:        srv.URL,
			Dir:            scans,
			RubricFile:     rubricFile,
			Strategy:       "vertical",
			Mode:           "Strict",
			IdempotencyKey: "exam-1",
			Workers:        2,
			Timeout:        time.Second,
			Wait:           5 * time.Second,
			PollInterval:   5 * time.Millisecond,
			OutputFile:     filepath.Join(dir, "out", "results.json"),
		}

		convey.Convey("When the batch completes cleanly", func() {
			stats, err := batchclient.Run(context.Background(), cfg)

			convey.Convey("Then the run succeeds and the report is written", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(stats.Submissions, convey.ShouldEqual, 2)
				convey.So(stats.Pages, convey.ShouldEqual, 2)
				convey.So(stats.Completed, convey.ShouldEqual, 2)
				convey.So(stats.CostUSD, convey.ShouldEqual, 0.5)

				got := fake.request()
				convey.So(got.IdempotencyKey, convey.ShouldEqual, "exam-1")
				convey.So(got.Settings.Mode, convey.ShouldEqual, "Strict")
				convey.So(got.Submissions, convey.ShouldHaveLength, 2)
				convey.So(got.Submissions[0].Key, convey.ShouldEqual, "alice")

				raw, err := os.ReadFile(cfg.OutputFile)
				convey.So(err, convey.ShouldBeNil)
				var report batchclient.Report
				convey.So(json.Unmarshal(raw, &report), convey.ShouldBeNil)
				convey.So(report.Batch.ID, convey.ShouldEqual, "b1")
				convey.So(report.Batch.Results, convey.ShouldHaveLength, 2)
			})
		})

		convey.Convey("When a result exceeds the rubric", func() {
			fake.finish(model.StatusCompleted, []model.StudentResult{result("alice", 9, 4, 5), result("bob", 11, 4, 7)})
			stats, err := batchclient.Run(context.Background(), cfg)

			convey.Convey("Then verification fails after saving", func() {
				convey.So(errors.Is(err, batchclient.ErrVerification), convey.ShouldBeTrue)
				convey.So(stats.Issues, convey.ShouldEqual, 1)
				_, statErr := os.Stat(cfg.OutputFile)
				convey.So(statErr, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the batch fails", func() {
			fake.finish(model.StatusFailed, nil)
			_, err := batchclient.Run(context.Background(), cfg)

			convey.Convey("Then the failure is returned", func() {
				convey.So(errors.Is(err, batchclient.ErrBatchFailed), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "model unavailable")
			})
		})

		convey.Convey("When the batch never finishes in time", func() {
			fake.polls.Store(-1 << 20)
			cfg.Wait = 30 * time.Millisecond
			_, err := batchclient.Run(context.Background(), cfg)

			convey.Convey("Then the wait times out", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestClient(t *testing.T) {
	convey.Convey("Given a client for the fake service", t, func() {
		fake := &fakeService{status: model.StatusCompleted}
		srv := httptest.NewServer(fake.handler())
		defer srv.Close()
		client := batchclient.NewClient(srv.URL+"/", time.Second)

		convey.Convey("Then an unknown batch reports the server message", func() {
			_, err := client.Batch(context.Background(), "nope")
			convey.So(errors.Is(err, batchclient.ErrHTTP), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "batch not found")
		})

		convey.Convey("Then the health check passes", func() {
			convey.So(client.Health(context.Background()), convey.ShouldBeNil)
		})
	})
}
