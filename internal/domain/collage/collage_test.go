package collage_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/grader/internal/domain/collage"
	"github.com/okian/grader/internal/domain/grading"
	"github.com/okian/grader/internal/domain/rubric"
	"github.com/okian/grader/internal/domain/types"
)

const gridRubric = `{"questions": [
  {"id": "1", "points": 4, "rubric": [{"rule_id": "1.S1", "points": 4, "criterion": "answer"}]},
  {"id": "2", "points": 6}
]}`

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func idx(i int) *int { return &i }

// scored is a grid result whose breakdown adds up to score.
func scored(index *int, score float64, reasoning string) grading.GridResult {
	return grading.GridResult{
		Index:     index,
		Score:     types.Number(score),
		Reasoning: reasoning,
		Breakdown: []grading.Item{{Rule: "answer", Score: types.Number(score), Comment: "ok", Evidence: "x"}},
	}
}

func TestPack(t *testing.T) {
	Convey("Given eleven crops and a small packer", t, func() {
		n := 0
		p := collage.NewPacker(collage.WithCellSize(4, 2), collage.WithIDGenerator(func() string {
			n++
			return string(rune('a' + n - 1))
		}))
		var crops []collage.Crop
		for i := 0; i < 11; i++ {
			crops = append(crops, collage.Crop{Submission: string(rune('A' + i)), Image: solid(8, 8, color.Black)})
		}
		grids := p.Pack("1-1", crops)

		Convey("Then crops fill grids of nine cells in order", func() {
			So(grids, ShouldHaveLength, 2)
			So(grids[0].Manifest.GridID, ShouldEqual, "a")
			So(grids[0].Manifest.Populated(), ShouldResemble, []int{0, 1, 2, 3, 4, 5, 6, 7, 8})
			So(grids[1].Manifest.Populated(), ShouldResemble, []int{0, 1})
			So(grids[1].Manifest.Cells, ShouldHaveLength, 9)
			So(grids[1].Manifest.Cells[1].Submission, ShouldEqual, "K")
			So(grids[1].Manifest.Cells[2].IsEmpty, ShouldBeTrue)
			So(grids[1].Manifest.Label, ShouldEqual, "1-1")
		})

		Convey("Then the canvas is three columns by three rows of cells", func() {
			img := grids[1].Image
			So(img.Bounds(), ShouldResemble, image.Rect(0, 0, 12, 6))
			r, _, _, _ := img.At(1, 1).RGBA()
			So(r, ShouldEqual, 0)
			r, _, _, _ = img.At(9, 1).RGBA()
			So(r, ShouldEqual, 0xffff)
		})

		Convey("Then the grid encodes as PNG", func() {
			b, err := grids[0].PNG()
			So(err, ShouldBeNil)
			_, err = png.Decode(bytes.NewReader(b))
			So(err, ShouldBeNil)
		})
	})

	Convey("Given no crops, no grids are produced", t, func() {
		So(collage.NewPacker().Pack("1", nil), ShouldBeEmpty)
	})
}

func TestScatter(t *testing.T) {
	compiled, err := rubric.Compile(gridRubric, rubric.CompileOptions{})
	if err != nil {
		t.Fatal(err)
	}
	rec := grading.NewReconciler()

	newBoard := func(keys ...string) collage.Board {
		b := collage.Board{}
		for _, k := range keys {
			b[k] = collage.NewAccumulator(nil)
		}
		return b
	}

	manifest := collage.Manifest{GridID: "g1", Label: "2", Cells: make([]collage.Cell, 9)}
	for i := range manifest.Cells {
		manifest.Cells[i] = collage.Cell{Index: i, IsEmpty: true}
	}
	manifest.Cells[0] = collage.Cell{Index: 0, Submission: "S1"}
	manifest.Cells[2] = collage.Cell{Index: 2, Submission: "S2"}
	manifest.Cells[5] = collage.Cell{Index: 5, Submission: "S3"}

	Convey("Given a grid with cells 0, 2 and 5 populated", t, func() {
		board := newBoard("S1", "S2", "S3")
		reply := &grading.GridResponse{Results: []grading.GridResult{
			scored(idx(5), 5, "cell five"),
			scored(idx(0), 1, "cell zero"),
			scored(idx(2), 2, "cell two"),
			scored(idx(4), 9, "empty cell hallucination"),
		}}
		delivered := collage.Scatter(manifest, reply, 0.9, "", board, rec, compiled)
		labels := []string{"1", "2"}
		s1 := board["S1"].Finish(labels)
		s2 := board["S2"].Finish(labels)
		s3 := board["S3"].Finish(labels)

		Convey("Then each submission receives only its own cell", func() {
			So(delivered, ShouldEqual, 3)
			So(s1.Questions, ShouldHaveLength, 1)
			So(s1.Questions[0].Reasoning, ShouldEqual, "cell zero")
			So(s1.Questions[0].Score.Float(), ShouldEqual, 1)
			So(s2.Questions[0].Reasoning, ShouldEqual, "cell two")
			So(s3.Questions[0].Reasoning, ShouldEqual, "cell five")
			So(s3.TotalScore.Float(), ShouldEqual, 5)
		})

		Convey("Then the grid cost is split over populated cells only", func() {
			for _, r := range []*grading.Response{s1, s2, s3} {
				So(r.CostUSD, ShouldAlmostEqual, 0.3, 1e-12)
				So(r.CostBreakdown[grading.CostGrading], ShouldAlmostEqual, 0.3, 1e-12)
			}
		})

		Convey("Then every question carries its rubric maximum", func() {
			So(*s1.Questions[0].MaxScore, ShouldEqual, 6)
		})
	})

	Convey("Given a reply without indices, results follow the populated cells in order", t, func() {
		board := newBoard("S1", "S2", "S3")
		reply := &grading.GridResponse{Results: []grading.GridResult{
			scored(nil, 1, "first"), scored(nil, 2, "second"), scored(nil, 3, "third"),
		}}
		delivered := collage.Scatter(manifest, reply, 0, "", board, rec, compiled)
		So(delivered, ShouldEqual, 3)
		So(board["S1"].Finish(nil).TotalScore.Float(), ShouldEqual, 1)
		So(board["S2"].Finish(nil).TotalScore.Float(), ShouldEqual, 2)
		So(board["S3"].Finish(nil).TotalScore.Float(), ShouldEqual, 3)
		So(board["S3"].Finish(nil).Questions[0].Reasoning, ShouldEqual, "third")
	})

	Convey("Given a reply with fewer unindexed results than populated cells", t, func() {
		board := newBoard("S1", "S2", "S3")
		reply := &grading.GridResponse{Results: []grading.GridResult{scored(nil, 1, "first"), scored(nil, 2, "second")}}
		collage.Scatter(manifest, reply, 0, "", board, rec, compiled)
		So(board["S2"].Finish(nil).TotalScore.Float(), ShouldEqual, 2)
		So(board["S3"].Finish(nil).TotalScore.Float(), ShouldEqual, 0)
	})

	Convey("Given a cell score without a breakdown", t, func() {
		board := newBoard("S1", "S2", "S3")
		reply := &grading.GridResponse{Results: []grading.GridResult{{Index: idx(0), Score: 5, Reasoning: "r"}}}
		collage.Scatter(manifest, reply, 0, "", board, rec, compiled)
		q := board["S1"].Finish(nil).Questions[0]

		Convey("Then the score is the empty sum, as in whole-submission grading", func() {
			So(q.Score.Float(), ShouldEqual, 0)
			So(q.Reasoning, ShouldEqual, "r")
		})
	})

	Convey("Given a score above the question maximum", t, func() {
		board := newBoard("S1", "S2", "S3")
		reply := &grading.GridResponse{Results: []grading.GridResult{scored(idx(0), 8, "r")}}
		collage.Scatter(manifest, reply, 0, "", board, rec, compiled)
		q := board["S1"].Finish(nil).Questions[0]

		Convey("Then it is capped with the collage note", func() {
			So(q.Score.Float(), ShouldEqual, 6)
			So(*q.OriginalAIScore, ShouldEqual, 8)
			So(q.Reasoning, ShouldEqual, "r [System Correction: Capped at 6.0]")
		})
	})

	Convey("Given breakdown items, steps are reconciled", t, func() {
		m := collage.Manifest{Label: "1", Cells: []collage.Cell{{Index: 0, Submission: "S1"}}}
		board := newBoard("S1")
		reply := &grading.GridResponse{Results: []grading.GridResult{{Index: idx(0), Score: 9, Breakdown: []grading.Item{
			{RuleID: "1.S1", Score: 7, Comment: "ok", Evidence: "x=2"},
		}}}}
		collage.Scatter(m, reply, 0, "", board, rec, compiled)
		q := board["S1"].Finish(nil).Questions[0]
		So(q.Score.Float(), ShouldEqual, 4)
		So(q.Breakdown[0].Comment, ShouldStartWith, grading.MarkerStudentWrote)
	})

	Convey("Given a failed grid call", t, func() {
		board := newBoard("S1", "S2", "S3")
		collage.Scatter(manifest, nil, 0, "quota exceeded", board, rec, compiled)
		r := board["S2"].Finish(nil)
		So(r.Questions, ShouldHaveLength, 1)
		So(r.Questions[0].Score.Float(), ShouldEqual, 0)
		So(r.Questions[0].Reasoning, ShouldEqual, "quota exceeded")
	})

	Convey("Given concurrent grids for different labels", t, func() {
		board := newBoard("S1")
		var wg sync.WaitGroup
		for _, label := range []string{"2", "1"} {
			wg.Add(1)
			go func(label string) {
				defer wg.Done()
				m := collage.Manifest{Label: label, Cells: []collage.Cell{{Index: 0, Submission: "S1"}}}
				collage.Scatter(m, &grading.GridResponse{Results: []grading.GridResult{scored(idx(0), 1, "")}}, 0.5, "", board, rec, compiled)
			}(label)
		}
		wg.Wait()
		r := board["S1"].Finish([]string{"1", "2"})

		Convey("Then both questions land in label order", func() {
			So(r.Questions, ShouldHaveLength, 2)
			So(r.Questions[0].ID.String(), ShouldEqual, "1")
			So(r.Questions[1].ID.String(), ShouldEqual, "2")
			So(r.TotalScore.Float(), ShouldEqual, 2)
			So(r.CostUSD, ShouldEqual, 1)
		})
	})
}
