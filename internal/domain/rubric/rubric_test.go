package rubric_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/grader/internal/domain/rubric"
)

const calculusRubric = `{
  "exam_title": "Calculus midterm",
  "total_points": 100,
  "questions": [
    {
      "id": "1",
      "points": 10,
      "sub_questions": [
        {
          "id": "1-1",
          "points": 5,
          "rubric": [
            {"rule_id": "1-1.S1", "title": "method", "points": 2, "criterion": "Apply L'Hôpital", "require_work": true},
            {"rule_id": "1-1.S2", "points": 2, "criterion": "Differentiate csc",
             "check": {"engine": "sympy", "type": "derivative", "var": "x", "expr": "csc(x)", "expected": "-csc(x)*cot(x)"}},
            {"points": 1, "criterion": "Final answer"}
          ]
        },
        {"id": "b", "points": "5", "rubric": [{"points": 5, "criterion": "Limit value"}]}
      ]
    },
    {"id": 2, "points": 10, "rubric": [{"rule_id": "2.S1", "points": 10, "criterion": "Integral"}]},
    {"id": "3", "score": 7}
  ]
}`

func mustParse(text string) *rubric.Rubric {
	r, err := rubric.Parse(text)
	if err != nil {
		panic(err)
	}
	return r
}

func TestParse(t *testing.T) {
	Convey("Given rubric documents", t, func() {
		Convey("When the rubric is plain JSON", func() {
			r, err := rubric.Parse(calculusRubric)

			Convey("Then questions and lenient fields decode", func() {
				So(err, ShouldBeNil)
				So(r.ExamTitle, ShouldEqual, "Calculus midterm")
				So(r.Questions, ShouldHaveLength, 3)
				So(r.Questions[1].ID.String(), ShouldEqual, "2")
				So(r.Questions[0].SubQuestions[1].Points.Float(), ShouldEqual, 5)
				So(r.Questions[0].SubQuestions[0].Rubric[1].Check.Expected.String(), ShouldEqual, "-csc(x)*cot(x)")
			})
		})

		Convey("When the rubric is wrapped in a code fence", func() {
			r, err := rubric.Parse("```json\n" + calculusRubric + "\n```")
			So(err, ShouldBeNil)
			So(r.Questions, ShouldHaveLength, 3)
		})

		Convey("When the rubric is YAML", func() {
			r, err := rubric.Parse("exam_title: Stats\nquestions:\n  - id: 1\n    points: 4\n    rubric:\n      - points: 4\n        criterion: t-test\n")
			So(err, ShouldBeNil)
			So(r.Questions[0].ID.String(), ShouldEqual, "1")
			So(r.Questions[0].Rubric[0].Criterion, ShouldEqual, "t-test")
		})

		Convey("When the text is empty or garbage", func() {
			_, err := rubric.Parse("   ")
			So(err, ShouldEqual, rubric.ErrEmpty)
			_, err = rubric.Parse("just words")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestIndex(t *testing.T) {
	Convey("Given an index over the rubric", t, func() {
		idx := rubric.BuildIndex(mustParse(calculusRubric))

		Convey("An echoed rule id resolves exactly, regardless of position", func() {
			st, ok := idx.Resolve("1-1", 0, "1-1.S2")
			So(ok, ShouldBeTrue)
			So(st.Check, ShouldNotBeNil)
			So(st.Check.Expected.String(), ShouldEqual, "-csc(x)*cot(x)")
		})

		Convey("Without a rule id the position is used", func() {
			st, ok := idx.Resolve("1-1", 2, "")
			So(ok, ShouldBeTrue)
			So(st.Criterion, ShouldEqual, "Final answer")
		})

		Convey("An unknown rule id falls back to position", func() {
			st, ok := idx.Resolve("1-1", 0, "nope")
			So(ok, ShouldBeTrue)
			So(st.RuleID, ShouldEqual, "1-1.S1")
		})

		Convey("Out of range positions and unknown ids resolve to nothing", func() {
			_, ok := idx.Resolve("1-1", 3, "")
			So(ok, ShouldBeFalse)
			_, ok = idx.Resolve("9", 0, "")
			So(ok, ShouldBeFalse)
			_, ok = idx.Resolve("1-1", -1, "")
			So(ok, ShouldBeFalse)
		})

		Convey("Questions without sub-questions index their own steps", func() {
			st, ok := idx.Resolve("2", 0, "")
			So(ok, ShouldBeTrue)
			So(st.RuleID, ShouldEqual, "2.S1")
		})

		Convey("Differently spelled ids are retried in normalized form", func() {
			st, ok := idx.Resolve("Q1_1", 1, "")
			So(ok, ShouldBeTrue)
			So(st.RuleID, ShouldEqual, "1-1.S2")
		})

		Convey("Partial rubrics never fail", func() {
			So(func() { rubric.BuildIndex(nil) }, ShouldNotPanic)
			empty := rubric.BuildIndex(&rubric.Rubric{Questions: []rubric.Question{{ID: "1"}}})
			So(empty.Len(), ShouldEqual, 0)
			_, ok := empty.Resolve("1", 0, "")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestIDs(t *testing.T) {
	Convey("Given question label spellings", t, func() {
		So(rubric.NormalizeID("1A"), ShouldEqual, "1-1")
		So(rubric.NormalizeID(" q2c "), ShouldEqual, "2-3")
		So(rubric.NormalizeID("Q1_1"), ShouldEqual, "1-1")
		So(rubric.NormalizeID("1.2"), ShouldEqual, "1-2")
		So(rubric.NormalizeID("3(b)"), ShouldEqual, "3-B")
		So(rubric.CompactID(" 1-1 (A) "), ShouldEqual, "11a")
	})

	Convey("Given the calculus rubric", t, func() {
		r := mustParse(calculusRubric)

		Convey("Labels follow declaration order and prefix bare sub ids", func() {
			So(r.Labels(), ShouldResemble, []string{"1-1", "1-b", "2", "3"})
		})

		Convey("Maxima are found for questions and sub-questions", func() {
			max, ok := r.MaxPoints("1")
			So(ok, ShouldBeTrue)
			So(max, ShouldEqual, 10)

			max, ok = r.MaxPoints("1-1")
			So(ok, ShouldBeTrue)
			So(max, ShouldEqual, 5)

			max, ok = r.MaxPoints("1b")
			So(ok, ShouldBeTrue)
			So(max, ShouldEqual, 5)

			max, ok = r.MaxPoints("3")
			So(ok, ShouldBeTrue)
			So(max, ShouldEqual, 7)

			_, ok = r.MaxPoints("42")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestHygiene(t *testing.T) {
	Convey("Given a rubric with inconsistent totals", t, func() {
		r := mustParse(`{"total_points": 1, "questions": [
			{"id": "1", "points": 3, "sub_questions": [{"id": "1-1", "points": 4}, {"id": "1-2", "points": 2}]},
			{"id": "2", "points": 5, "sub_questions": [{"id": "2-1", "points": 0}]},
			{"id": "3", "points": 1}
		]}`)
		r.FixTotals()

		So(r.Questions[0].Points.Float(), ShouldEqual, 6)
		So(r.Questions[1].Points.Float(), ShouldEqual, 5)
		So(r.TotalPoints.Float(), ShouldEqual, 12)
	})

	Convey("Given steps that mention derivatives", t, func() {
		r := mustParse(`{"questions": [{"id": "1", "sub_questions": [{"id": "1-1", "rubric": [
			{"points": 2, "criterion": "使用羅必達法則，分子微分 csc x"},
			{"points": 2, "criterion": "對 ln x 微分"},
			{"points": 1, "criterion": "L'Hôpital on sec", "check": {"engine": "scipy", "type": "det", "expected": "1"}},
			{"points": 1, "criterion": "Simplify\u200b  the   result"}
		]}]}]}`)

		Convey("When the subject is mathematical", func() {
			added := r.InferChecks("univ_math")
			steps := r.Questions[0].SubQuestions[0].Rubric

			Convey("Then checks are attached from the derivative table", func() {
				So(added, ShouldEqual, 2)
				So(steps[0].Check.Expected.String(), ShouldEqual, "-csc(x)*cot(x)")
				So(steps[0].Check.Policy.AllOrNothing, ShouldBeTrue)
				So(steps[1].Check.Expr.String(), ShouldEqual, "log(x)")
				So(steps[1].Check.Expected.String(), ShouldEqual, "1/x")
				So(steps[2].Check.Engine, ShouldEqual, "scipy")
				So(steps[3].Check, ShouldBeNil)
				So(steps[3].Criterion, ShouldEqual, "Simplify the result")
			})
		})

		Convey("When the subject is not mathematical", func() {
			So(r.InferChecks("history"), ShouldEqual, 0)
		})
	})

	Convey("CleanText strips invisible characters and applies NFKC", t, func() {
		So(rubric.CleanText("\uff58\u2062\uff59  \ufeff z"), ShouldEqual, "xy z")
	})
}

func TestCache(t *testing.T) {
	Convey("Given a rubric cache", t, func() {
		c, err := rubric.NewCache(2)
		So(err, ShouldBeNil)

		a, err := c.Compile(calculusRubric, rubric.CompileOptions{})
		So(err, ShouldBeNil)
		b, err := c.Compile(calculusRubric, rubric.CompileOptions{})
		So(err, ShouldBeNil)

		So(a, ShouldPointTo, b)
		So(c.Len(), ShouldEqual, 1)
		So(a.Labels, ShouldHaveLength, 4)

		Convey("Different options compile separately", func() {
			d, err := c.Compile(calculusRubric, rubric.CompileOptions{Subject: "univ_math", InferChecks: true})
			So(err, ShouldBeNil)
			So(d, ShouldNotPointTo, a)
			So(c.Len(), ShouldEqual, 2)
		})

		Convey("Errors are not cached", func() {
			_, err := c.Compile("", rubric.CompileOptions{})
			So(err, ShouldNotBeNil)
			So(c.Len(), ShouldEqual, 1)
		})
	})
}
