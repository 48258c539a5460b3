package types_test

import (
	"encoding/json"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"gopkg.in/yaml.v3"

	"github.com/okian/grader/internal/domain/types"
)

func TestNumber(t *testing.T) {
	Convey("Given a lenient number", t, func() {
		var doc struct {
			A types.Number `json:"a" yaml:"a"`
			B types.Number `json:"b" yaml:"b"`
			C types.Number `json:"c" yaml:"c"`
			D types.Number `json:"d" yaml:"d"`
		}

		Convey("When decoding JSON with mixed forms", func() {
			err := json.Unmarshal([]byte(`{"a": 5, "b": "2.5", "c": null, "d": " "}`), &doc)

			Convey("Then every form is accepted", func() {
				So(err, ShouldBeNil)
				So(doc.A.Float(), ShouldEqual, 5)
				So(doc.B.Float(), ShouldEqual, 2.5)
				So(doc.C.Float(), ShouldEqual, 0)
				So(doc.D.Float(), ShouldEqual, 0)
			})
		})

		Convey("When decoding YAML", func() {
			err := yaml.Unmarshal([]byte("a: 3\nb: \"1.5\"\nc: ~\n"), &doc)

			Convey("Then numbers and strings are accepted", func() {
				So(err, ShouldBeNil)
				So(doc.A.Float(), ShouldEqual, 3)
				So(doc.B.Float(), ShouldEqual, 1.5)
				So(doc.C.Float(), ShouldEqual, 0)
			})
		})

		Convey("When the string is not numeric", func() {
			err := json.Unmarshal([]byte(`{"a": "five"}`), &doc)

			Convey("Then decoding fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestID(t *testing.T) {
	Convey("Given a lenient identifier", t, func() {
		var doc struct {
			ID types.ID `json:"id" yaml:"id"`
		}

		Convey("When the id is a JSON number", func() {
			So(json.Unmarshal([]byte(`{"id": 12}`), &doc), ShouldBeNil)
			So(doc.ID.String(), ShouldEqual, "12")
		})

		Convey("When the id is a padded string", func() {
			So(json.Unmarshal([]byte(`{"id": " 1-1 "}`), &doc), ShouldBeNil)
			So(doc.ID.String(), ShouldEqual, "1-1")
		})

		Convey("When the id comes from YAML", func() {
			So(yaml.Unmarshal([]byte("id: 2\n"), &doc), ShouldBeNil)
			So(doc.ID.String(), ShouldEqual, "2")
		})
	})
}
