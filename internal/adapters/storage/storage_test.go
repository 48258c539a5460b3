package storage_test

import (
	"context"
	"errors"
	"sort"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/grader/internal/adapters/storage"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n0000")

func TestObjectSource(t *testing.T) {
	ctx := context.Background()

	Convey("Given pages stored per submission", t, func() {
		b := storage.NewMemoryBucket()
		for _, k := range []string{
			"exam-1/S10/page10.png", "exam-1/S10/page2.png", "exam-1/S2/p1.png",
			"exam-1/readme.txt", "exam-1/S2/nested/deep.png", "exam-2/S1/p1.png",
		} {
			So(b.Put(ctx, k, pngMagic, "image/png"), ShouldBeNil)
		}
		src := storage.NewObjectSource(b)

		Convey("When submissions are loaded", func() {
			subs, err := src.Submissions(ctx, "/exam-1/")
			So(err, ShouldBeNil)

			Convey("Then they are grouped by directory in natural order", func() {
				So(subs, ShouldHaveLength, 2)
				So(subs[0].Key, ShouldEqual, "S2")
				So(subs[1].Key, ShouldEqual, "S10")
				So(subs[0].Pages, ShouldHaveLength, 1)
				So(subs[1].Pages, ShouldHaveLength, 2)
				So(subs[1].Pages[0].MIME, ShouldEqual, "image/png")
			})
		})

		Convey("When the prefix is empty", func() {
			_, err := src.Submissions(ctx, " / ")
			So(errors.Is(err, storage.ErrEmptyPrefix), ShouldBeTrue)
		})

		Convey("When a batch is archived", func() {
			So(src.Archive(ctx, "b1", []byte(`{"id":"b1"}`)), ShouldBeNil)
			data, err := b.Get(ctx, "results/b1.json")
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, `{"id":"b1"}`)
		})
	})

	Convey("Missing objects report ErrNotFound", t, func() {
		_, err := storage.NewMemoryBucket().Get(ctx, "nope")
		So(errors.Is(err, storage.ErrNotFound), ShouldBeTrue)
	})

	Convey("Incomplete S3 settings are rejected", t, func() {
		_, err := storage.NewMinioBucket(storage.S3Config{Endpoint: "localhost:9000"})
		So(errors.Is(err, storage.ErrConfig), ShouldBeTrue)
		_, err = storage.NewMinioBucket(storage.S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"})
		So(errors.Is(err, storage.ErrConfig), ShouldBeTrue)
		_, err = storage.NewMinioBucket(storage.S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "exams"})
		So(err, ShouldBeNil)
	})
}

func TestNaturalLess(t *testing.T) {
	Convey("Numbers inside names compare by value", t, func() {
		names := []string{"page10", "page2", "page1", "page02b", "cover"}
		sort.Slice(names, func(i, j int) bool { return storage.NaturalLess(names[i], names[j]) })
		So(names, ShouldResemble, []string{"cover", "page1", "page2", "page02b", "page10"})
	})
}
