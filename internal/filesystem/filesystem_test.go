package filesystem

import (
	"os"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestAPI(t *testing.T) {
	Convey("Filesystem backend", t, func() {
		Convey("defaults to the OS", func() {
			SetOsFs()
			So(API().Name(), ShouldEqual, "OsFs")
		})

		Convey("switches to memory", func() {
			SetMemMapFs()
			defer SetOsFs()
			So(API().Name(), ShouldEqual, "MemMapFS")
		})
	})
}

func TestGacheFs(t *testing.T) {
	Convey("GacheFs writes through the active backend", t, func() {
		SetMemMapFs()
		defer SetOsFs()

		var fs GacheFs
		So(fs.MkdirAll("/cache/dir", 0o755), ShouldBeNil)

		f, err := fs.OpenFile("/cache/dir/entry.json", os.O_CREATE|os.O_WRONLY, 0o644)
		So(err, ShouldBeNil)
		_, err = f.Write([]byte(`{"ok":true}`))
		So(err, ShouldBeNil)
		So(f.Close(), ShouldBeNil)

		data, err := API().ReadFile("/cache/dir/entry.json")
		So(err, ShouldBeNil)
		So(string(data), ShouldEqual, `{"ok":true}`)
	})
}
