package model_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/racescore/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestCheckpoints(t *testing.T) {
	convey.Convey("Given the course checkpoints", t, func() {
		cps := model.Checkpoints()

		convey.Convey("Then there are nine in strictly increasing distance", func() {
			convey.So(len(cps), convey.ShouldEqual, 9)
			for i := 1; i < len(cps); i++ {
				convey.So(cps[i].Decimeters(), convey.ShouldBeGreaterThan, cps[i-1].Decimeters())
			}
			convey.So(cps[len(cps)-1].Decimeters(), convey.ShouldBeLessThan, model.MarathonDecimeters)
		})

		convey.Convey("Then names parse back case-insensitively", func() {
			for _, cp := range cps {
				got, ok := model.ParseCheckpoint(cp.String())
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(got, convey.ShouldEqual, cp)
			}
			got, ok := model.ParseCheckpoint(" HALF ")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(got, convey.ShouldEqual, model.CPHalf)
		})

		convey.Convey("Then unknown names are rejected", func() {
			_, ok := model.ParseCheckpoint("41k")
			convey.So(ok, convey.ShouldBeFalse)
			convey.So(model.Checkpoint(0).Valid(), convey.ShouldBeFalse)
		})
	})
}

func TestCheckpointJSON(t *testing.T) {
	convey.Convey("Given a split map", t, func() {
		splits := map[model.Checkpoint]string{model.CPHalf: "1:04:30", model.CP40K: "2:01:40"}

		convey.Convey("When round-tripped through JSON", func() {
			raw, err := json.Marshal(splits)
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(raw), convey.ShouldContainSubstring, `"half":"1:04:30"`)

			var back map[model.Checkpoint]string
			convey.So(json.Unmarshal(raw, &back), convey.ShouldBeNil)
			convey.So(back, convey.ShouldResemble, splits)
		})

		convey.Convey("When decoding an unknown key", func() {
			var back map[model.Checkpoint]string
			err := json.Unmarshal([]byte(`{"41k":"2:05:00"}`), &back)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}
