// Copyright © 2016 Abcum Ltd
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rowbuf

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/abcum/oranet/wire"
)

func row(col string) wire.Row {
	return wire.Row{Columns: [][]byte{[]byte(col)}}
}

func TestBufferDefaults(t *testing.T) {

	Convey("A fresh buffer starts empty at the default target", t, func() {

		b := New()
		So(b.Len(), ShouldEqual, 0)
		So(b.Target(), ShouldEqual, wire.RowBufferDefaultTarget)
	})
}

func TestBufferDemandAndRelease(t *testing.T) {

	Convey("With no demand, ChannelReadComplete holds buffered rows", t, func() {

		b := New()
		b.ReceivedRow(row("a"))
		So(b.ChannelReadComplete(), ShouldBeNil)
		So(b.Len(), ShouldEqual, 1)

		Convey("Once demand is recorded, the rows are released", func() {

			decision := b.DemandMoreResponseBodyParts()
			So(decision, ShouldEqual, DemandRead)

			released := b.ChannelReadComplete()
			So(released, ShouldNotBeNil)
			So(released.Rows, ShouldHaveLength, 1)
			So(b.Len(), ShouldEqual, 0)

			Convey("Emptying to zero after a release doubles target", func() {
				So(b.Target(), ShouldEqual, wire.RowBufferDefaultTarget*2)
			})
		})
	})
}

func TestBufferHalvesOnOverflow(t *testing.T) {

	Convey("Filling to target after priming halves the target", t, func() {

		b := New()
		b.target = 200
		b.ReceivedRow(row("seed")) // primes without halving

		for i := 0; i < 199; i++ {
			b.ReceivedRow(row("x"))
		}

		So(b.Target(), ShouldEqual, 100)
	})

	Convey("Target never drops below the minimum", t, func() {

		b := New()
		b.target = wire.RowBufferMinTarget
		b.ReceivedRow(row("seed"))
		for i := 0; i < wire.RowBufferMinTarget; i++ {
			b.ReceivedRow(row("x"))
		}

		So(b.Target(), ShouldEqual, wire.RowBufferMinTarget)
	})
}

func TestBufferDuplicateColumn(t *testing.T) {

	Convey("ReceivedDuplicate copies the previous row's column bytes", t, func() {

		b := New()
		b.ReceivedRow(wire.Row{Columns: [][]byte{[]byte("alice"), []byte("30")}})

		got := b.ReceivedDuplicate(0)
		So(string(got), ShouldEqual, "alice")
	})

	Convey("ReceivedDuplicate returns nil before any row has arrived", t, func() {

		b := New()
		So(b.ReceivedDuplicate(0), ShouldBeNil)
	})
}

func TestBufferEnd(t *testing.T) {

	Convey("End drains whatever remains buffered", t, func() {

		b := New()
		b.ReceivedRow(row("a"))
		b.ReceivedRow(row("b"))

		remaining := b.End()
		So(remaining, ShouldHaveLength, 2)
		So(b.Len(), ShouldEqual, 0)
	})
}

func TestBufferReadAndFail(t *testing.T) {

	Convey("Read reports DemandRead while below target", t, func() {

		b := New()
		So(b.Read(), ShouldEqual, DemandRead)
	})

	Convey("Fail still resolves a demand decision", t, func() {

		b := New()
		decision := b.Fail()
		So(decision, ShouldEqual, DemandRead)
	})
}
