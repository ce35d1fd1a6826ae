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

package query

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/abcum/oranet/wire"
)

func newStatementContext(sql string) *wire.StatementContext {
	return &wire.StatementContext{
		Kind:      wire.StatementQuery,
		SQL:       sql,
		Completer: wire.NewCompleter[*wire.Result](),
	}
}

func TestSimpleQueryOneRow(t *testing.T) {

	Convey("A simple single-row query streams to completion", t, func() {

		ctx := newStatementContext("SELECT 'test' FROM dual")
		m := New(ctx)

		action := m.Start()
		_, ok := action.(wire.SendExecute)
		So(ok, ShouldBeTrue)

		describe := &wire.DescribeInfo{Columns: []wire.Column{{Name: "DUMMY", Type: wire.TypeVarchar2}}}
		So(m.DescribeInfoReceived(describe), ShouldResemble, wire.Wait{})
		So(m.State(), ShouldEqual, StateDescribeInfoReceived)

		action = m.RowHeaderReceived(&wire.RowHeader{})
		So(m.State(), ShouldEqual, StateStreaming)
		succeed, ok := action.(wire.SucceedQuery)
		So(ok, ShouldBeTrue)
		So(succeed.Result.Describe, ShouldEqual, describe)

		// one length-prefixed column: 4 bytes of "test"
		rowBytes := []byte{4, 't', 'e', 's', 't'}
		action = m.RowDataReceived(rowBytes)
		So(action, ShouldResemble, wire.Wait{})

		// caller demands rows, then the read loop completes and releases them
		action = m.RequestQueryRows()
		So(action, ShouldResemble, wire.Read{})

		action = m.ChannelReadComplete()
		forwarded, ok := action.(wire.ForwardRows)
		So(ok, ShouldBeTrue)
		So(forwarded.Rows, ShouldHaveLength, 1)
		So(string(forwarded.Rows[0].Columns[0]), ShouldEqual, "test")

		action = m.BackendErrorReceived(&wire.ServerError{Code: wire.TNSErrNoDataFound})
		complete, ok := action.(wire.ForwardStreamComplete)
		So(ok, ShouldBeTrue)
		So(complete.Rows, ShouldHaveLength, 0)
		So(m.State(), ShouldEqual, StateCommandComplete)

		action = m.ReadyForQueryReceived()
		So(action, ShouldResemble, wire.FireEventReadyForStatement{})
	})
}

func TestCancellationMidStream(t *testing.T) {

	Convey("Cancelling mid-stream forwards a client-cancelled stream error", t, func() {

		ctx := newStatementContext("SELECT * FROM big_table")
		m := New(ctx)
		m.Start()
		m.DescribeInfoReceived(&wire.DescribeInfo{Columns: []wire.Column{{Name: "A", Type: wire.TypeNumber}}})
		m.RowHeaderReceived(&wire.RowHeader{})

		action := m.Cancel()
		So(m.State(), ShouldEqual, StateDrain)
		fwd, ok := action.(wire.ForwardStreamError)
		So(ok, ShouldBeTrue)
		So(fwd.ClientCancelled, ShouldBeTrue)

		Convey("cancel is idempotent", func() {
			action := m.Cancel()
			So(action, ShouldResemble, wire.Wait{})
			So(m.State(), ShouldEqual, StateDrain)
		})

		Convey("a subsequent user-requested-cancel sentinel is absorbed", func() {
			action := m.BackendErrorReceived(&wire.ServerError{Code: wire.TNSErrUserRequestedCancel})
			So(action, ShouldResemble, wire.ForwardCancelComplete{})
			So(m.State(), ShouldEqual, StateCommandComplete)

			action = m.ReadyForQueryReceived()
			So(action, ShouldResemble, wire.FireEventReadyForStatement{})
		})
	})
}

func TestLOBFallbackRewrite(t *testing.T) {

	Convey("A LOB describe with FetchLOBs=false rewrites and re-executes", t, func() {

		ctx := newStatementContext("SELECT body FROM articles")
		ctx.Options.FetchLOBs = false
		m := New(ctx)
		m.Start()

		lobDescribe := &wire.DescribeInfo{Columns: []wire.Column{{Name: "BODY", Type: wire.TypeCLOB, Size: 4000}}}
		serverErr := &wire.ServerError{Code: 3, CursorID: 7, Describe: lobDescribe}

		action := m.BackendErrorReceived(serverErr)
		So(ctx.CursorID, ShouldEqual, uint32(7))

		exec, ok := action.(wire.SendExecute)
		So(ok, ShouldBeTrue)
		So(exec.Describe.Columns[0].Type, ShouldEqual, wire.TypeLong)

		Convey("the re-executed statement proceeds like a normal query", func() {
			So(m.DescribeInfoReceived(exec.Describe), ShouldResemble, wire.Wait{})
			action := m.RowHeaderReceived(&wire.RowHeader{})
			succeed, ok := action.(wire.SucceedQuery)
			So(ok, ShouldBeTrue)
			So(succeed.Result.Describe.Columns[0].Type, ShouldEqual, wire.TypeLong)
		})
	})
}

func TestDescribeDrivenFetchContinue(t *testing.T) {

	Convey("A cursor id with a non-LOB describe continues the cursor with sendFetch", t, func() {

		ctx := newStatementContext("SELECT id FROM widgets")
		m := New(ctx)
		m.Start()

		describe := &wire.DescribeInfo{Columns: []wire.Column{{Name: "ID", Type: wire.TypeNumber}}}
		serverErr := &wire.ServerError{Code: 3, CursorID: 9, Describe: describe}

		action := m.BackendErrorReceived(serverErr)
		So(ctx.CursorID, ShouldEqual, uint32(9))

		fetch, ok := action.(wire.SendFetch)
		So(ok, ShouldBeTrue)
		So(fetch.Ctx, ShouldEqual, ctx)
		So(m.State(), ShouldEqual, StateDescribeInfoReceived)

		Convey("the continued cursor proceeds like a normal query", func() {
			action := m.RowHeaderReceived(&wire.RowHeader{})
			succeed, ok := action.(wire.SucceedQuery)
			So(ok, ShouldBeTrue)
			So(succeed.Result.Describe, ShouldEqual, describe)
		})
	})
}

func TestEmptyResult(t *testing.T) {

	Convey("End-of-data before any row header succeeds with an empty result", t, func() {

		ctx := newStatementContext("UPDATE t SET x = 1 WHERE 1 = 0")
		m := New(ctx)
		m.Start()

		action := m.BackendErrorReceived(&wire.ServerError{Code: wire.TNSErrNoDataFound})
		succeed, ok := action.(wire.SucceedQuery)
		So(ok, ShouldBeTrue)
		So(succeed.Completer, ShouldEqual, ctx.Completer)
		So(succeed.Result.Describe, ShouldBeNil)
		So(m.State(), ShouldEqual, StateCommandComplete)
	})
}

func TestRowSpanningChunks(t *testing.T) {

	Convey("A row split across transport chunks reassembles without loss", t, func() {

		ctx := newStatementContext("SELECT name FROM t")
		m := New(ctx)
		m.Start()
		m.DescribeInfoReceived(&wire.DescribeInfo{Columns: []wire.Column{{Name: "NAME", Type: wire.TypeVarchar2}}})
		m.RowHeaderReceived(&wire.RowHeader{})

		// length byte says 5 bytes follow, but only 2 have arrived
		action := m.RowDataReceived([]byte{5, 'h', 'e'})
		So(action, ShouldResemble, wire.NeedMoreData{})
		So(m.State(), ShouldEqual, StateStreamingAndWaiting)

		action = m.ChunkReceived([]byte{'l', 'l', 'o'})
		So(action, ShouldResemble, wire.Wait{})
		So(m.State(), ShouldEqual, StateStreaming)

		m.RequestQueryRows()
		action = m.ChannelReadComplete()
		forwarded, ok := action.(wire.ForwardRows)
		So(ok, ShouldBeTrue)
		So(string(forwarded.Rows[0].Columns[0]), ShouldEqual, "hello")
	})
}
