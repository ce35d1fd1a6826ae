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

package main

import (
	"github.com/mgutz/ansi"

	"github.com/abcum/oranet/log"
	"github.com/abcum/oranet/wire"
)

// printingDispatcher is a fake transport adapter: instead of writing bytes
// to a socket, it logs every action a conn.Machine asks for, colorized by
// category, so a trace script's effect can be read straight off the
// terminal. It implements conn.Dispatcher.
type printingDispatcher struct{}

func newPrintingDispatcher() *printingDispatcher {
	return &printingDispatcher{}
}

func (d *printingDispatcher) announce(label string) {
	log.Infoln(ansi.Color(label, "cyan+b"))
}

func (d *printingDispatcher) SendConnect()  { d.announce("-> CONNECT") }
func (d *printingDispatcher) SendProtocol() { d.announce("-> PROTOCOL") }
func (d *printingDispatcher) SendDataTypes() { d.announce("-> DATA-TYPES") }
func (d *printingDispatcher) SendMarker()    { d.announce("-> MARKER") }
func (d *printingDispatcher) SendOOB()       { d.announce("-> OOB") }

func (d *printingDispatcher) LogoffConnection(completer *wire.Completer[struct{}]) {
	d.announce("-> LOGOFF")
	if completer != nil {
		completer.Succeed(struct{}{})
	}
}

func (d *printingDispatcher) CloseConnection(completer *wire.Completer[struct{}]) {
	d.announce("-> CLOSE")
	if completer != nil {
		completer.Succeed(struct{}{})
	}
}

func (d *printingDispatcher) FireChannelInactive() {
	d.announce("channel inactive")
}

func (d *printingDispatcher) FireEventReadyForStatement() {
	d.announce("ready for statement")
}

func (d *printingDispatcher) Read()         { d.announce("(read)") }
func (d *printingDispatcher) NeedMoreData() { d.announce("(need more data)") }

func (d *printingDispatcher) ProvideAuthenticationContext() (*wire.AuthContext, *wire.Cookie) {
	d.announce("(auth context requested)")
	return nil, nil
}

func (d *printingDispatcher) SendAuthPhaseOne(ctx *wire.AuthContext, cookie *wire.Cookie) {
	d.announce("-> AUTH phase one for " + ctx.Redact().String())
}

func (d *printingDispatcher) SendAuthPhaseTwo(ctx *wire.AuthContext, params map[string]string) {
	d.announce("-> AUTH phase two")
}

func (d *printingDispatcher) Authenticated(params map[string]string, cookie *wire.Cookie) {
	if cookie != nil {
		log.Infoln(ansi.Color("authenticated (cookie minted)", "green+b"))
		return
	}
	log.Infoln(ansi.Color("authenticated", "green+b"))
}

func (d *printingDispatcher) ReportAuthError(err error) {
	log.Errorln(ansi.Color("auth error: "+err.Error(), "red+b"))
}

func (d *printingDispatcher) SendExecute(ctx *wire.StatementContext, describe *wire.DescribeInfo) {
	d.announce("-> EXECUTE " + ctx.SQL)
}

func (d *printingDispatcher) SendReexecute(ctx *wire.StatementContext, cleanup *wire.CleanupContext) {
	d.announce("-> RE-EXECUTE " + ctx.SQL)
}

func (d *printingDispatcher) SendFetch(ctx *wire.StatementContext) {
	d.announce("-> FETCH")
}

func (d *printingDispatcher) FailQuery(completer *wire.Completer[*wire.Result], err error, cleanup *wire.CleanupContext) {
	log.Errorln(ansi.Color("query failed: "+err.Error(), "red+b"))
	if completer != nil {
		completer.Fail(err)
	}
}

func (d *printingDispatcher) SucceedQuery(completer *wire.Completer[*wire.Result], result *wire.Result) {
	d.announce("query succeeded")
	if completer != nil {
		completer.Succeed(result)
	}
}

func (d *printingDispatcher) ForwardRows(rows []wire.Row) {
	log.Infof("forwarded %d row(s)", len(rows))
}

func (d *printingDispatcher) ForwardStreamComplete(rows []wire.Row) {
	log.Infof("stream complete, %d trailing row(s)", len(rows))
}

func (d *printingDispatcher) ForwardStreamError(err error, read bool, cursorID uint32, hasCursorID bool, clientCancelled bool) {
	log.Warnln(ansi.Color("stream error: "+err.Error(), "yellow+b"))
}

func (d *printingDispatcher) ForwardCancelComplete() {
	d.announce("cancel complete")
}

func (d *printingDispatcher) CloseConnectionAndCleanup(cleanup *wire.CleanupContext) {
	log.Warnln(ansi.Color("tearing down: "+cleanup.Err.Error(), "yellow+b"))
	for _, t := range cleanup.Tasks {
		t.Completer.Fail(cleanup.Err)
	}
	if cleanup.CloseCompleter != nil {
		cleanup.CloseCompleter.Succeed(struct{}{})
	}
}
