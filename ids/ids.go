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

// Package ids mints the short correlation identifiers attached to a
// connection, a statement or a cleanup pass, so log lines from the same
// logical operation can be grepped together across the dispatcher and the
// core.
package ids

import "github.com/rs/xid"

// NewConnectionID mints an identifier for one connection's lifetime.
func NewConnectionID() string {
	return "conn_" + xid.New().String()
}

// NewStatementID mints an identifier for one statement's lifetime.
func NewStatementID() string {
	return "stmt_" + xid.New().String()
}

// NewCleanupID mints an identifier for one cleanup pass, so every task
// failed during the same teardown shares a value to group by.
func NewCleanupID() string {
	return "cleanup_" + xid.New().String()
}
