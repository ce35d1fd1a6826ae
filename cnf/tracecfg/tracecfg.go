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

// Package tracecfg holds the replay CLI's own option struct: which trace
// script to load and how to drive it. The protocol engine itself never
// parses flags or files; this is the demo harness's one small settings
// block, the same way a server's cnf package holds options for its CLI
// and server commands, separate from the engine it drives.
package tracecfg

import "time"

// Options configures one run of the replay CLI.
type Options struct {
	// Script is the path to an Hjson trace script describing a sequence
	// of inbound events to feed the core. The script lists events only;
	// the actions they produce are printed, not checked.
	Script string

	// Speed is the delay between scripted events; zero replays as fast
	// as possible.
	Speed time.Duration

	// LogLevel and LogFormat mirror the core's own log package knobs.
	LogLevel  string
	LogFormat string

	// Profile selects a github.com/pkg/profile mode ("cpu", "mem",
	// "block", "trace") or "" to disable profiling, read from the
	// DEBUG environment variable.
	Profile string
}

// Default returns the replay CLI's baseline options.
func Default() *Options {
	return &Options{
		LogLevel:  "info",
		LogFormat: "text",
	}
}
