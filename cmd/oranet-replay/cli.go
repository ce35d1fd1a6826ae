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
	"fmt"
	"os"
	"time"

	"github.com/mgutz/ansi"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/abcum/oranet/cnf/tracecfg"
	"github.com/abcum/oranet/conn"
	"github.com/abcum/oranet/log"
)

var opts = tracecfg.Default()

var rootCmd = &cobra.Command{
	Use:   "oranet-replay",
	Short: "Replay a trace script against the connection state machine",
	Long: `oranet-replay drives a ConnectionStateMachine from a scripted
sequence of inbound events and prints every action it emits, without
ever opening a real socket. It exists to exercise and demonstrate the
core outside of a running driver.`,
	RunE: run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&opts.Script, "script", "", "path to an Hjson trace script")
	rootCmd.PersistentFlags().DurationVar(&opts.Speed, "speed", 0, "delay between scripted events")
	rootCmd.PersistentFlags().StringVar(&opts.LogLevel, "log", opts.LogLevel, "log level")
	rootCmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", opts.LogFormat, "log format (text|json)")
	rootCmd.MarkPersistentFlagRequired("script")
}

// Execute runs the root command; called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func banner() {
	fmt.Println(ansi.Color("oranet-replay", "magenta+b"))
}

func run(cmd *cobra.Command, args []string) error {

	opts.Profile = os.Getenv("DEBUG")
	if opts.Profile != "" {
		defer profileOption(opts.Profile).Stop()
	}

	log.SetLevel(opts.LogLevel)
	log.SetFormat(opts.LogFormat)

	banner()

	s, err := loadScript(opts.Script)
	if err != nil {
		return err
	}

	log.Infof("replaying %q (%d steps)", s.Name, len(s.Steps))

	m := conn.New()
	d := newPrintingDispatcher()

	for i, st := range s.Steps {
		if opts.Speed > 0 {
			time.Sleep(opts.Speed)
		}
		log.WithField("step", i).Debugln(st.Kind)
		action := dispatchStep(m, st)
		conn.Dispatch(d, action)
	}

	return nil
}

// profileOption maps the DEBUG environment variable onto a
// github.com/pkg/profile mode.
func profileOption(mode string) interface {
	Stop()
} {
	switch mode {
	case "mem":
		return profile.Start(profile.MemProfile)
	case "block":
		return profile.Start(profile.BlockProfile)
	case "trace":
		return profile.Start(profile.TraceProfile)
	default:
		return profile.Start(profile.CPUProfile)
	}
}
