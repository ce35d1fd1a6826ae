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
	"io/ioutil"

	"github.com/hjson/hjson-go"
)

// step is one scripted inbound event: Kind names the conn.Machine method to
// drive ("connected", "acceptReceived", "parameterReceived", ...), and
// Params carries whatever that method needs, loosely typed the way a
// human-editable Hjson file naturally comes out.
type step struct {
	Kind   string                 `json:"kind"`
	Params map[string]interface{} `json:"params"`
}

// script is a whole trace: a human-authored sequence of steps, easier to
// read and hand-edit as Hjson than as strict JSON — comments and
// trailing commas survive a hand edit.
type script struct {
	Name  string `json:"name"`
	Steps []step `json:"steps"`
}

// loadScript reads and parses an Hjson trace script from disk.
func loadScript(path string) (*script, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var generic map[string]interface{}
	if err := hjson.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	s := &script{}
	if name, ok := generic["name"].(string); ok {
		s.Name = name
	}
	if rawSteps, ok := generic["steps"].([]interface{}); ok {
		for _, rs := range rawSteps {
			m, ok := rs.(map[string]interface{})
			if !ok {
				continue
			}
			st := step{Params: map[string]interface{}{}}
			if kind, ok := m["kind"].(string); ok {
				st.Kind = kind
			}
			if params, ok := m["params"].(map[string]interface{}); ok {
				st.Params = params
			}
			s.Steps = append(s.Steps, st)
		}
	}
	return s, nil
}
