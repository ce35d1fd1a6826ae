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

package wire

import "sync"

// Completer is the dispatcher-facing side of a single caller request: the
// state machines never block on it, they only ever call Succeed or Fail
// exactly once and hand the Completer back inside an Action for the
// dispatcher to fulfil. The one-shot guarantee is enforced here rather than
// trusted from call sites, since a double-complete bug in a reentrant error
// path is exactly the class of defect this engine exists to avoid.
type Completer[T any] struct {
	once sync.Once
	ch   chan result[T]
}

type result[T any] struct {
	value T
	err   error
}

// NewCompleter allocates a Completer ready to be handed to a caller request.
func NewCompleter[T any]() *Completer[T] {
	return &Completer[T]{ch: make(chan result[T], 1)}
}

// Succeed completes the request with a value. A second call (from either
// Succeed or Fail) is a no-op: a completer fires exactly once.
func (c *Completer[T]) Succeed(v T) {
	c.once.Do(func() { c.ch <- result[T]{value: v} })
}

// Fail completes the request with an error.
func (c *Completer[T]) Fail(err error) {
	c.once.Do(func() { c.ch <- result[T]{err: err} })
}

// Wait blocks until the request is completed. It is the dispatcher/caller
// side of the handshake; the state machines themselves never call it.
func (c *Completer[T]) Wait() (T, error) {
	r := <-c.ch
	return r.value, r.err
}

// Chain arranges for this completer to be fulfilled with whatever outcome
// `other` receives, without the caller needing to Wait() on `other` itself.
// This is how Close merges a second close request that arrives while a
// first is still quiescing.
func (c *Completer[T]) Chain(other *Completer[T]) {
	go func() {
		v, err := other.Wait()
		if err != nil {
			c.Fail(err)
			return
		}
		c.Succeed(v)
	}()
}
