//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
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
//
package atca

import "sync"

// session serialises access to the hardware. It is not re-entrant: code
// running inside do must not call do again.
type session struct {
	mu       sync.Mutex
	hw       Hardware
	poisoned bool
}

// do runs f with the hardware held. A panic in f poisons the session: the
// panic propagates and every later call panics too.
func (s *session) do(f func(hw Hardware) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.poisoned {
		panic("atca: hardware session poisoned by an earlier panic")
	}
	if s.hw == nil {
		return StatusFuncFail
	}
	done := false
	defer func() {
		if !done {
			s.poisoned = true
		}
	}()
	err := f(s.hw)
	done = true
	return err
}

// close detaches the hardware and releases it.
func (s *session) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hw == nil {
		return nil
	}
	hw := s.hw
	s.hw = nil
	if s.poisoned {
		return nil
	}
	return hw.Release()
}
