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

// ResourceManager guards the single device handle a process may hold.
type ResourceManager struct {
	mu    sync.Mutex
	count int
}

// Lease is the right to hold an open device session.
type Lease struct {
	rm       *ResourceManager
	released bool
}

var defaultResourceManager = &ResourceManager{}

// DefaultResourceManager returns the process-wide manager used by New unless
// WithResourceManager is given.
func DefaultResourceManager() *ResourceManager {
	return defaultResourceManager
}

// Acquire succeeds only if no lease is outstanding.
func (rm *ResourceManager) Acquire() (*Lease, bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.count != 0 {
		return nil, false
	}
	rm.count = 1
	return &Lease{rm: rm}, true
}

// Release returns false if the lease was already returned.
func (l *Lease) Release() bool {
	rm := l.rm
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if l.released || rm.count != 1 {
		return false
	}
	l.released = true
	rm.count = 0
	return true
}
