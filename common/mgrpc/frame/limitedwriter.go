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
package frame

import "io"

// LimitedWriter passes through at most n bytes to w. Writes past the limit
// are truncated and return io.EOF.
type LimitedWriter struct {
	w io.Writer
	n int
}

func NewLimitedWriter(w io.Writer, n int) *LimitedWriter {
	return &LimitedWriter{w: w, n: n}
}

func (l *LimitedWriter) Write(p []byte) (int, error) {
	if l.n <= 0 {
		return 0, io.EOF
	}
	var err error
	if len(p) > l.n {
		p = p[:l.n]
		err = io.EOF
	}
	n, werr := l.w.Write(p)
	l.n -= n
	if werr != nil {
		return n, werr
	}
	return n, err
}
