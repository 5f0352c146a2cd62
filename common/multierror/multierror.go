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
package multierror

import (
	"bytes"
	"fmt"

	"github.com/juju/errors"
)

// Error bundles multiple errors. The first error is the primary one: Cause
// reports its cause, so errors.Cause and status checks see through the
// bundle.
type Error struct {
	errs []error
}

func (e *Error) Error() string {
	if len(e.errs) == 1 {
		return e.errs[0].Error()
	}
	buf := bytes.NewBuffer(nil)
	fmt.Fprintf(buf, "%d error(s) occurred:", len(e.errs))
	for _, err := range e.errs {
		fmt.Fprintf(buf, "\n%s", err)
	}
	return buf.String()
}

func (e *Error) Cause() error {
	if len(e.errs) == 0 {
		return nil
	}
	return errors.Cause(e.errs[0])
}

// Errors returns the bundled errors in the order they were appended.
func (e *Error) Errors() []error {
	return append([]error(nil), e.errs...)
}

// Append adds errs to err. nil values are skipped, and nil is returned if
// there is nothing to report. A single error is returned unwrapped.
func Append(err error, errs ...error) error {
	var all []error
	if me, ok := err.(*Error); ok {
		all = me.errs
	} else if err != nil {
		all = []error{err}
	}
	for _, e := range errs {
		if e != nil {
			all = append(all, e)
		}
	}
	switch len(all) {
	case 0:
		return nil
	case 1:
		return all[0]
	}
	return &Error{errs: all}
}
