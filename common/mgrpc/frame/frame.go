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

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/juju/errors"
)

// Frame is an RPC request or response as sent over the wire.
type Frame struct {
	// Version is 2 for frames we send.
	Version int `json:"v,omitempty"`

	Src string `json:"src,omitempty"`
	Dst string `json:"dst,omitempty"`

	// Tag, if present, is copied verbatim to the response frame.
	Tag string `json:"tag,omitempty"`

	ID int64 `json:"id,omitempty"`

	// Request
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	// Number of seconds after which the result is no longer relevant.
	Timeout int64 `json:"timeout,omitempty"`

	// Response
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`

	// Size hint, if present, gives approximate size of the frame in memory.
	SizeHint int `json:"-"`

	NoResponse bool `json:"nr,omitempty"`

	// Older firmware expects arguments in "args".
	DeprecatedArgs json.RawMessage `json:"args,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

type Command struct {
	Cmd     string          `json:"cmd"`
	ID      int64           `json:"id,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
	Timeout int64           `json:"timeout,omitempty"`
}

type Response struct {
	ID int64 `json:"id"`

	// Non-zero value means error.
	Status    int             `json:"status"`
	StatusMsg string          `json:"status_msg,omitempty"`
	Response  json.RawMessage `json:"resp,omitempty"`
}

// Auto-generated ids should be "large but not ginormous".
const autoIDPrefix int64 = 1 << 40

// CreateCommandID creates a unique id for commands.
func CreateCommandID() int64 {
	return rand.Int63n(autoIDPrefix) | autoIDPrefix
}

func (f *Frame) IsRequest() bool {
	return f.Method != ""
}

const frameSizeStringifyLimit = 2048

func (f *Frame) String() string {
	buf := bytes.NewBuffer(nil)
	lim := NewLimitedWriter(buf, frameSizeStringifyLimit) // in case the hint is missing or wrong
	fmt.Fprintf(lim, "%q -> %q v=%d id=%d ", f.Src, f.Dst, f.Version, f.ID)
	switch {
	case f.SizeHint >= frameSizeStringifyLimit && f.IsRequest():
		fmt.Fprintf(lim, "%s params=(too big) %d", f.Method, f.SizeHint)
	case f.SizeHint >= frameSizeStringifyLimit:
		fmt.Fprintf(lim, "result=(too big) error=%v %d", f.Error, f.SizeHint)
	case f.IsRequest():
		fmt.Fprintf(lim, "%s params=%s", f.Method, f.Params)
	default:
		fmt.Fprintf(lim, "result=%s error=%v", f.Result, f.Error)
	}
	return buf.String()
}

func (c Command) String() string {
	r := fmt.Sprintf("{%s id=%d", c.Cmd, c.ID)
	if len(c.Args) > 0 {
		r += fmt.Sprintf(" args=%q", c.Args)
	}
	return r + "}"
}

func (r Response) String() string {
	ret := "{"
	if r.Status == 0 {
		ret += "OK"
	} else {
		ret += fmt.Sprintf("status=%d", r.Status)
	}
	ret += fmt.Sprintf(" id=%d", r.ID)
	if r.StatusMsg != "" {
		ret += fmt.Sprintf(" msg=%q", r.StatusMsg)
	}
	if len(r.Response) > 0 {
		ret += fmt.Sprintf(" resp=%q", r.Response)
	}
	return ret + "}"
}

func NewRequestFrame(src, dst string, cmd *Command, compatArgs bool) *Frame {
	f := &Frame{
		Version: 2,
		Src:     src,
		Dst:     dst,
		ID:      cmd.ID,
		Method:  cmd.Cmd,
		Timeout: cmd.Timeout,
	}
	if compatArgs {
		f.DeprecatedArgs = cmd.Args
	} else {
		f.Params = cmd.Args
	}
	return f
}

func NewResponseFrame(src, dst string, resp *Response) *Frame {
	f := &Frame{
		Version: 2,
		Src:     src,
		Dst:     dst,
		ID:      resp.ID,
		Result:  resp.Response,
	}
	if resp.Status != 0 {
		f.Error = &Error{Code: resp.Status, Message: resp.StatusMsg}
	}
	return f
}

func NewCommandFromFrame(f *Frame) *Command {
	p := f.Params
	if p == nil {
		p = f.DeprecatedArgs
	}
	return &Command{
		Cmd:     f.Method,
		ID:      f.ID,
		Args:    p,
		Timeout: f.Timeout,
	}
}

func NewResponseFromFrame(f *Frame) *Response {
	r := &Response{ID: f.ID, Response: f.Result}
	if f.Error != nil {
		r.Status = f.Error.Code
		r.StatusMsg = f.Error.Message
	}
	return r
}

func MarshalJSON(f *Frame) ([]byte, error) {
	w := bytes.NewBuffer(nil)
	e := json.NewEncoder(w)
	e.SetEscapeHTML(false)
	err := e.Encode(f)
	return bytes.TrimRight(w.Bytes(), "\n"), errors.Trace(err)
}
