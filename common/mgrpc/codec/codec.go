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
package codec

import (
	"context"
	"io"
	"runtime"
	"strings"

	"github.com/juju/errors"

	"github.com/mongoose-os/atca/common/mgrpc/frame"
)

// Codec carries RPC frames between us and a device.
type Codec interface {
	// Recv returns the next incoming frame.
	Recv(context.Context) (*frame.Frame, error)
	// Send sends the frame to the remote peer.
	Send(context.Context, *frame.Frame) error
	// Close closes the channel.
	Close()
	// CloseNotify() returns a channel that will be closed once the underlying channel has been closed.
	CloseNotify() <-chan struct{}
	// Info() returns information about underlying connection.
	Info() ConnectionInfo
	// SetOptions() adjusts codec options.
	SetOptions(opts *Options) error
}

type Options struct {
	Serial SerialCodecOptions
}

type ConnectionInfo struct {
	IsConnected bool
	// RemoteAddr is the address of the remote peer: host:port or the port name.
	RemoteAddr string
}

// IsEOF returns true when err means "end of file".
func IsEOF(err error) bool {
	ret := (errors.Cause(err) == io.EOF)

	// A vanished COM port on Windows does not produce an EOF.
	if runtime.GOOS == "windows" && err != nil {
		ret = ret || strings.Contains(err.Error(), "The I/O operation has been aborted")
	}
	return ret
}
