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
package dev

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/atca/common/mgrpc"
	"github.com/mongoose-os/atca/common/mgrpc/codec"
	"github.com/mongoose-os/atca/common/mgrpc/frame"
)

const (
	// Empty destination makes the device handle the frame itself.
	debugDevId = ""

	localID = "atcatool"
)

type MosDevConn struct {
	c           *Client
	ConnectAddr string
	RPC         mgrpc.MgRPC
	Dest        string
}

// CreateDevConn connects to the device at connectAddr, e.g.
// "serial:///dev/ttyUSB0", "serial://COM7" or "tcp://192.168.0.10:1234".
func (c *Client) CreateDevConn(ctx context.Context, connectAddr string) (*MosDevConn, error) {
	dc := &MosDevConn{c: c, ConnectAddr: connectAddr, Dest: debugDevId}
	opts := []mgrpc.ConnectOption{
		mgrpc.LocalID(localID),
		mgrpc.CompatArgs(c.CompatArgs),
		mgrpc.CodecOptions(&codec.Options{Serial: codec.SerialCodecOptions{
			BaudRate:        c.BaudRate,
			SetControlLines: c.SetControlLines,
		}}),
	}
	var err error
	if dc.RPC, err = mgrpc.New(ctx, connectAddr, opts...); err != nil {
		return nil, errors.Trace(err)
	}
	return dc, nil
}

// NewDevConn wraps an established RPC channel.
func (c *Client) NewDevConn(rpc mgrpc.MgRPC) *MosDevConn {
	return &MosDevConn{c: c, RPC: rpc, Dest: debugDevId}
}

func (dc *MosDevConn) Disconnect(ctx context.Context) error {
	if dc.RPC == nil {
		return nil
	}
	glog.V(2).Infof("Disconnecting from %s", dc.ConnectAddr)
	err := dc.RPC.Disconnect(ctx)
	// Windows needs a moment before the port can be opened again.
	if dc.ConnectAddr != "" {
		time.Sleep(500 * time.Millisecond)
	}
	dc.RPC = nil
	return err
}

func (dc *MosDevConn) IsConnected() bool {
	return dc.RPC != nil && dc.RPC.IsConnected()
}

func (dc *MosDevConn) GetTimeout() time.Duration {
	return dc.c.Timeout
}

func (dc *MosDevConn) CallRaw(ctx context.Context, method string, args interface{}) (json.RawMessage, error) {
	if dc.RPC == nil {
		return nil, errors.Errorf("not connected")
	}
	cmd := &frame.Command{Cmd: method}
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to serialize args")
		}
		cmd.Args = b
	}

	resp, err := dc.RPC.Call(ctx, dc.Dest, cmd)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if resp.Status != 0 {
		return nil, &RemoteError{Code: resp.Status, Message: resp.StatusMsg}
	}
	return resp.Response, nil
}

func (dc *MosDevConn) Call(ctx context.Context, method string, args interface{}, resp interface{}) error {
	respRaw, err := dc.CallRaw(ctx, method, args)
	if err != nil {
		return errors.Trace(err)
	}
	if resp != nil && len(respRaw) > 0 {
		return errors.Annotatef(json.Unmarshal(respRaw, resp), "%s: bad response", method)
	}
	return nil
}

// RemoteError is a non-zero status returned by the device.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}
