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
	"encoding/json"
	"sync"

	"github.com/golang/glog"
	"github.com/juju/errors"
	"golang.org/x/net/websocket"

	"github.com/mongoose-os/atca/common/mgrpc/frame"
)

// WSProtocol is the subprotocol devices expect on their /rpc endpoint.
const WSProtocol = "clubby.cesanta.com"

func jsonMarshal(v interface{}) ([]byte, byte, error) {
	f, ok := v.(*frame.Frame)
	if !ok {
		return nil, websocket.TextFrame, errors.Errorf("only RPC frames are supported, got %T", v)
	}
	b, err := frame.MarshalJSON(f)
	return b, websocket.TextFrame, err
}

func jsonUnmarshal(data []byte, payloadType byte, v interface{}) error {
	f, ok := v.(*frame.Frame)
	if !ok {
		return errors.Errorf("only RPC frames are supported, got %T", v)
	}
	if payloadType != websocket.TextFrame && payloadType != websocket.BinaryFrame {
		return errors.Errorf("unknown frame type: %d", payloadType)
	}
	f.SizeHint = len(data)
	return errors.Trace(json.Unmarshal(data, f))
}

type wsCodec struct {
	conn        *websocket.Conn
	codec       websocket.Codec
	closeNotify chan struct{}
	closeOnce   sync.Once
}

// WebSocket carries one frame per websocket message. Works for both the
// dialing and the accepting side.
func WebSocket(conn *websocket.Conn) Codec {
	return &wsCodec{
		conn:        conn,
		codec:       websocket.Codec{Marshal: jsonMarshal, Unmarshal: jsonUnmarshal},
		closeNotify: make(chan struct{}),
	}
}

func (c *wsCodec) remoteAddr() string {
	if req := c.conn.Request(); req != nil && req.RemoteAddr != "" {
		return req.RemoteAddr
	}
	return c.conn.RemoteAddr().String()
}

func (c *wsCodec) Recv(ctx context.Context) (*frame.Frame, error) {
	var f frame.Frame
	if err := c.codec.Receive(c.conn, &f); err != nil {
		glog.V(2).Infof("%s: recv: %s", c.remoteAddr(), err)
		c.Close()
		return nil, errors.Trace(err)
	}
	glog.V(2).Infof("%s: recv %s", c.remoteAddr(), &f)
	return &f, nil
}

func (c *wsCodec) Send(ctx context.Context, f *frame.Frame) error {
	glog.V(2).Infof("%s: send %s", c.remoteAddr(), f)
	return errors.Trace(c.codec.Send(c.conn, f))
}

func (c *wsCodec) Close() {
	c.closeOnce.Do(func() {
		glog.V(1).Infof("Closing %s", c.remoteAddr())
		close(c.closeNotify)
		c.conn.Close()
	})
}

func (c *wsCodec) CloseNotify() <-chan struct{} {
	return c.closeNotify
}

func (c *wsCodec) Info() ConnectionInfo {
	connected := true
	select {
	case <-c.closeNotify:
		connected = false
	default:
	}
	return ConnectionInfo{IsConnected: connected, RemoteAddr: c.remoteAddr()}
}

func (c *wsCodec) SetOptions(opts *Options) error {
	return errors.NotImplementedf("SetOptions")
}
