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
package mgrpc

import (
	"context"
	"net"
	"strings"
	"sync"

	"github.com/golang/glog"
	"github.com/juju/errors"
	"golang.org/x/net/websocket"

	"github.com/mongoose-os/atca/common/mgrpc/codec"
	"github.com/mongoose-os/atca/common/mgrpc/frame"
)

const (
	tcpPrefix    = "tcp://"
	serialPrefix = "serial://"
	wsPrefix     = "ws://"
	wssPrefix    = "wss://"

	wsOrigin = "http://localhost/"
)

// MgRPC is a client connection to a device RPC endpoint.
type MgRPC interface {
	Call(ctx context.Context, dst string, cmd *frame.Command) (*frame.Response, error)
	Disconnect(ctx context.Context) error
	IsConnected() bool
}

type connectOptions struct {
	localID      string
	codecOptions codec.Options
	compatArgs   bool
	codec        codec.Codec
}

type ConnectOption func(*connectOptions) error

// LocalID sets the source address of outgoing frames.
func LocalID(id string) ConnectOption {
	return func(o *connectOptions) error {
		o.localID = id
		return nil
	}
}

func CodecOptions(co *codec.Options) ConnectOption {
	return func(o *connectOptions) error {
		o.codecOptions = *co
		return nil
	}
}

// CompatArgs sends arguments in "args" rather than "params".
func CompatArgs(enable bool) ConnectOption {
	return func(o *connectOptions) error {
		o.compatArgs = enable
		return nil
	}
}

// UseCodec runs RPC over an already established codec. The address given
// to New is ignored.
func UseCodec(c codec.Codec) ConnectOption {
	return func(o *connectOptions) error {
		o.codec = c
		return nil
	}
}

type mgRPCImpl struct {
	opts  connectOptions
	codec codec.Codec

	reqsLock sync.Mutex
	reqs     map[int64]chan *frame.Frame
}

// New connects to connectAddr: "tcp://host:port", "ws://host/rpc",
// "serial:///dev/ttyUSB0" or a bare port name.
func New(ctx context.Context, connectAddr string, opts ...ConnectOption) (MgRPC, error) {
	r := &mgRPCImpl{reqs: make(map[int64]chan *frame.Frame)}
	for _, opt := range opts {
		if err := opt(&r.opts); err != nil {
			return nil, errors.Trace(err)
		}
	}
	c := r.opts.codec
	if c == nil {
		var err error
		if c, err = r.connect(ctx, connectAddr); err != nil {
			return nil, errors.Trace(err)
		}
	}
	r.codec = c
	go r.recvLoop()
	return r, nil
}

func (r *mgRPCImpl) connect(ctx context.Context, addr string) (codec.Codec, error) {
	switch {
	case strings.HasPrefix(addr, tcpPrefix):
		hostPort := addr[len(tcpPrefix):]
		glog.V(1).Infof("Connecting to %s", hostPort)
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", hostPort)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to connect to %s", hostPort)
		}
		return codec.TCP(conn), nil
	case strings.HasPrefix(addr, wsPrefix), strings.HasPrefix(addr, wssPrefix):
		cfg, err := websocket.NewConfig(addr, wsOrigin)
		if err != nil {
			return nil, errors.Trace(err)
		}
		cfg.Protocol = []string{codec.WSProtocol}
		glog.V(1).Infof("Connecting to %s", addr)
		conn, err := websocket.DialConfig(cfg)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to connect to %s", addr)
		}
		return codec.WebSocket(conn), nil
	case strings.HasPrefix(addr, serialPrefix):
		addr = addr[len(serialPrefix):]
		fallthrough
	default:
		if addr == "" {
			return nil, errors.Errorf("no port specified")
		}
		return codec.Serial(ctx, addr, &r.opts.codecOptions.Serial)
	}
}

func (r *mgRPCImpl) recvLoop() {
	defer r.failPending()
	for {
		f, err := r.codec.Recv(context.Background())
		if err != nil {
			if !codec.IsEOF(err) {
				glog.Errorf("recv error: %s", err)
			}
			return
		}
		if f.IsRequest() {
			glog.V(1).Infof("unexpected request %s", f)
			if !f.NoResponse {
				resp := frame.NewResponseFrame(r.opts.localID, f.Src, &frame.Response{
					ID: f.ID, Status: 404, StatusMsg: "No handler for " + f.Method,
				})
				r.codec.Send(context.Background(), resp)
			}
			continue
		}
		r.reqsLock.Lock()
		ch, ok := r.reqs[f.ID]
		delete(r.reqs, f.ID)
		r.reqsLock.Unlock()
		if !ok {
			glog.V(1).Infof("dropping response to unknown request %d", f.ID)
			continue
		}
		ch <- f
	}
}

func (r *mgRPCImpl) failPending() {
	r.reqsLock.Lock()
	defer r.reqsLock.Unlock()
	for id, ch := range r.reqs {
		close(ch)
		delete(r.reqs, id)
	}
}

func (r *mgRPCImpl) Call(ctx context.Context, dst string, cmd *frame.Command) (*frame.Response, error) {
	if cmd.ID == 0 {
		cmd.ID = frame.CreateCommandID()
	}
	ch := make(chan *frame.Frame, 1)
	r.reqsLock.Lock()
	r.reqs[cmd.ID] = ch
	r.reqsLock.Unlock()
	defer func() {
		r.reqsLock.Lock()
		delete(r.reqs, cmd.ID)
		r.reqsLock.Unlock()
	}()

	req := frame.NewRequestFrame(r.opts.localID, dst, cmd, r.opts.compatArgs)
	if err := r.codec.Send(ctx, req); err != nil {
		return nil, errors.Trace(err)
	}
	select {
	case f, ok := <-ch:
		if !ok {
			return nil, errors.Errorf("connection closed while waiting for %s", cmd.Cmd)
		}
		return frame.NewResponseFromFrame(f), nil
	case <-ctx.Done():
		return nil, errors.Annotatef(ctx.Err(), "%s", cmd.Cmd)
	}
}

func (r *mgRPCImpl) Disconnect(ctx context.Context) error {
	r.codec.Close()
	select {
	case <-r.codec.CloseNotify():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (r *mgRPCImpl) IsConnected() bool {
	return r.codec.Info().IsConnected
}
