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
package mgrpchw

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/atca/atca"
	"github.com/mongoose-os/atca/common/mgrpc/codec"
	"github.com/mongoose-os/atca/common/mgrpc/frame"
)

// Handler serves the ATCA RPC service from local hardware. It is the device
// side of Chip and lets a simulated chip stand in for a real device.
type Handler struct {
	hw atca.Hardware
}

func NewHandler(hw atca.Hardware) *Handler {
	return &Handler{hw: hw}
}

type handlerFunc func(h *Handler, args json.RawMessage) (interface{}, error)

var handlers = map[string]handlerFunc{
	methodGetConfig: (*Handler).getConfig,
	methodSetConfig: (*Handler).setConfig,
	methodLockZone:  (*Handler).lockZone,
	methodSetKey:    (*Handler).setKey,
	methodGenKey:    (*Handler).genKey,
	methodGetPubKey: (*Handler).getPubKey,
	methodSign:      (*Handler).sign,
	methodRandom:    (*Handler).random,
	methodVerify:    (*Handler).verify,
	methodInfo:      (*Handler).info,
}

// Handle runs one request and returns the response to send back.
func (h *Handler) Handle(cmd *frame.Command) *frame.Response {
	resp := &frame.Response{ID: cmd.ID}
	hf, ok := handlers[cmd.Cmd]
	if !ok {
		resp.Status, resp.StatusMsg = 404, "No handler for "+cmd.Cmd
		return resp
	}
	res, err := hf(h, cmd.Args)
	if err != nil {
		glog.V(1).Infof("%s: %s", cmd.Cmd, err)
		st := atca.StatusOf(err)
		resp.Status, resp.StatusMsg = int(st), err.Error()
		return resp
	}
	if res != nil {
		if resp.Response, err = json.Marshal(res); err != nil {
			resp.Status, resp.StatusMsg = int(atca.StatusGenFail), err.Error()
		}
	}
	return resp
}

// Serve answers requests arriving on c until the peer goes away or ctx is
// done.
func (h *Handler) Serve(ctx context.Context, c codec.Codec) error {
	defer c.Close()
	for {
		f, err := c.Recv(ctx)
		if err != nil {
			if codec.IsEOF(err) {
				return nil
			}
			return errors.Trace(err)
		}
		if !f.IsRequest() {
			continue
		}
		resp := h.Handle(frame.NewCommandFromFrame(f))
		if f.NoResponse {
			continue
		}
		if err := c.Send(ctx, frame.NewResponseFrame(f.Dst, f.Src, resp)); err != nil {
			return errors.Trace(err)
		}
	}
}

func parseArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return errors.Wrap(err, atca.StatusParseError)
	}
	return nil
}

func fromB64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, atca.StatusBadParam)
	}
	return b, nil
}

func (h *Handler) getConfig(args json.RawMessage) (interface{}, error) {
	cfg, err := h.hw.ReadConfigZone()
	if err != nil {
		return nil, err
	}
	return &GetConfigResult{Config: b64(cfg)}, nil
}

func (h *Handler) setConfig(args json.RawMessage) (interface{}, error) {
	var a SetConfigArgs
	if err := parseArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Config == nil {
		return nil, atca.StatusBadParam
	}
	cfg, err := fromB64(*a.Config)
	if err != nil {
		return nil, err
	}
	cw, ok := h.hw.(atca.ConfigWriter)
	if !ok {
		return nil, atca.StatusUnimplemented
	}
	return nil, cw.WriteConfigZone(cfg)
}

func (h *Handler) lockZone(args json.RawMessage) (interface{}, error) {
	var a LockZoneArgs
	if err := parseArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Zone == nil {
		return nil, atca.StatusBadParam
	}
	zl, ok := h.hw.(atca.ZoneLocker)
	if !ok {
		return nil, atca.StatusUnimplemented
	}
	return nil, zl.LockZone(atca.LockZone(*a.Zone))
}

func (h *Handler) setKey(args json.RawMessage) (interface{}, error) {
	var a SetKeyArgs
	if err := parseArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Slot < 0 || a.Slot >= atca.SlotCount || a.Block < 0 {
		return nil, atca.StatusBadParam
	}
	key, err := fromB64(a.Key)
	if err != nil {
		return nil, err
	}
	var wkey []byte
	if a.Wkey != "" {
		if wkey, err = fromB64(a.Wkey); err != nil {
			return nil, err
		}
	}
	numIn := make([]byte, atca.NumInSize)
	rand.Read(numIn)
	slot, block := uint16(a.Slot), uint8(a.Block)
	switch {
	case a.Ecc:
		if len(key) != atca.PrivateKeySize {
			return nil, atca.StatusBadParam
		}
		priv := append(make([]byte, 4), key...)
		return nil, h.hw.PrivWrite(slot, priv, uint16(a.Wkslot), wkey, numIn)
	case wkey != nil:
		return nil, h.hw.WriteEnc(slot, block, key, wkey, uint16(a.Wkslot), numIn)
	default:
		return nil, h.hw.WriteZone(atca.ZoneData, slot, block, 0, key)
	}
}

func (h *Handler) genKey(args json.RawMessage) (interface{}, error) {
	var a GenKeyArgs
	if err := parseArgs(args, &a); err != nil {
		return nil, err
	}
	pub, err := h.hw.GenKey(uint16(a.Slot))
	if err != nil {
		return nil, err
	}
	return &GenKeyResult{Pubkey: b64(pub)}, nil
}

func (h *Handler) getPubKey(args json.RawMessage) (interface{}, error) {
	var a GetPubKeyArgs
	if err := parseArgs(args, &a); err != nil {
		return nil, err
	}
	pub, err := h.hw.GetPubKey(uint16(a.Slot))
	if err != nil {
		return nil, err
	}
	return &GetPubKeyResult{Pubkey: b64(pub)}, nil
}

func (h *Handler) sign(args json.RawMessage) (interface{}, error) {
	var a SignArgs
	if err := parseArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Digest == nil {
		return nil, atca.StatusBadParam
	}
	digest, err := fromB64(*a.Digest)
	if err != nil {
		return nil, err
	}
	sig, err := h.hw.Sign(uint16(a.Slot), digest)
	if err != nil {
		return nil, err
	}
	return &SignResult{Signature: b64(sig)}, nil
}

func (h *Handler) random(args json.RawMessage) (interface{}, error) {
	r, err := h.hw.Random()
	if err != nil {
		return nil, err
	}
	return &RandomResult{Random: b64(r)}, nil
}

func (h *Handler) verify(args json.RawMessage) (interface{}, error) {
	var a VerifyArgs
	if err := parseArgs(args, &a); err != nil {
		return nil, err
	}
	digest, err := fromB64(a.Digest)
	if err != nil {
		return nil, err
	}
	sig, err := fromB64(a.Signature)
	if err != nil {
		return nil, err
	}
	var ok bool
	switch {
	case a.Pubkey != "":
		pub, err := fromB64(a.Pubkey)
		if err != nil {
			return nil, err
		}
		ok, err = h.hw.VerifyExtern(digest, sig, pub)
		if err != nil {
			return nil, err
		}
	case a.Slot != nil:
		if ok, err = h.hw.VerifyStored(digest, sig, uint16(*a.Slot)); err != nil {
			return nil, err
		}
	default:
		return nil, atca.StatusBadParam
	}
	return &VerifyResult{Valid: ok}, nil
}

func (h *Handler) info(args json.RawMessage) (interface{}, error) {
	var a InfoArgs
	if err := parseArgs(args, &a); err != nil {
		return nil, err
	}
	info, err := h.hw.Info(atca.InfoCmd(a.Cmd), uint16(a.Param))
	if err != nil {
		return nil, err
	}
	return &InfoResult{Info: b64(info)}, nil
}
