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
// Package mgrpchw talks to a secure element attached to a Mongoose OS
// device through the device's ATCA RPC service. Only the commands the
// service exposes are available; the rest fail with StatusUnimplemented.
package mgrpchw

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/atca/atca"
	"github.com/mongoose-os/atca/cli/dev"
)

const (
	lockValueOffset  = 86
	lockConfigOffset = 87
	unlockedValue    = 0x55

	defaultTimeout = 10 * time.Second
)

// Chip is an atca.Hardware backed by RPC calls. The configuration zone is
// fetched once and refreshed after every provisioning command.
type Chip struct {
	dc      dev.DevConn
	devType atca.DeviceType
	config  []byte
}

var (
	_ atca.Hardware     = (*Chip)(nil)
	_ atca.ConfigWriter = (*Chip)(nil)
	_ atca.ZoneLocker   = (*Chip)(nil)
)

func New(dc dev.DevConn, devType atca.DeviceType) (*Chip, error) {
	c := &Chip{dc: dc, devType: devType}
	if err := c.refreshConfig(); err != nil {
		return nil, errors.Trace(err)
	}
	return c, nil
}

// Open implements atca.OpenFunc for IfaceUART (cfg.Port) and IfaceTCP
// (cfg.Address, either host:port or a ws:// URL).
func Open(cfg *atca.IfaceConfig) (atca.Hardware, error) {
	return OpenWith(&dev.Client{Timeout: cfg.Timeout, BaudRate: 115200, SetControlLines: true}, cfg)
}

// OpenWith is like Open but takes connection settings (baud rate, control
// lines, compat args) from client. client.Port is ignored.
func OpenWith(client *dev.Client, cfg *atca.IfaceConfig) (atca.Hardware, error) {
	var addr string
	switch cfg.IfaceType {
	case atca.IfaceUART:
		addr = cfg.Port
	case atca.IfaceTCP:
		addr = cfg.Address
		if !strings.Contains(addr, "://") {
			addr = "tcp://" + addr
		}
	default:
		return nil, errors.Errorf("%s is not an RPC interface", cfg.IfaceType)
	}
	cl := *client
	cl.Port = addr
	if cfg.Timeout > 0 {
		cl.Timeout = cfg.Timeout
	}
	if cl.Timeout == 0 {
		cl.Timeout = defaultTimeout
	}
	var dc *dev.MosDevConn
	err := cl.RunWithTimeout(context.Background(), func(ctx context.Context) error {
		var err error
		dc, err = cl.CreateDevConn(ctx, addr)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, atca.StatusCommFail)
	}
	c, err := New(dc, cfg.DeviceType)
	if err != nil {
		dc.Disconnect(context.Background())
		return nil, err
	}
	return c, nil
}

func init() {
	atca.RegisterInterface(atca.IfaceUART, Open)
	atca.RegisterInterface(atca.IfaceTCP, Open)
}

func (c *Chip) call(method string, args, resp interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.dc.GetTimeout())
	defer cancel()
	glog.V(2).Infof("%s %+v", method, args)
	return statusError(method, c.dc.Call(ctx, method, args, resp))
}

// statusError maps remote failures onto chip status codes.
func statusError(method string, err error) error {
	if err == nil {
		return nil
	}
	re, ok := errors.Cause(err).(*dev.RemoteError)
	if !ok {
		return errors.Wrap(err, atca.StatusCommFail)
	}
	switch {
	case re.Code == 404:
		return atca.StatusUnimplemented
	case atca.StatusFromCode(re.Code) != atca.StatusUnknown:
		return atca.StatusFromCode(re.Code)
	}
	return errors.Wrap(errors.Annotatef(err, "%s", method), atca.StatusExecutionError)
}

func decodeB64(s *string, size int) ([]byte, error) {
	if s == nil {
		return nil, atca.StatusRxFail
	}
	b, err := base64.StdEncoding.DecodeString(*s)
	if err != nil || (size > 0 && len(b) != size) {
		return nil, atca.StatusRxFail
	}
	return b, nil
}

func b64(b []byte) *string {
	s := base64.StdEncoding.EncodeToString(b)
	return &s
}

func (c *Chip) refreshConfig() error {
	var r GetConfigResult
	if err := c.call(methodGetConfig, nil, &r); err != nil {
		return err
	}
	cfg, err := decodeB64(r.Config, 0)
	if err != nil {
		return err
	}
	if len(cfg) < c.devType.ConfigSize() {
		return errors.Annotatef(atca.StatusRxFail, "config zone is %d bytes", len(cfg))
	}
	c.config = cfg[:c.devType.ConfigSize()]
	return nil
}

func (c *Chip) DeviceType() atca.DeviceType {
	return c.devType
}

func (c *Chip) ReadSerialNumber() ([]byte, error) {
	sn := append([]byte(nil), c.config[0:4]...)
	return append(sn, c.config[8:13]...), nil
}

func (c *Chip) IsLocked(zone atca.LockZone) (bool, error) {
	switch zone {
	case atca.LockZoneConfig:
		return c.config[lockConfigOffset] != unlockedValue, nil
	case atca.LockZoneData:
		return c.config[lockValueOffset] != unlockedValue, nil
	}
	return false, atca.StatusBadParam
}

func (c *Chip) ReadConfigZone() ([]byte, error) {
	return append([]byte(nil), c.config...), nil
}

// CmpConfigZone ignores the serial number, revision, UserExtra and lock bytes.
func (c *Chip) CmpConfigZone(config []byte) (bool, error) {
	if len(config) != len(c.config) {
		return false, atca.StatusBadParam
	}
	if !bytes.Equal(config[16:84], c.config[16:84]) {
		return false, nil
	}
	return bytes.Equal(config[88:], c.config[88:]), nil
}

func (c *Chip) ReadZone(zone atca.Zone, slot uint16, block, offset uint8, length int) ([]byte, error) {
	if zone != atca.ZoneConfig {
		return nil, atca.StatusUnimplemented
	}
	start := int(block)*atca.BlockSize + int(offset)*4
	if length <= 0 || start+length > len(c.config) {
		return nil, atca.StatusBadParam
	}
	return append([]byte(nil), c.config[start:start+length]...), nil
}

func (c *Chip) WriteZone(zone atca.Zone, slot uint16, block, offset uint8, data []byte) error {
	if zone != atca.ZoneData || offset != 0 || len(data) != atca.BlockSize {
		return atca.StatusUnimplemented
	}
	return c.call(methodSetKey, &SetKeyArgs{Slot: int(slot), Block: int(block), Key: *b64(data)}, nil)
}

func (c *Chip) ReadEnc(slot uint16, block uint8, key []byte, keyID uint16, numIn []byte) ([]byte, error) {
	return nil, atca.StatusUnimplemented
}

// WriteEnc leaves the nonce to the device.
func (c *Chip) WriteEnc(slot uint16, block uint8, data, key []byte, keyID uint16, numIn []byte) error {
	return c.call(methodSetKey, &SetKeyArgs{
		Slot:   int(slot),
		Block:  int(block),
		Key:    *b64(data),
		Wkey:   *b64(key),
		Wkslot: int(keyID),
	}, nil)
}

func (c *Chip) Random() ([]byte, error) {
	var r RandomResult
	if err := c.call(methodRandom, nil, &r); err != nil {
		return nil, err
	}
	return decodeB64(r.Random, atca.RandomSize)
}

func (c *Chip) SHA(msg []byte) ([]byte, error) {
	return nil, atca.StatusUnimplemented
}

func (c *Chip) NonceLoad(target atca.NonceTarget, data []byte) error {
	return atca.StatusUnimplemented
}

func (c *Chip) NonceRand(numIn []byte) ([]byte, error) {
	return nil, atca.StatusUnimplemented
}

func (c *Chip) GenKey(slot uint16) ([]byte, error) {
	var r GenKeyResult
	if err := c.call(methodGenKey, &GenKeyArgs{Slot: int64(slot)}, &r); err != nil {
		return nil, err
	}
	return decodeB64(r.Pubkey, atca.PublicKeySize)
}

func (c *Chip) GetPubKey(slot uint16) ([]byte, error) {
	var r GetPubKeyResult
	if err := c.call(methodGetPubKey, &GetPubKeyArgs{Slot: int64(slot)}, &r); err != nil {
		return nil, err
	}
	return decodeB64(r.Pubkey, atca.PublicKeySize)
}

func (c *Chip) ReadPubKey(slot uint16) ([]byte, error) {
	return nil, atca.StatusUnimplemented
}

func (c *Chip) WritePubKey(slot uint16, pub []byte) error {
	return atca.StatusUnimplemented
}

// PrivWrite sends the bare 32-byte scalar; the device adds padding and the nonce.
func (c *Chip) PrivWrite(slot uint16, priv []byte, writeKeyID uint16, writeKey, numIn []byte) error {
	if len(priv) != atca.PrivateKeySize+4 {
		return atca.StatusBadParam
	}
	args := &SetKeyArgs{Ecc: true, Slot: int(slot), Key: *b64(priv[4:])}
	if writeKey != nil {
		args.Wkey = *b64(writeKey)
		args.Wkslot = int(writeKeyID)
	}
	return c.call(methodSetKey, args, nil)
}

func (c *Chip) Sign(slot uint16, digest []byte) ([]byte, error) {
	var r SignResult
	if err := c.call(methodSign, &SignArgs{Slot: int64(slot), Digest: b64(digest)}, &r); err != nil {
		return nil, err
	}
	return decodeB64(r.Signature, atca.SignatureSize)
}

func (c *Chip) verify(args *VerifyArgs) (bool, error) {
	var r VerifyResult
	if err := c.call(methodVerify, args, &r); err != nil {
		return false, err
	}
	return r.Valid, nil
}

func (c *Chip) VerifyStored(digest, sig []byte, slot uint16) (bool, error) {
	s := int64(slot)
	return c.verify(&VerifyArgs{Digest: *b64(digest), Signature: *b64(sig), Slot: &s})
}

func (c *Chip) VerifyExtern(digest, sig, pub []byte) (bool, error) {
	return c.verify(&VerifyArgs{Digest: *b64(digest), Signature: *b64(sig), Pubkey: *b64(pub)})
}

func (c *Chip) AESEncryptBlock(keyID uint16, keyBlock uint8, in []byte) ([]byte, error) {
	return nil, atca.StatusUnimplemented
}

func (c *Chip) AESDecryptBlock(keyID uint16, keyBlock uint8, in []byte) ([]byte, error) {
	return nil, atca.StatusUnimplemented
}

func (c *Chip) Info(cmd atca.InfoCmd, param uint16) ([]byte, error) {
	var r InfoResult
	if err := c.call(methodInfo, &InfoArgs{Cmd: int(cmd), Param: int(param)}, &r); err != nil {
		return nil, err
	}
	return decodeB64(r.Info, atca.InfoSize)
}

func (c *Chip) WriteConfigZone(config []byte) error {
	if err := c.call(methodSetConfig, &SetConfigArgs{Config: b64(config)}, nil); err != nil {
		return err
	}
	return c.refreshConfig()
}

func (c *Chip) LockZone(zone atca.LockZone) error {
	z := int64(zone)
	if err := c.call(methodLockZone, &LockZoneArgs{Zone: &z}, nil); err != nil {
		return err
	}
	return c.refreshConfig()
}

func (c *Chip) Release() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.dc.GetTimeout())
	defer cancel()
	return errors.Trace(c.dc.Disconnect(ctx))
}
