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
// Package sim is a software model of an ATECC508A/608A secure element.
// It keeps the configuration zone, the data zone and the volatile buffers
// in memory and enforces the chip's own access rules, which makes it usable
// both in tests and as a stand-in for hardware in the command line tool.
package sim

import (
	"bytes"
	"crypto/aes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"math/big"
	"sync"

	"github.com/golang/glog"

	"github.com/mongoose-os/atca/atca"
)

const (
	otpSize = 64

	userExtraOffset  = 84
	lockValueOffset  = 86
	lockConfigOffset = 87
	slotLockedOffset = 88
	unlocked         = 0x55
	locked           = 0x00

	// Public keys are stored as 4 pad bytes, X, 4 pad bytes, Y.
	pubKeyStoredSize = 72
	// Private keys are stored as 4 pad bytes followed by the scalar.
	privKeyStoredSize = 36
)

// Chip is a simulated device. All methods are safe for concurrent use.
type Chip struct {
	mu         sync.Mutex
	devType    atca.DeviceType
	config     []byte
	data       [atca.SlotCount][]byte
	otp        []byte
	tempKey    []byte
	msgDigBuf  []byte
	altKeyBuf  []byte
	released   bool
	statePath  string
	commandLog []string
}

var _ atca.Hardware = (*Chip)(nil)

// New returns a chip in factory state: default configuration for devType,
// both zones unlocked and an empty data zone.
func New(devType atca.DeviceType) *Chip {
	return NewWithConfig(devType, DefaultConfig(devType))
}

// NewWithConfig returns a chip with the given 128-byte configuration zone.
// Lock bytes are taken from config as is.
func NewWithConfig(devType atca.DeviceType, config []byte) *Chip {
	c := &Chip{
		devType: devType,
		config:  make([]byte, atca.ConfigSize),
		otp:     make([]byte, otpSize),
	}
	copy(c.config, config)
	for i := range c.data {
		c.data[i] = make([]byte, slotSize(uint8(i)))
	}
	return c
}

// NewProvisioned returns a chip with the default configuration, both zones
// locked, ECC keys generated in slots 0..5 and AES keys in slots 9, 10 and 15.
// The access key for slot 6 is accessKey.
func NewProvisioned(devType atca.DeviceType, accessKey []byte) *Chip {
	c := New(devType)
	copy(c.data[6], accessKey)
	for slot := uint16(0); slot <= 5; slot++ {
		c.genKey(slot)
	}
	if devType == atca.ATECC608A {
		for _, slot := range []int{9, 10, 15} {
			rand.Read(c.data[slot][:atca.AESKeySize])
		}
	}
	c.config[lockConfigOffset] = locked
	c.config[lockValueOffset] = locked
	return c
}

func slotSize(slot uint8) int {
	switch {
	case slot <= 7:
		return 36
	case slot == 8:
		return 416
	}
	return 72
}

// Commands returns the names of the commands executed so far.
func (c *Chip) Commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commandLog...)
}

// begin locks the chip and records cmd. On success the caller must call
// c.mu.Unlock.
func (c *Chip) begin(cmd string) error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return atca.StatusNotInitialized
	}
	c.commandLog = append(c.commandLog, cmd)
	glog.V(4).Infof("sim: %s", cmd)
	return nil
}

func (c *Chip) configLocked() bool { return c.config[lockConfigOffset] != unlocked }
func (c *Chip) dataLocked() bool   { return c.config[lockValueOffset] != unlocked }

func (c *Chip) slotLocked(slot uint16) bool {
	return c.config[slotLockedOffset+int(slot/8)]&(1<<(slot%8)) == 0
}

func (c *Chip) slotConfig(slot uint16) atca.SlotConfig {
	slots, _ := atca.DecodeSlots(c.config)
	return slots[slot].Config
}

func (c *Chip) DeviceType() atca.DeviceType {
	return c.devType
}

func (c *Chip) ReadSerialNumber() ([]byte, error) {
	if err := c.begin("ReadSerialNumber"); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	sn := append([]byte(nil), c.config[0:4]...)
	return append(sn, c.config[8:13]...), nil
}

func (c *Chip) IsLocked(zone atca.LockZone) (bool, error) {
	if err := c.begin("IsLocked"); err != nil {
		return false, err
	}
	defer c.mu.Unlock()
	switch zone {
	case atca.LockZoneConfig:
		return c.configLocked(), nil
	case atca.LockZoneData:
		return c.dataLocked(), nil
	}
	return false, atca.StatusBadParam
}

func (c *Chip) ReadConfigZone() ([]byte, error) {
	if err := c.begin("ReadConfigZone"); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	return append([]byte(nil), c.config[:c.devType.ConfigSize()]...), nil
}

// writableConfig reports whether config byte i can be set with a write
// command: the serial number and revision, UserExtra and the lock bytes
// cannot.
func writableConfig(i int) bool {
	return i >= 16 && (i < userExtraOffset || i > lockConfigOffset)
}

func (c *Chip) CmpConfigZone(config []byte) (bool, error) {
	if err := c.begin("CmpConfigZone"); err != nil {
		return false, err
	}
	defer c.mu.Unlock()
	if len(config) != c.devType.ConfigSize() {
		return false, atca.StatusBadParam
	}
	for i := range config {
		if writableConfig(i) && config[i] != c.config[i] {
			return false, nil
		}
	}
	return true, nil
}

// WriteConfigZone writes every writable byte of the configuration zone.
func (c *Chip) WriteConfigZone(config []byte) error {
	if err := c.begin("WriteConfigZone"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if len(config) != atca.ConfigSize {
		return atca.StatusBadParam
	}
	if c.configLocked() {
		return atca.StatusConfigZoneLocked
	}
	for i := range config {
		if writableConfig(i) {
			c.config[i] = config[i]
		}
	}
	return nil
}

func (c *Chip) LockZone(zone atca.LockZone) error {
	if err := c.begin("LockZone"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	switch zone {
	case atca.LockZoneConfig:
		if c.configLocked() {
			return atca.StatusConfigZoneLocked
		}
		c.config[lockConfigOffset] = locked
	case atca.LockZoneData:
		if !c.configLocked() {
			return atca.StatusExecutionError
		}
		if c.dataLocked() {
			return atca.StatusDataZoneLocked
		}
		c.config[lockValueOffset] = locked
	default:
		return atca.StatusBadParam
	}
	return nil
}

func zoneRange(block, offset uint8, length int) (int, int) {
	start := int(block)*atca.BlockSize + int(offset)*4
	return start, start + length
}

func (c *Chip) zoneBytes(zone atca.Zone, slot uint16) ([]byte, error) {
	switch zone {
	case atca.ZoneConfig:
		return c.config, nil
	case atca.ZoneOTP:
		return c.otp, nil
	case atca.ZoneData:
		if slot >= atca.SlotCount {
			return nil, atca.StatusBadParam
		}
		return c.data[slot], nil
	}
	return nil, atca.StatusBadParam
}

func (c *Chip) ReadZone(zone atca.Zone, slot uint16, block, offset uint8, length int) ([]byte, error) {
	if err := c.begin("ReadZone"); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	buf, err := c.zoneBytes(zone, slot)
	if err != nil {
		return nil, err
	}
	if zone == atca.ZoneData && c.dataLocked() {
		cfg := c.slotConfig(slot)
		if cfg.IsSecret || cfg.ReadKey.EncryptRead {
			return nil, atca.StatusExecutionError
		}
	}
	start, end := zoneRange(block, offset, length)
	if length <= 0 || end > len(buf) {
		return nil, atca.StatusBadParam
	}
	return append([]byte(nil), buf[start:end]...), nil
}

func (c *Chip) WriteZone(zone atca.Zone, slot uint16, block, offset uint8, data []byte) error {
	if err := c.begin("WriteZone"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	buf, err := c.zoneBytes(zone, slot)
	if err != nil {
		return err
	}
	start, end := zoneRange(block, offset, len(data))
	if (len(data) != 4 && len(data) != atca.BlockSize) || end > len(buf) {
		return atca.StatusBadParam
	}
	switch zone {
	case atca.ZoneConfig:
		if c.configLocked() {
			return atca.StatusConfigZoneLocked
		}
		for i := start; i < end; i++ {
			if !writableConfig(i) {
				return atca.StatusExecutionError
			}
		}
	case atca.ZoneOTP:
		if c.dataLocked() {
			return atca.StatusExecutionError
		}
	case atca.ZoneData:
		if c.dataLocked() {
			cfg := c.slotConfig(slot)
			if cfg.WriteConfig != atca.WriteConfigAlways || c.slotLocked(slot) || cfg.EccKeyAttr.IsPrivate {
				return atca.StatusExecutionError
			}
		}
	}
	copy(buf[start:end], data)
	return nil
}

// checkAccessKey verifies that key matches the secret stored in keyID.
func (c *Chip) checkAccessKey(key []byte, keyID uint16) error {
	if keyID >= atca.SlotCount || len(key) != atca.KeySize {
		return atca.StatusBadParam
	}
	if !bytes.Equal(c.data[keyID][:atca.KeySize], key) {
		return atca.StatusCheckMacVerifyFailed
	}
	return nil
}

func (c *Chip) ReadEnc(slot uint16, block uint8, key []byte, keyID uint16, numIn []byte) ([]byte, error) {
	if err := c.begin("ReadEnc"); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	if slot >= atca.SlotCount || len(numIn) != atca.NumInSize {
		return nil, atca.StatusBadParam
	}
	cfg := c.slotConfig(slot)
	if !cfg.ReadKey.EncryptRead || uint16(cfg.ReadKey.SlotNumber) != keyID {
		return nil, atca.StatusExecutionError
	}
	if err := c.checkAccessKey(key, keyID); err != nil {
		return nil, err
	}
	start, end := zoneRange(block, 0, atca.BlockSize)
	if end > len(c.data[slot]) {
		return nil, atca.StatusBadParam
	}
	return append([]byte(nil), c.data[slot][start:end]...), nil
}

func (c *Chip) WriteEnc(slot uint16, block uint8, data, key []byte, keyID uint16, numIn []byte) error {
	if err := c.begin("WriteEnc"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if slot >= atca.SlotCount || len(numIn) != atca.NumInSize || len(data) != atca.BlockSize {
		return atca.StatusBadParam
	}
	cfg := c.slotConfig(slot)
	if cfg.WriteConfig != atca.WriteConfigEncrypt || uint16(cfg.WriteKey) != keyID || c.slotLocked(slot) {
		return atca.StatusExecutionError
	}
	if err := c.checkAccessKey(key, keyID); err != nil {
		return err
	}
	start, end := zoneRange(block, 0, atca.BlockSize)
	if end > len(c.data[slot]) {
		return atca.StatusBadParam
	}
	copy(c.data[slot][start:end], data)
	return nil
}

func (c *Chip) random() []byte {
	out := make([]byte, atca.RandomSize)
	if !c.configLocked() {
		// An unlocked chip returns a fixed test pattern.
		for i := 0; i < len(out); i += 4 {
			out[i], out[i+1] = 0xFF, 0xFF
		}
		return out
	}
	rand.Read(out)
	return out
}

func (c *Chip) Random() ([]byte, error) {
	if err := c.begin("Random"); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	return c.random(), nil
}

func (c *Chip) SHA(msg []byte) ([]byte, error) {
	if err := c.begin("SHA"); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	sum := sha256.Sum256(msg)
	return sum[:], nil
}

func (c *Chip) NonceLoad(target atca.NonceTarget, data []byte) error {
	if err := c.begin("NonceLoad"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if len(data) != atca.NonceSize && len(data) != 2*atca.NonceSize {
		return atca.StatusBadParam
	}
	v := append([]byte(nil), data...)
	switch target {
	case atca.NonceTargetTempKey:
		c.tempKey = v
	case atca.NonceTargetMsgDigBuf:
		c.msgDigBuf = v
	case atca.NonceTargetAltKeyBuf:
		c.altKeyBuf = v
	default:
		return atca.StatusBadParam
	}
	return nil
}

func (c *Chip) NonceRand(numIn []byte) ([]byte, error) {
	if err := c.begin("NonceRand"); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	if len(numIn) != atca.NumInSize {
		return nil, atca.StatusBadParam
	}
	rnd := c.random()
	h := sha256.New()
	h.Write(rnd)
	h.Write(numIn)
	h.Write([]byte{0x16, 0x00, 0x00})
	c.tempKey = h.Sum(nil)
	return rnd, nil
}

func (c *Chip) privateKey(slot uint16) (*ecdsa.PrivateKey, error) {
	if slot >= atca.SlotCount {
		return nil, atca.StatusBadParam
	}
	cfg := c.slotConfig(slot)
	if cfg.KeyType != atca.KeyTypeP256 || !cfg.EccKeyAttr.IsPrivate {
		return nil, atca.StatusExecutionError
	}
	d := new(big.Int).SetBytes(c.data[slot][4:privKeyStoredSize])
	if d.Sign() == 0 {
		return nil, atca.StatusExecutionError
	}
	priv := &ecdsa.PrivateKey{D: d}
	priv.Curve = elliptic.P256()
	priv.X, priv.Y = priv.Curve.ScalarBaseMult(c.data[slot][4:privKeyStoredSize])
	return priv, nil
}

func (c *Chip) genKey(slot uint16) *ecdsa.PrivateKey {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}
	stored := make([]byte, privKeyStoredSize)
	priv.D.FillBytes(stored[4:])
	copy(c.data[slot], stored)
	return priv
}

func (c *Chip) GenKey(slot uint16) ([]byte, error) {
	if err := c.begin("GenKey"); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	if slot >= atca.SlotCount {
		return nil, atca.StatusBadParam
	}
	cfg := c.slotConfig(slot)
	if cfg.KeyType != atca.KeyTypeP256 || !cfg.EccKeyAttr.IsPrivate || c.slotLocked(slot) {
		return nil, atca.StatusExecutionError
	}
	priv := c.genKey(slot)
	return atca.PublicKeyBytes(&priv.PublicKey), nil
}

func (c *Chip) GetPubKey(slot uint16) ([]byte, error) {
	if err := c.begin("GetPubKey"); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	priv, err := c.privateKey(slot)
	if err != nil {
		return nil, err
	}
	return atca.PublicKeyBytes(&priv.PublicKey), nil
}

func (c *Chip) storedPubKey(slot uint16) ([]byte, error) {
	if slot < atca.MinPubKeySlot || slot >= atca.SlotCount {
		return nil, atca.StatusBadParam
	}
	d := c.data[slot]
	return append(append([]byte(nil), d[4:36]...), d[40:72]...), nil
}

func (c *Chip) ReadPubKey(slot uint16) ([]byte, error) {
	if err := c.begin("ReadPubKey"); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	return c.storedPubKey(slot)
}

func (c *Chip) WritePubKey(slot uint16, pub []byte) error {
	if err := c.begin("WritePubKey"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if slot < atca.MinPubKeySlot || slot >= atca.SlotCount || len(pub) != atca.PublicKeySize {
		return atca.StatusBadParam
	}
	if c.dataLocked() && (c.slotConfig(slot).WriteConfig != atca.WriteConfigAlways || c.slotLocked(slot)) {
		return atca.StatusExecutionError
	}
	stored := make([]byte, pubKeyStoredSize)
	copy(stored[4:36], pub[:32])
	copy(stored[40:72], pub[32:])
	copy(c.data[slot], stored)
	return nil
}

func (c *Chip) PrivWrite(slot uint16, priv []byte, writeKeyID uint16, writeKey, numIn []byte) error {
	if err := c.begin("PrivWrite"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if slot >= atca.SlotCount || len(priv) != privKeyStoredSize || len(numIn) != atca.NumInSize {
		return atca.StatusBadParam
	}
	cfg := c.slotConfig(slot)
	if cfg.KeyType != atca.KeyTypeP256 || !cfg.EccKeyAttr.IsPrivate || c.slotLocked(slot) {
		return atca.StatusExecutionError
	}
	if c.dataLocked() {
		if cfg.WriteConfig != atca.WriteConfigEncrypt || uint16(cfg.WriteKey) != writeKeyID {
			return atca.StatusExecutionError
		}
		if err := c.checkAccessKey(writeKey, writeKeyID); err != nil {
			return err
		}
	}
	d := new(big.Int).SetBytes(priv[4:])
	if d.Sign() == 0 || d.Cmp(elliptic.P256().Params().N) >= 0 {
		return atca.StatusExecutionError
	}
	copy(c.data[slot], priv)
	return nil
}

func (c *Chip) Sign(slot uint16, digest []byte) ([]byte, error) {
	if err := c.begin("Sign"); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	if len(digest) != atca.DigestSize {
		return nil, atca.StatusBadParam
	}
	priv, err := c.privateKey(slot)
	if err != nil {
		return nil, err
	}
	if !c.slotConfig(slot).EccKeyAttr.ExtSign {
		return nil, atca.StatusExecutionError
	}
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest)
	if err != nil {
		return nil, atca.StatusExecutionError
	}
	sig := make([]byte, atca.SignatureSize)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return sig, nil
}

func verify(digest, sig, pub []byte) bool {
	pk, err := atca.PublicKeyFromBytes(pub)
	if err != nil {
		return false
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	return ecdsa.Verify(pk, digest, r, s)
}

func (c *Chip) VerifyStored(digest, sig []byte, slot uint16) (bool, error) {
	if err := c.begin("VerifyStored"); err != nil {
		return false, err
	}
	defer c.mu.Unlock()
	if len(digest) != atca.DigestSize || len(sig) != atca.SignatureSize {
		return false, atca.StatusBadParam
	}
	pub, err := c.storedPubKey(slot)
	if err != nil {
		return false, err
	}
	return verify(digest, sig, pub), nil
}

func (c *Chip) VerifyExtern(digest, sig, pub []byte) (bool, error) {
	if err := c.begin("VerifyExtern"); err != nil {
		return false, err
	}
	defer c.mu.Unlock()
	if len(digest) != atca.DigestSize || len(sig) != atca.SignatureSize || len(pub) != atca.PublicKeySize {
		return false, atca.StatusBadParam
	}
	return verify(digest, sig, pub), nil
}

func (c *Chip) aesKey(keyID uint16, keyBlock uint8) ([]byte, error) {
	if c.devType != atca.ATECC608A || c.config[13]&1 == 0 {
		return nil, atca.StatusBadOpcode
	}
	if keyID == atca.TempKeyID {
		if c.tempKey == nil {
			return nil, atca.StatusExecutionError
		}
		return c.tempKey[:atca.AESKeySize], nil
	}
	if keyID >= atca.SlotCount || c.slotConfig(keyID).KeyType != atca.KeyTypeAES {
		return nil, atca.StatusExecutionError
	}
	start := int(keyBlock) * atca.AESKeySize
	if start+atca.AESKeySize > len(c.data[keyID]) {
		return nil, atca.StatusBadParam
	}
	return c.data[keyID][start : start+atca.AESKeySize], nil
}

func (c *Chip) aesBlock(keyID uint16, keyBlock uint8, in []byte, decrypt bool) ([]byte, error) {
	if len(in) != atca.AESDataSize {
		return nil, atca.StatusBadParam
	}
	key, err := c.aesKey(keyID, keyBlock)
	if err != nil {
		return nil, err
	}
	b, err := aes.NewCipher(key)
	if err != nil {
		return nil, atca.StatusExecutionError
	}
	out := make([]byte, atca.AESDataSize)
	if decrypt {
		b.Decrypt(out, in)
	} else {
		b.Encrypt(out, in)
	}
	return out, nil
}

func (c *Chip) AESEncryptBlock(keyID uint16, keyBlock uint8, in []byte) ([]byte, error) {
	if err := c.begin("AESEncryptBlock"); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	return c.aesBlock(keyID, keyBlock, in, false)
}

func (c *Chip) AESDecryptBlock(keyID uint16, keyBlock uint8, in []byte) ([]byte, error) {
	if err := c.begin("AESDecryptBlock"); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	return c.aesBlock(keyID, keyBlock, in, true)
}

func (c *Chip) Info(cmd atca.InfoCmd, param uint16) ([]byte, error) {
	if err := c.begin("Info"); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	switch cmd {
	case atca.InfoRevision:
		return append([]byte(nil), c.config[4:8]...), nil
	case atca.InfoState:
		var st byte
		if c.tempKey != nil {
			st |= 0x80
		}
		return []byte{st, 0, 0, 0}, nil
	}
	return nil, atca.StatusBadParam
}

// Release ends the session, saving the chip state first if the chip was
// opened with a state file.
func (c *Chip) Release() error {
	if err := c.begin("Release"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	c.released = true
	c.tempKey, c.msgDigBuf, c.altKeyBuf = nil, nil, nil
	if c.statePath != "" {
		return c.save(c.statePath)
	}
	return nil
}
