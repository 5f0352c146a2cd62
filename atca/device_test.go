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
package atca

import (
	"bytes"
	"sync"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOpener(hw Hardware) Option {
	return WithOpener(func(*IfaceConfig) (Hardware, error) { return hw, nil })
}

func openTestDevice(t *testing.T, hw Hardware, declared DeviceType) *Device {
	t.Helper()
	d, err := New(&IfaceConfig{IfaceType: IfaceTest, DeviceType: declared},
		WithResourceManager(&ResourceManager{}), testOpener(hw))
	require.NoError(t, err)
	return d
}

var testAccessKey = bytes.Repeat([]byte{0xA5}, KeySize)

func TestNewInitSequence(t *testing.T) {
	hw := newFakeHW(ATECC608A)
	d := openTestDevice(t, hw, ATECC608A)

	assert.Equal(t, []string{
		"ReadSerialNumber", "ReadConfigZone", "IsLocked", "IsLocked", "ReadZone", "ReadZone",
	}, hw.calls)
	assert.Equal(t, hw.serial, d.SerialNumber())
	assert.Equal(t, ATECC608A, d.DeviceType())
	assert.True(t, d.IsConfigurationLocked())
	assert.True(t, d.IsDataZoneLocked())
	assert.True(t, d.IsAESEnabled())
	assert.True(t, d.IsKDFAESEnabled())
	assert.True(t, d.IsIOProtectionKeyEnabled())
	assert.Equal(t, OutputEncrypted, d.ECDHOutputProtection())
	assert.Equal(t, OutputClearTextAllowed, d.KDFOutputProtection())

	slots := d.Slots()
	require.Len(t, slots, SlotCount)
	assert.Equal(t, KeyTypeAES, slots[9].Config.KeyType)
	slots[9].Config.KeyType = KeyTypeP256
	assert.Equal(t, KeyTypeAES, d.Slots()[9].Config.KeyType, "Slots must return a copy")
}

func TestNewFailures(t *testing.T) {
	tests := []struct {
		name     string
		declared DeviceType
		setup    func(hw *fakeHW)
		want     error
	}{
		{"serial", ATECC608A, func(hw *fakeHW) { hw.err["ReadSerialNumber"] = StatusRxNoResponse }, StatusRxNoResponse},
		{"short serial", ATECC608A, func(hw *fakeHW) { hw.serial = hw.serial[:8] }, StatusInvalidSize},
		{"config size", ATECC608A, func(hw *fakeHW) { hw.config = hw.config[:ATSHAConfigSize] }, StatusBadParam},
		{"lock", ATECC608A, func(hw *fakeHW) { hw.err["IsLocked"] = StatusCommFail }, StatusCommFail},
		{"options", ATECC608A, func(hw *fakeHW) { hw.err["ReadZone"] = StatusRxFail }, StatusRxFail},
		{"608 declared as 508", ATECC508A, func(hw *fakeHW) {}, ErrFamilyMismatch},
		{"508 declared as 608", ATECC608A, func(hw *fakeHW) { hw.config = testConfig(false) }, ErrFamilyMismatch},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			hw := newFakeHW(ATECC608A)
			test.setup(hw)
			rm := &ResourceManager{}
			d, err := New(&IfaceConfig{IfaceType: IfaceTest, DeviceType: test.declared},
				WithResourceManager(rm), testOpener(hw))
			assert.Nil(t, d)
			assert.Equal(t, test.want, errors.Cause(err))
			assert.Equal(t, 1, hw.released, "hardware must be released")
			_, ok := rm.Acquire()
			assert.True(t, ok, "lease must be returned")
		})
	}
}

func TestNewOpenFailure(t *testing.T) {
	rm := &ResourceManager{}
	_, err := New(&IfaceConfig{IfaceType: IfaceTest}, WithResourceManager(rm),
		WithOpener(func(*IfaceConfig) (Hardware, error) { return nil, StatusWakeFailed }))
	assert.Equal(t, StatusWakeFailed, StatusOf(err))
	_, ok := rm.Acquire()
	assert.True(t, ok)

	_, err = New(nil)
	assert.Equal(t, StatusBadParam, StatusOf(err))
	_, err = New(&IfaceConfig{IfaceType: "carrier-pigeon"}, WithResourceManager(rm))
	assert.Equal(t, StatusBadParam, StatusOf(err))
}

func TestNewAllocFailure(t *testing.T) {
	rm := &ResourceManager{}
	cfg := &IfaceConfig{IfaceType: IfaceTest, DeviceType: ATECC608A}
	hw1, hw2 := newFakeHW(ATECC608A), newFakeHW(ATECC608A)

	d1, err := New(cfg, WithResourceManager(rm), testOpener(hw1))
	require.NoError(t, err)

	_, err = New(cfg, WithResourceManager(rm), testOpener(hw2))
	assert.Equal(t, StatusAllocFailure, StatusOf(err))
	assert.Equal(t, 0, hw2.numCalls(), "second device must not be opened")

	require.NoError(t, d1.Release())
	d2, err := New(cfg, WithResourceManager(rm), testOpener(hw2))
	require.NoError(t, err)
	require.NoError(t, d2.Release())
}

func TestRelease(t *testing.T) {
	hw := newFakeHW(ATECC608A)
	d := openTestDevice(t, hw, ATECC608A)
	require.NoError(t, d.AddAccessKey(6, testAccessKey))

	require.NoError(t, d.Release())
	assert.Equal(t, 1, hw.released)
	n := hw.numCalls()

	_, err := d.Random()
	assert.Equal(t, error(StatusFuncFail), err)
	_, err = d.GetAccessKey(6)
	assert.Equal(t, error(StatusFuncFail), err)
	assert.Equal(t, error(StatusFuncFail), d.AddAccessKey(6, testAccessKey))
	assert.Equal(t, error(StatusFuncFail), d.GenKey(KeyTypeP256, 0))
	_, err = d.ReadConfigZone()
	assert.Equal(t, error(StatusFuncFail), err)
	assert.Nil(t, d.SerialNumber())
	assert.Nil(t, d.Slots())
	assert.Equal(t, DeviceTypeUnknown, d.DeviceType())
	assert.False(t, d.IsConfigurationLocked())
	assert.Equal(t, n, hw.numCalls())

	assert.Equal(t, error(StatusBadParam), d.Release())
	assert.Equal(t, 1, hw.released)
}

func TestReleaseHardwareError(t *testing.T) {
	hw := newFakeHW(ATECC608A)
	hw.err["Release"] = StatusTxFail
	d := openTestDevice(t, hw, ATECC608A)
	err := d.Release()
	assert.Equal(t, StatusTxFail, StatusOf(err))
	assert.Equal(t, error(StatusBadParam), d.Release())
}

func TestNotLocked(t *testing.T) {
	tests := []struct {
		name                     string
		configLocked, dataLocked bool
		op                       func(d *Device) error
	}{
		{"Random", false, false, func(d *Device) error { _, err := d.Random(); return err }},
		{"SHA", false, true, func(d *Device) error { _, err := d.SHA(nil); return err }},
		{"GenKey", false, true, func(d *Device) error { return d.GenKey(KeyTypeP256, 0) }},
		{"ImportKey", true, false, func(d *Device) error { return d.ImportKey(KeyTypeAES, make([]byte, 16), 9) }},
		{"ExportKey", true, false, func(d *Device) error { _, err := d.ExportKey(KeyTypeAES, 9, 0); return err }},
		{"GetPublicKey", true, false, func(d *Device) error { _, err := d.GetPublicKey(0); return err }},
		{"SignHash", true, false, func(d *Device) error {
			_, err := d.SignHash(SignExternal, 0, make([]byte, DigestSize))
			return err
		}},
		{"VerifyHash", false, true, func(d *Device) error {
			_, err := d.VerifyHash(VerifyMode{Kind: VerifyInternal, Slot: 11},
				make([]byte, DigestSize), make([]byte, SignatureSize))
			return err
		}},
		{"CipherEncrypt", true, false, func(d *Device) error {
			_, err := d.CipherEncrypt(CipherAlgorithm{Mode: CipherECB}, 9, make([]byte, 16))
			return err
		}},
		{"AEADDecrypt", true, false, func(d *Device) error {
			_, _, err := d.AEADDecrypt(AeadAlgorithm{Mode: AeadGCM}, 9, nil)
			return err
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			hw := newFakeHW(ATECC608A)
			hw.configLocked, hw.dataLocked = test.configLocked, test.dataLocked
			d := openTestDevice(t, hw, ATECC608A)
			n := hw.numCalls()
			assert.Equal(t, error(StatusNotLocked), test.op(d))
			assert.Equal(t, n, hw.numCalls(), "no hardware calls expected")
		})
	}
}

func TestPreconditions(t *testing.T) {
	digest := make([]byte, DigestSize)
	sig := make([]byte, SignatureSize)
	tests := []struct {
		name string
		op   func(d *Device) error
		want Status
	}{
		{"SHA too long", func(d *Device) error { _, err := d.SHA(make([]byte, 0x10000)); return err }, StatusBadParam},
		{"NonceRand size", func(d *Device) error { _, err := d.NonceRand(make([]byte, 19)); return err }, StatusInvalidSize},
		{"Sign slot", func(d *Device) error { _, err := d.SignHash(SignExternal, 16, digest); return err }, StatusInvalidId},
		{"Sign internal", func(d *Device) error { _, err := d.SignHash(SignInternal, 0, digest); return err }, StatusUnimplemented},
		{"Sign digest size", func(d *Device) error { _, err := d.SignHash(SignExternal, 0, digest[:31]); return err }, StatusInvalidSize},
		{"Verify sig size", func(d *Device) error {
			_, err := d.VerifyHash(VerifyMode{Kind: VerifyExternal, PublicKey: make([]byte, 64)}, digest, sig[:63])
			return err
		}, StatusInvalidSize},
		{"Verify digest size", func(d *Device) error {
			_, err := d.VerifyHash(VerifyMode{Kind: VerifyInternal, Slot: 11}, digest[:1], sig)
			return err
		}, StatusInvalidSize},
		{"Verify slot", func(d *Device) error {
			_, err := d.VerifyHash(VerifyMode{Kind: VerifyInternal, Slot: 16}, digest, sig)
			return err
		}, StatusInvalidId},
		{"Verify pubkey size", func(d *Device) error {
			_, err := d.VerifyHash(VerifyMode{Kind: VerifyExternal, PublicKey: make([]byte, 63)}, digest, sig)
			return err
		}, StatusInvalidId},
		{"Verify validate", func(d *Device) error {
			_, err := d.VerifyHash(VerifyMode{Kind: VerifyValidate}, digest, sig)
			return err
		}, StatusUnimplemented},
		{"GenKey slot", func(d *Device) error { return d.GenKey(KeyTypeP256, 17) }, StatusInvalidId},
		{"GenKey TempKey", func(d *Device) error { return d.GenKey(KeyTypeAES, 16) }, StatusUnimplemented},
		{"GenKey TempKey ECC", func(d *Device) error { return d.GenKey(KeyTypeP256, 16) }, StatusBadParam},
		{"GenKey type", func(d *Device) error { return d.GenKey(KeyTypeP256, 9) }, StatusBadParam},
		{"GenKey public slot", func(d *Device) error { return d.GenKey(KeyTypeP256, 11) }, StatusBadParam},
		{"GenKey AES no key", func(d *Device) error { return d.GenKey(KeyTypeAES, 15) }, StatusInvalidId},
		{"GenKey AES encrypted slot", func(d *Device) error { return d.GenKey(KeyTypeAES, 10) }, StatusInvalidId},
		{"Import AES size", func(d *Device) error { return d.ImportKey(KeyTypeAES, make([]byte, 15), 9) }, StatusInvalidSize},
		{"Import ECC size", func(d *Device) error { return d.ImportKey(KeyTypeP256, make([]byte, 33), 0) }, StatusInvalidSize},
		{"Import pubkey slot", func(d *Device) error { return d.ImportKey(KeyTypeP256, make([]byte, 64), 3) }, StatusInvalidId},
		{"Import privkey not encrypted", func(d *Device) error { return d.ImportKey(KeyTypeP256, make([]byte, 32), 0) }, StatusBadParam},
		{"Import privkey no key", func(d *Device) error { return d.ImportKey(KeyTypeP256, make([]byte, 32), 1) }, StatusInvalidId},
		{"Import text", func(d *Device) error { return d.ImportKey(KeyTypeShaOrText, make([]byte, 16), 7) }, StatusUnimplemented},
		{"Export slot", func(d *Device) error { _, err := d.ExportKey(KeyTypeAES, 16, 0); return err }, StatusInvalidId},
		{"Export AES type", func(d *Device) error { _, err := d.ExportKey(KeyTypeAES, 0, 0); return err }, StatusBadParam},
		{"Export AES no key", func(d *Device) error { _, err := d.ExportKey(KeyTypeAES, 10, 0); return err }, StatusInvalidId},
		{"Export text length", func(d *Device) error { _, err := d.ExportKey(KeyTypeShaOrText, 8, 417); return err }, StatusInvalidSize},
		{"Export text", func(d *Device) error { _, err := d.ExportKey(KeyTypeShaOrText, 8, 416); return err }, StatusUnimplemented},
		{"Export text type", func(d *Device) error { _, err := d.ExportKey(KeyTypeShaOrText, 9, 16); return err }, StatusBadParam},
		{"Export Rfu", func(d *Device) error { _, err := d.ExportKey(KeyTypeRfu, 0, 0); return err }, StatusBadParam},
		{"PubKey slot", func(d *Device) error { _, err := d.GetPublicKey(16); return err }, StatusInvalidId},
		{"PubKey AES slot", func(d *Device) error { _, err := d.GetPublicKey(9); return err }, StatusBadParam},
		{"PubKey encrypted read", func(d *Device) error { _, err := d.GetPublicKey(14); return err }, StatusUnimplemented},
		{"PubKey not writable", func(d *Device) error { _, err := d.GetPublicKey(13); return err }, StatusBadParam},
		{"Cipher XTS", func(d *Device) error {
			_, err := d.CipherEncrypt(CipherAlgorithm{Mode: CipherXTS}, 9, nil)
			return err
		}, StatusUnimplemented},
		{"Cipher slot", func(d *Device) error {
			_, err := d.CipherEncrypt(CipherAlgorithm{Mode: CipherCBC}, 17, nil)
			return err
		}, StatusInvalidId},
		{"Cipher TempKey no key", func(d *Device) error {
			_, err := d.CipherEncrypt(CipherAlgorithm{Mode: CipherCBC}, 16, nil)
			return err
		}, StatusBadParam},
		{"Cipher TempKey key size", func(d *Device) error {
			_, err := d.CipherDecrypt(CipherAlgorithm{Mode: CipherCBC, Param: CipherParam{Key: make([]byte, 15)}}, 16, nil)
			return err
		}, StatusInvalidSize},
		{"Cipher slot with key", func(d *Device) error {
			_, err := d.CipherEncrypt(CipherAlgorithm{Mode: CipherCBC, Param: CipherParam{Key: make([]byte, 16)}}, 9, nil)
			return err
		}, StatusBadParam},
		{"Cipher ECC slot", func(d *Device) error {
			_, err := d.CipherEncrypt(CipherAlgorithm{Mode: CipherCBC}, 0, nil)
			return err
		}, StatusBadParam},
		{"AEAD mode", func(d *Device) error {
			_, _, err := d.AEADEncrypt(AeadAlgorithm{Mode: AeadMode(7)}, 9, nil)
			return err
		}, StatusUnimplemented},
		{"Info GPIO", func(d *Device) error { _, err := d.InfoCmd(InfoGPIO); return err }, StatusUnimplemented},
		{"CmpConfigZone size", func(d *Device) error { _, err := d.CmpConfigZone(make([]byte, 88)); return err }, StatusBadParam},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			hw := newFakeHW(ATECC608A)
			d := openTestDevice(t, hw, ATECC608A)
			n := hw.numCalls()
			if got, want := test.op(d), error(test.want); got != want {
				t.Errorf("got: %v, want: %v", got, want)
			}
			assert.Equal(t, n, hw.numCalls(), "no hardware calls expected")
		})
	}
}

func TestAESDisabled(t *testing.T) {
	hw := newFakeHW(ATECC508A)
	d := openTestDevice(t, hw, ATECC508A)
	n := hw.numCalls()

	assert.Equal(t, error(StatusBadParam), d.GenKey(KeyTypeAES, 9))
	assert.Equal(t, error(StatusBadParam), d.ImportKey(KeyTypeAES, make([]byte, 16), 9))
	_, err := d.CipherEncrypt(CipherAlgorithm{Mode: CipherECB}, 9, make([]byte, 16))
	assert.Equal(t, error(StatusBadParam), err)
	_, _, err = d.AEADEncrypt(AeadAlgorithm{Mode: AeadCCM}, 9, nil)
	assert.Equal(t, error(StatusBadParam), err)
	assert.Equal(t, error(StatusInvalidId), d.AddAccessKey(16, testAccessKey))
	assert.Equal(t, n, hw.numCalls())
}

func TestNonce(t *testing.T) {
	tests := []struct {
		devType DeviceType
		target  NonceTarget
		n       int
		want    error
	}{
		{ATECC608A, NonceTargetTempKey, 32, nil},
		{ATECC608A, NonceTargetTempKey, 64, nil},
		{ATECC608A, NonceTargetTempKey, 20, StatusInvalidSize},
		{ATECC608A, NonceTargetMsgDigBuf, 64, nil},
		{ATECC608A, NonceTargetAltKeyBuf, 32, nil},
		{ATECC608A, NonceTargetAltKeyBuf, 64, StatusInvalidSize},
		{ATECC608A, NonceTarget(0x20), 32, StatusBadParam},
		{ATECC508A, NonceTargetTempKey, 32, nil},
		{ATECC508A, NonceTargetTempKey, 64, StatusInvalidSize},
		{ATECC508A, NonceTargetMsgDigBuf, 32, StatusBadParam},
	}
	for i, test := range tests {
		hw := newFakeHW(test.devType)
		d := openTestDevice(t, hw, test.devType)
		n := hw.numCalls()
		if got, want := d.Nonce(test.target, make([]byte, test.n)), test.want; got != want {
			t.Errorf("%d: got: %v, want: %v", i, got, want)
		}
		if test.want == nil {
			assert.Equal(t, "NonceLoad", hw.lastCall(), "case %d", i)
		} else {
			assert.Equal(t, n, hw.numCalls(), "case %d", i)
		}
	}
}

func TestGenKeyAES(t *testing.T) {
	hw := newFakeHW(ATECC608A)
	d := openTestDevice(t, hw, ATECC608A)
	n := hw.numCalls()

	require.NoError(t, d.GenKey(KeyTypeAES, 9))
	assert.Equal(t, []string{"Random", "WriteZone"}, hw.calls[n:])
	want := make([]byte, BlockSize)
	for i := 0; i < AESKeySize; i++ {
		want[i] = byte(i + 1)
	}
	assert.Equal(t, want, hw.written[9])

	require.NoError(t, d.AddAccessKey(6, testAccessKey))
	n = hw.numCalls()
	require.NoError(t, d.GenKey(KeyTypeAES, 15))
	assert.Equal(t, []string{"Random", "WriteEnc"}, hw.calls[n:])
	assert.Equal(t, uint16(6), hw.lastKeyID)
	assert.Equal(t, testAccessKey, hw.lastKey)
	assert.Equal(t, want, hw.written[15])
}

func TestGenKeyP256(t *testing.T) {
	hw := newFakeHW(ATECC608A)
	d := openTestDevice(t, hw, ATECC608A)
	require.NoError(t, d.GenKey(KeyTypeP256, 2))
	assert.Equal(t, "GenKey", hw.lastCall())

	hw.err["GenKey"] = StatusExecutionError
	assert.Equal(t, error(StatusExecutionError), d.GenKey(KeyTypeP256, 2))
}

func TestImportKey(t *testing.T) {
	hw := newFakeHW(ATECC608A)
	d := openTestDevice(t, hw, ATECC608A)
	require.NoError(t, d.AddAccessKey(6, testAccessKey))

	priv := bytes.Repeat([]byte{0x11}, PrivateKeySize)
	require.NoError(t, d.ImportKey(KeyTypeP256, priv, 1))
	assert.Equal(t, "PrivWrite", hw.lastCall())
	assert.Equal(t, append(make([]byte, 4), priv...), hw.written[1])
	assert.Equal(t, uint16(6), hw.lastKeyID)

	require.NoError(t, d.ImportKey(KeyTypeP256, make([]byte, PublicKeySize), 11))
	assert.Equal(t, "WritePubKey", hw.lastCall())

	key := bytes.Repeat([]byte{0x22}, AESKeySize)
	require.NoError(t, d.ImportKey(KeyTypeAES, key, 9))
	assert.Equal(t, "WriteZone", hw.lastCall())
	assert.Equal(t, padBlock(key), hw.written[9])

	require.NoError(t, d.ImportKey(KeyTypeAES, key, 16))
	assert.Equal(t, "NonceLoad", hw.lastCall())
	assert.Equal(t, padBlock(key), hw.tempKey)
}

func TestExportKeyAES(t *testing.T) {
	hw := newFakeHW(ATECC608A)
	d := openTestDevice(t, hw, ATECC608A)

	key, err := d.ExportKey(KeyTypeAES, 9, 0)
	require.NoError(t, err)
	assert.Len(t, key, AESKeySize)
	assert.Equal(t, "ReadZone", hw.lastCall())

	require.NoError(t, d.AddAccessKey(6, testAccessKey))
	key, err = d.ExportKey(KeyTypeAES, 10, 0)
	require.NoError(t, err)
	assert.Len(t, key, AESKeySize)
	assert.Equal(t, "ReadEnc", hw.lastCall())
	assert.Equal(t, testAccessKey, hw.lastKey)

	require.NoError(t, d.FlushAccessKeys())
	_, err = d.ExportKey(KeyTypeAES, 10, 0)
	assert.Equal(t, error(StatusInvalidId), err)
}

func TestPublicKeyPaths(t *testing.T) {
	hw := newFakeHW(ATECC608A)
	d := openTestDevice(t, hw, ATECC608A)

	_, err := d.GetPublicKey(0)
	require.NoError(t, err)
	assert.Equal(t, "GetPubKey", hw.lastCall())

	_, err = d.GetPublicKey(11)
	require.NoError(t, err)
	assert.Equal(t, "ReadPubKey", hw.lastCall())

	_, err = d.ExportKey(KeyTypeP256, 12, 0)
	require.NoError(t, err)
	assert.Equal(t, "ReadPubKey", hw.lastCall())
}

func TestVerifyHash(t *testing.T) {
	hw := newFakeHW(ATECC608A)
	d := openTestDevice(t, hw, ATECC608A)
	digest, sig := make([]byte, DigestSize), make([]byte, SignatureSize)

	ok, err := d.VerifyHash(VerifyMode{Kind: VerifyInternal, Slot: 11}, digest, sig)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "VerifyStored", hw.lastCall())

	ok, err = d.VerifyHash(VerifyMode{Kind: VerifyExternal, PublicKey: make([]byte, PublicKeySize)}, digest, sig)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "VerifyExtern", hw.lastCall())
}

func TestCipherTempKey(t *testing.T) {
	hw := newFakeHW(ATECC608A)
	d := openTestDevice(t, hw, ATECC608A)
	key := bytes.Repeat([]byte{0x33}, AESKeySize)
	data := bytes.Repeat([]byte{0x44}, 2*AESDataSize)
	n := hw.numCalls()

	out, err := d.CipherEncrypt(CipherAlgorithm{Mode: CipherECB, Param: CipherParam{Key: key}}, 16, data)
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.Equal(t, []string{"NonceLoad", "AESEncryptBlock", "AESEncryptBlock"}, hw.calls[n:])
	assert.Equal(t, padBlock(key), hw.tempKey)
}

func TestCipherErrors(t *testing.T) {
	hw := newFakeHW(ATECC608A)
	d := openTestDevice(t, hw, ATECC608A)

	_, err := d.CipherEncrypt(CipherAlgorithm{Mode: CipherECB}, 9, make([]byte, 15))
	assert.Equal(t, error(StatusInvalidSize), err)
	_, err = d.CipherDecrypt(CipherAlgorithm{Mode: CipherCBCPKCS7, Param: CipherParam{IV: make([]byte, 16)}}, 9, make([]byte, 16))
	assert.Equal(t, error(StatusBadParam), err, "zero padding byte is invalid")

	hw.err["AESEncryptBlock"] = StatusExecutionError
	n := hw.numCalls()
	_, err = d.CipherEncrypt(CipherAlgorithm{Mode: CipherECB}, 9, make([]byte, 48))
	assert.Equal(t, error(StatusExecutionError), err)
	assert.Equal(t, 1, hw.numCalls()-n, "first hardware error must stop the operation")
}

func TestPoisonedSession(t *testing.T) {
	hw := newFakeHW(ATECC608A)
	d := openTestDevice(t, hw, ATECC608A)
	hw.panicOn = "Random"

	assert.Panics(t, func() { d.Random() })
	hw.panicOn = ""
	assert.Panics(t, func() { d.SHA(nil) })
	assert.NoError(t, d.Release())
	assert.Equal(t, 0, hw.released, "poisoned hardware must not be touched")
}

func TestConcurrentUse(t *testing.T) {
	hw := newFakeHW(ATECC608A)
	d := openTestDevice(t, hw, ATECC608A)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, err := d.Random()
				assert.NoError(t, err)
			} else {
				assert.NoError(t, d.AddAccessKey(uint8(i%SlotCount), testAccessKey))
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, d.Release())
}

// provHW adds the provisioning commands to fakeHW.
type provHW struct {
	*fakeHW
}

func (p provHW) WriteConfigZone(config []byte) error {
	if err := p.call("WriteConfigZone"); err != nil {
		return err
	}
	copy(p.config[16:84], config[16:84])
	copy(p.config[88:], config[88:])
	return nil
}

func (p provHW) LockZone(zone LockZone) error {
	if err := p.call("LockZone"); err != nil {
		return err
	}
	if zone == LockZoneConfig {
		p.configLocked = true
	} else {
		p.dataLocked = true
	}
	return nil
}

func TestProvisioning(t *testing.T) {
	hw := newFakeHW(ATECC608A)
	hw.configLocked, hw.dataLocked = false, false
	d := openTestDevice(t, provHW{hw}, ATECC608A)

	assert.Equal(t, error(StatusNotLocked), d.LockZone(LockZoneData))
	assert.Equal(t, error(StatusBadParam), d.WriteConfigZone(make([]byte, 64)))

	config := testConfig(true)
	config[keyConfigOffset+2*9] = 0x13
	require.NoError(t, d.WriteConfigZone(config))
	assert.Equal(t, KeyTypeP256, d.Slots()[9].Config.KeyType)

	require.NoError(t, d.LockZone(LockZoneConfig))
	assert.True(t, d.IsConfigurationLocked())
	assert.False(t, d.IsDataZoneLocked())
	assert.Equal(t, error(StatusConfigZoneLocked), d.LockZone(LockZoneConfig))
	assert.Equal(t, error(StatusConfigZoneLocked), d.WriteConfigZone(config))

	require.NoError(t, d.LockZone(LockZoneData))
	assert.True(t, d.IsDataZoneLocked())
	assert.Equal(t, error(StatusDataZoneLocked), d.LockZone(LockZoneData))
}

func TestProvisioningUnsupported(t *testing.T) {
	hw := newFakeHW(ATECC608A)
	hw.configLocked = false
	d := openTestDevice(t, hw, ATECC608A)
	assert.Equal(t, error(StatusUnimplemented), d.WriteConfigZone(testConfig(true)))
	assert.Equal(t, error(StatusUnimplemented), d.LockZone(LockZoneConfig))
	assert.False(t, d.IsConfigurationLocked())
}

func TestCmpConfigZone(t *testing.T) {
	hw := newFakeHW(ATECC608A)
	d := openTestDevice(t, hw, ATECC608A)
	same, err := d.CmpConfigZone(testConfig(true))
	require.NoError(t, err)
	assert.True(t, same)

	config := testConfig(true)
	config[slotConfigOffset] ^= 0x80
	same, err = d.CmpConfigZone(config)
	require.NoError(t, err)
	assert.False(t, same)
}
