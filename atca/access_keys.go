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

import "sync"

// AccessKeyStore holds the symmetric keys used to authenticate encrypted
// reads and writes. Keys live in process memory only and are never written
// to the chip.
type AccessKeyStore struct {
	mu      sync.Mutex
	keys    map[uint8][]byte
	ioKeyOK bool
	closed  bool
}

// NewAccessKeyStore creates an empty store. Slot 16, the IO protection key,
// is only accepted when allowIOKey is set.
func NewAccessKeyStore(allowIOKey bool) *AccessKeyStore {
	return &AccessKeyStore{keys: map[uint8][]byte{}, ioKeyOK: allowIOKey}
}

func (s *AccessKeyStore) checkSlot(slot uint8) error {
	if slot > SlotCount || (slot == SlotCount && !s.ioKeyOK) {
		return StatusInvalidId
	}
	return nil
}

func (s *AccessKeyStore) Add(slot uint8, key []byte) error {
	if err := s.checkSlot(slot); err != nil {
		return err
	}
	if len(key) != KeySize {
		return StatusInvalidSize
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return StatusFuncFail
	}
	s.keys[slot] = append([]byte(nil), key...)
	return nil
}

func (s *AccessKeyStore) Get(slot uint8) ([]byte, error) {
	if err := s.checkSlot(slot); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, StatusFuncFail
	}
	key, ok := s.keys[slot]
	if !ok {
		return nil, StatusInvalidId
	}
	return append([]byte(nil), key...), nil
}

// Flush removes all keys.
func (s *AccessKeyStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return StatusFuncFail
	}
	s.wipe()
	return nil
}

// Close flushes the store and makes every later call fail with
// StatusFuncFail.
func (s *AccessKeyStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wipe()
	s.closed = true
}

func (s *AccessKeyStore) wipe() {
	for slot, key := range s.keys {
		for i := range key {
			key[i] = 0
		}
		delete(s.keys, slot)
	}
}
