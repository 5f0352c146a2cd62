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
package ourutil

import (
	"regexp"
	"strings"
	"testing"
)

func TestFindNamedSubmatches(t *testing.T) {
	re := regexp.MustCompile(`^(?P<family>ATECC|ATSHA)(?P<model>\d+)A?$`)
	m := FindNamedSubmatches(re, "ATECC608A")
	if got, want := m["family"], "ATECC"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	if got, want := m["model"], "608"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	if m := FindNamedSubmatches(re, "TPM2"); m != nil {
		t.Errorf("expected no match, got %v", m)
	}
}

func TestPromptFrom(t *testing.T) {
	if got, want := PromptFrom(strings.NewReader("  yes \nno\n"), "Continue?"), "yes"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	if got, want := PromptFrom(strings.NewReader(""), "Continue?"), ""; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
}
