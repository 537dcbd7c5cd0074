// Copyright 2026 fanjia1024
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

package errors

import (
	"errors"
	"testing"
)

func TestWrap(t *testing.T) {
	if Wrap(nil, "msg") != nil {
		t.Error("Wrap(nil, msg) should return nil")
	}
	err := errors.New("base")
	wrapped := Wrap(err, "context")
	if wrapped == nil {
		t.Fatal("Wrap(err, msg) should not return nil")
	}
	if !errors.Is(wrapped, err) {
		t.Error("wrapped error should unwrap to base")
	}
}

func TestWrapf(t *testing.T) {
	if Wrapf(nil, "format %s", "x") != nil {
		t.Error("Wrapf(nil, ...) should return nil")
	}
	err := errors.New("base")
	wrapped := Wrapf(err, "id=%s", "a")
	if wrapped == nil {
		t.Fatal("Wrapf(err, ...) should not return nil")
	}
	if !errors.Is(wrapped, err) {
		t.Error("wrapped error should unwrap to base")
	}
}

func TestSentinels(t *testing.T) {
	if !errors.Is(ErrNotFound, ErrNotFound) {
		t.Error("ErrNotFound should be Is ErrNotFound")
	}
	if !errors.Is(ErrInvalidArg, ErrInvalidArg) {
		t.Error("ErrInvalidArg should be Is ErrInvalidArg")
	}
}

func TestKindOf(t *testing.T) {
	base := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"plain", base, KindInternal},
		{"typed", E(KindInvalidImage, "decode", base), KindInvalidImage},
		{"wrapped typed", Wrap(E(KindUnauthorized, "auth", nil), "predict"), KindUnauthorized},
		{"not found sentinel", Wrap(ErrNotFound, "log"), KindNotFound},
		{"invalid arg sentinel", ErrInvalidArg, KindBadRequest},
		{"nil", nil, KindInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestErrorMessageCarriesIndex(t *testing.T) {
	err := AtIndex(KindInvalidEncoding, "decode", 2, errors.New("illegal base64 data"))
	if got := err.Error(); got != "decode: image 2: illegal base64 data" {
		t.Errorf("Error() = %q", got)
	}
	if !Is(err, KindInvalidEncoding) {
		t.Error("Is(err, KindInvalidEncoding) should be true")
	}
	if Is(nil, KindInternal) {
		t.Error("Is(nil, ...) should be false")
	}
}

func TestKindString(t *testing.T) {
	if KindModelLoad.String() != "model_load_failure" {
		t.Errorf("KindModelLoad.String() = %q", KindModelLoad.String())
	}
	if Kind(99).String() != "internal_failure" {
		t.Errorf("unknown kind should map to internal_failure")
	}
}
