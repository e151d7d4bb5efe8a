/*
Copyright 2025 Intel Corporation

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package testutils

import (
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
)

// VerifyError checks a (multi)error has expected properties, or else it fails the test.
func VerifyError(t *testing.T, err error, expectedCount int, expectedSubstrings []string) bool {
	t.Helper()
	if expectedCount == 0 {
		if err != nil {
			t.Errorf("expected 0 errors, but got: %v", err)
			return false
		}
		return true
	}
	if err == nil {
		t.Errorf("error expected, got nil")
		return false
	}
	merr, ok := err.(*multierror.Error)
	if !ok {
		// If exactly one error is expected, then err
		// is allowed to be any error, not just a
		// multierror.
		if expectedCount > 1 {
			t.Errorf("expected %d errors, but got %#v instead of multierror", expectedCount, err)
			return false
		}
	} else if len(merr.Errors) != expectedCount {
		t.Errorf("expected %d errors, but got %d: %v", expectedCount, len(merr.Errors), merr)
		return false
	}
	for _, substring := range expectedSubstrings {
		if !strings.Contains(err.Error(), substring) {
			t.Errorf("expected error with substring %#v, got \"%v\"", substring, err)
		}
	}
	return true
}

// VerifyNoError fails the test if err is not nil.
func VerifyNoError(t *testing.T, err error) bool {
	t.Helper()
	if err != nil {
		t.Errorf("expected no error, got %v", err)
		return false
	}
	return true
}
