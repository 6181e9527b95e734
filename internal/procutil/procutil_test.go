// Copyright 2025 Esteban Alvarez. All Rights Reserved.
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

package procutil

import (
	"os"
	"testing"
)

func TestAncestors_StartsWithSelf(t *testing.T) {
	chain := Ancestors(os.Getpid())
	if len(chain) == 0 || chain[0] != os.Getpid() {
		t.Fatalf("expected chain to start with self pid, got %v", chain)
	}
	found1 := false
	for _, p := range chain {
		if p == 1 {
			found1 = true
		}
	}
	_ = found1 // not guaranteed in every container/namespace, informational only
}

func TestWindowsForPID_NeverErrorsOnUnknownPID(t *testing.T) {
	// Must not panic or block regardless of platform/backing tool availability.
	_ = WindowsForPID(999999999)
}
