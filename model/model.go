/*
Copyright 2024 Pledge Authors.

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

package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix,
// e.g. "goal_5f0c...". The module keeps ids self-describing in logs and webhooks.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// Instant normalizes t to the precision the store keeps (milliseconds, UTC).
// Every timestamp written to a Goal or Donation goes through it so that the
// value handed back to callers equals the value read back later.
func Instant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// ToMillis converts an instant to epoch milliseconds.
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts epoch milliseconds to a UTC instant.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
