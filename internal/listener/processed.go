/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package listener

import (
	"sync"
	"time"
)

// processedSet remembers update ids with the time they were first seen
type processedSet struct {
	mutex sync.Mutex
	ids   map[int64]time.Time
}

func newProcessedSet() *processedSet {
	return &processedSet{ids: make(map[int64]time.Time)}
}

// markIfNew records id and reports whether it had not been seen before
func (s *processedSet) markIfNew(id int64, now time.Time) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.ids[id]; exists {
		return false
	}
	s.ids[id] = now
	return true
}

func (s *processedSet) forget(id int64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.ids, id)
}

// cleanup drops ids seen before cutoff and returns how many were removed
func (s *processedSet) cleanup(cutoff time.Time) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cleaned := 0
	for id, seen := range s.ids {
		if seen.Before(cutoff) {
			delete(s.ids, id)
			cleaned++
		}
	}
	return cleaned
}

func (s *processedSet) len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.ids)
}
