// Copyright (C) 2024 right-sizer contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package healing

import (
	"sync"
	"time"
)

// CooldownPolicy bounds how many consecutive failures an (entity,
// action) pair tolerates before the gate blocks it, and how long it
// stays blocked once it does.
type CooldownPolicy struct {
	MaxRetries int
	CooldownMs int64
}

type gateEntry struct {
	consecutiveFailures int
	cooldownDeadline    time.Time
}

// CooldownGate is the cooldown/retry table (§4.6), protected by a
// single short-lived mutex; every operation is O(1).
type CooldownGate struct {
	mu       sync.Mutex
	entries  map[string]*gateEntry
	policies map[Action]CooldownPolicy
	now      func() time.Time
}

// NewCooldownGate constructs a gate with one policy per action.
func NewCooldownGate(policies map[Action]CooldownPolicy) *CooldownGate {
	return &CooldownGate{
		entries:  make(map[string]*gateEntry),
		policies: policies,
		now:      time.Now,
	}
}

func gateKey(entity string, action Action) string {
	return entity + "/" + string(action)
}

// CanExecute reports whether (entity, action) is allowed to run now:
// false if now < cooldown_deadline, OR consecutive failures have
// reached max_retries. The cooldown deadline is only armed once
// RecordFailure has actually driven consecutiveFailures to max_retries
// (see RecordFailure), so the two conditions move together.
func (g *CooldownGate) CanExecute(entity string, action Action) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.entries[gateKey(entity, action)]
	if !ok {
		return true
	}
	if !entry.cooldownDeadline.IsZero() && g.now().Before(entry.cooldownDeadline) {
		return false
	}
	if entry.cooldownDeadline.IsZero() {
		// max_retries not yet reached: below the threshold, the pair
		// keeps accumulating consecutive failures without being blocked.
		return true
	}
	// Cooldown has elapsed: the pair gets a fresh attempt window, per
	// S3 (a request succeeds once cooldown_ms has passed even after
	// max_retries consecutive failures armed it).
	entry.consecutiveFailures = 0
	entry.cooldownDeadline = time.Time{}
	return true
}

// RecordSuccess resets the retry counter for (entity, action).
func (g *CooldownGate) RecordSuccess(entity string, action Action) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, gateKey(entity, action))
}

// RecordFailure increments the retry counter, arming the cooldown only
// once consecutive failures reach the policy's max_retries — arming it
// on every single failure would make the max_retries threshold
// unreachable, since the cooldown would already be blocking the very
// next attempt.
func (g *CooldownGate) RecordFailure(entity string, action Action) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := gateKey(entity, action)
	entry, ok := g.entries[key]
	if !ok {
		entry = &gateEntry{}
		g.entries[key] = entry
	}
	entry.consecutiveFailures++

	policy := g.policies[action]
	if entry.consecutiveFailures >= policy.MaxRetries {
		entry.cooldownDeadline = g.now().Add(time.Duration(policy.CooldownMs) * time.Millisecond)
	}
}
