// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package stats provides collections of counters. Each counter
// belongs to a snapshottable collection, and these collections can be
// aggregated.
package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Values is a snapshot of the values in a collection.
type Values map[string]int64

// Copy returns a copy of the values v.
func (v Values) Copy() Values {
	w := make(Values)
	for k, v := range v {
		w[k] = v
	}
	return w
}

// String returns an abbreviated string with the values in this
// snapshot sorted by key.
func (v Values) String() string {
	var keys []string
	for key := range v {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for i, key := range keys {
		keys[i] = fmt.Sprintf("%s:%d", key, v[key])
	}
	return strings.Join(keys, " ")
}

// A Map is a set of counters keyed by name.
type Map struct {
	mu     sync.Mutex
	values map[string]*Int
	floats map[string]*Float
}

// NewMap returns a fresh Map.
func NewMap() *Map {
	return &Map{
		values: make(map[string]*Int),
		floats: make(map[string]*Float),
	}
}

// Int returns the counter with the provided name. The counter is
// created if it does not already exist.
func (m *Map) Int(name string) *Int {
	m.mu.Lock()
	v := m.values[name]
	if v == nil {
		v = new(Int)
		m.values[name] = v
	}
	m.mu.Unlock()
	return v
}

// Float returns the float counter with the provided name, creating it if
// it does not already exist. Float counters hold fractional-second
// durations such as the average completion time methods are weighted by;
// an Int would truncate them to zero for any sub-second sample.
func (m *Map) Float(name string) *Float {
	m.mu.Lock()
	v := m.floats[name]
	if v == nil {
		v = new(Float)
		m.floats[name] = v
	}
	m.mu.Unlock()
	return v
}

// AddAll adds all counters in the map to the provided snapshot.
func (m *Map) AddAll(vals Values) {
	m.mu.Lock()
	for k, v := range m.values {
		vals[k] += v.Get()
	}
	m.mu.Unlock()
}

// AddAllFloat adds all float counters in the map to the provided
// snapshot.
func (m *Map) AddAllFloat(vals FloatValues) {
	m.mu.Lock()
	for k, v := range m.floats {
		vals[k] += v.Get()
	}
	m.mu.Unlock()
}

// An Int is a integer counter. Ints can be atomically
// incremented and set.
type Int struct {
	val int64
}

// Add increments v by delta.
func (v *Int) Add(delta int64) {
	if v == nil {
		return
	}
	atomic.AddInt64(&v.val, delta)
}

// Set sets the counter's value to val.
func (v *Int) Set(val int64) {
	if v == nil {
		return
	}
	atomic.StoreInt64(&v.val, val)
}

// Get returns the current value of a counter.
func (v *Int) Get() int64 {
	if v == nil {
		return 0
	}
	return atomic.LoadInt64(&v.val)
}

// FloatValues is a snapshot of the float-valued counters in a collection.
type FloatValues map[string]float64

// A Float is a float64 counter updated atomically through its bit
// representation, mirroring Int's semantics for fractional values.
type Float struct {
	bits uint64
}

// Add increments v by delta using a compare-and-swap retry loop, since
// there is no atomic float add.
func (v *Float) Add(delta float64) {
	if v == nil {
		return
	}
	for {
		old := atomic.LoadUint64(&v.bits)
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(&v.bits, old, next) {
			return
		}
	}
}

// Set sets the counter's value to val.
func (v *Float) Set(val float64) {
	if v == nil {
		return
	}
	atomic.StoreUint64(&v.bits, math.Float64bits(val))
}

// Get returns the current value of a counter.
func (v *Float) Get() float64 {
	if v == nil {
		return 0
	}
	return math.Float64frombits(atomic.LoadUint64(&v.bits))
}
