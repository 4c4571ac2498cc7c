// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package acm implements the Actuator Command Manager: per-device,
// per-actuator debouncing and stop-command precomputation (spec §4.6).
// Range enforcement happens upstream, in pkg/message's conversion layer;
// the ACM only ever receives values already inside a feature's step limit.
package acm

import (
	"sync"
	"sync/atomic"

	"github.com/nexhw/buttplug-go/pkg/feature"
	"github.com/nexhw/buttplug-go/pkg/message"
)

// Command is one output write the device manager wants applied to a
// feature, already range-checked.
type Command struct {
	FeatureIndex uint32
	ActuatorType feature.OutputType
	Value        int32
}

// featureStatus is the per-(feature, actuator) bookkeeping cell. lastValue
// and sentOnce are atomics (spec §5: "ACM feature status: atomic integers,
// relaxed ordering sufficient ... atomics exist to allow cheap external
// reads for telemetry"); the ACM itself is never consulted concurrently for
// the same feature, so the atomics buy telemetry access, not mutual
// exclusion.
type featureStatus struct {
	featureIndex uint32
	actuatorType feature.OutputType
	spec         feature.ActuatorSpec
	sentOnce     int32
	lastValue    int32
}

func (s *featureStatus) snapshot() (int32, bool) {
	return atomic.LoadInt32(&s.lastValue), atomic.LoadInt32(&s.sentOnce) == 1
}

func (s *featureStatus) store(value int32) {
	atomic.StoreInt32(&s.lastValue, value)
	atomic.StoreInt32(&s.sentOnce, 1)
}

// ACM tracks command state for every output feature of one device.
type ACM struct {
	mu       sync.Mutex
	statuses []*featureStatus
}

// New builds an ACM over the device's feature list, tracking one status
// cell per (feature index, output kind) pair the catalog declares.
func New(features []feature.Feature) *ACM {
	a := &ACM{}
	for i, f := range features {
		for kind, spec := range f.Output {
			a.statuses = append(a.statuses, &featureStatus{
				featureIndex: uint32(i),
				actuatorType: kind,
				spec:         spec,
			})
		}
	}
	return a
}

func (a *ACM) find(featureIndex uint32, kind feature.OutputType) *featureStatus {
	for _, s := range a.statuses {
		if s.featureIndex == featureIndex && s.actuatorType == kind {
			return s
		}
	}
	return nil
}

// Update implements spec §4.6's ACM.update(commands, match_all): it
// debounces no-op repeats and, for wire formats that require every channel
// re-sent together, folds in the last known value of every other feature
// accepting the same output kind. The returned slice contains only entries
// that must actually be written to the wire.
func (a *ACM) Update(commands []Command) []Command {
	a.mu.Lock()
	defer a.mu.Unlock()

	targeted := make(map[*featureStatus]int32, len(commands))
	var matchAllKinds []feature.OutputType
	for _, c := range commands {
		s := a.find(c.FeatureIndex, c.ActuatorType)
		if s == nil {
			continue
		}
		targeted[s] = c.Value
		if last, sentOnce := s.snapshot(); c.ActuatorType.RequiresMatchAll() && (!sentOnce || last != c.Value) {
			matchAllKinds = append(matchAllKinds, c.ActuatorType)
		}
	}

	var result []Command
	for _, s := range a.statuses {
		if value, ok := targeted[s]; ok {
			last, sentOnce := s.snapshot()
			if !sentOnce || last != value {
				s.store(value)
				result = append(result, Command{FeatureIndex: s.featureIndex, ActuatorType: s.actuatorType, Value: value})
			}
			continue
		}
		if containsKind(matchAllKinds, s.actuatorType) {
			last, sentOnce := s.snapshot()
			if sentOnce {
				result = append(result, Command{FeatureIndex: s.featureIndex, ActuatorType: s.actuatorType, Value: last})
			}
		}
	}
	return result
}

func containsKind(kinds []feature.OutputType, want feature.OutputType) bool {
	for _, k := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

// StopCommands returns a command setting every tracked actuator to 0, so
// StopDevice/StopAllDevices need no protocol-specific knowledge (spec §4.6
// "Stop commands").
func (a *ACM) StopCommands() []Command {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Command, len(a.statuses))
	for i, s := range a.statuses {
		out[i] = Command{FeatureIndex: s.featureIndex, ActuatorType: s.actuatorType, Value: 0}
	}
	return out
}

// Snapshot returns the last value written to every actuator that has been
// sent at least once, for the keepalive strategy's repeat-last-packet
// re-send (spec §4.6). Actuators never commanded are omitted rather than
// resent as zero.
func (a *ACM) Snapshot() []Command {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []Command
	for _, s := range a.statuses {
		if value, sentOnce := s.snapshot(); sentOnce {
			out = append(out, Command{FeatureIndex: s.featureIndex, ActuatorType: s.actuatorType, Value: value})
		}
	}
	return out
}

// FromCheckedOutputVecCmd flattens a validated message.CheckedOutputVecCmd
// into the Command slice the ACM consumes.
func FromCheckedOutputVecCmd(cmd message.CheckedOutputVecCmd) []Command {
	out := make([]Command, 0, len(cmd.Outputs()))
	for _, entry := range cmd.Outputs() {
		kind, value, ok := entry.OutputCommand.Kind()
		if !ok {
			continue
		}
		out = append(out, Command{FeatureIndex: entry.FeatureIndex, ActuatorType: kind, Value: int32(value)})
	}
	return out
}
