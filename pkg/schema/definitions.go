// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package schema

import "strings"

// SeriesType distinguishes a float-valued series from a dict-valued one.
type SeriesType uint8

const (
	FloatSeries SeriesType = 1
	DictSeries  SeriesType = 2
)

// MetricDefinition names a time-series metric and its storage column
// family. ID is the column-family label (2-6 chars); Name is the
// user-facing handle.
type MetricDefinition struct {
	Name           string     `json:"name"`
	ID             string     `json:"id"`
	Type           SeriesType `json:"type"`
	DeletePossible bool       `json:"delete_possible"`
}

// EventType distinguishes daily-bucketed from monthly-bucketed event
// streams.
type EventType uint8

const (
	Daily   EventType = 1
	Monthly EventType = 2
)

// EventDefinition names an event stream. Names ending in "*" are prefix
// patterns matched by ResolveEventDefinition; resolution default is Daily.
type EventDefinition struct {
	Name string    `json:"name"`
	Type EventType `json:"type"`
}

// MergeMetricDefinitions appends new definitions onto existing ones,
// replacing any existing entry that shares an ID. Mirrors the
// append-merge-by-key semantics of the original implementation's
// definition-list handling: later entries for the same key win, order
// of first appearance is preserved.
func MergeMetricDefinitions(existing, additions []MetricDefinition) []MetricDefinition {
	index := make(map[string]int, len(existing))
	merged := make([]MetricDefinition, len(existing))
	copy(merged, existing)
	for i, m := range merged {
		index[m.ID] = i
	}
	for _, m := range additions {
		if i, ok := index[m.ID]; ok {
			merged[i] = m
		} else {
			index[m.ID] = len(merged)
			merged = append(merged, m)
		}
	}
	return merged
}

// MergeEventDefinitions is MergeMetricDefinitions's counterpart, keyed
// by Name instead of ID.
func MergeEventDefinitions(existing, additions []EventDefinition) []EventDefinition {
	index := make(map[string]int, len(existing))
	merged := make([]EventDefinition, len(existing))
	copy(merged, existing)
	for i, e := range merged {
		index[e.Name] = i
	}
	for _, e := range additions {
		if i, ok := index[e.Name]; ok {
			merged[i] = e
		} else {
			index[e.Name] = len(merged)
			merged = append(merged, e)
		}
	}
	return merged
}

// ResolveEventDefinition finds the definition matching name: an exact
// match wins; otherwise the longest "*"-suffixed prefix pattern that
// name starts with. Falls back to Daily when nothing matches.
func ResolveEventDefinition(defs []EventDefinition, name string) EventDefinition {
	var best EventDefinition
	bestLen := -1
	for _, d := range defs {
		if d.Name == name {
			return d
		}
		if strings.HasSuffix(d.Name, "*") {
			prefix := strings.TrimSuffix(d.Name, "*")
			if strings.HasPrefix(name, prefix) && len(prefix) > bestLen {
				best = d
				bestLen = len(prefix)
			}
		}
	}
	if bestLen >= 0 {
		return best
	}
	return EventDefinition{Name: name, Type: Daily}
}

// LookupMetricByName finds a MetricDefinition by its user-facing name.
func LookupMetricByName(defs []MetricDefinition, name string) (MetricDefinition, bool) {
	for _, m := range defs {
		if m.Name == name {
			return m, true
		}
	}
	return MetricDefinition{}, false
}

// LookupMetricByID finds a MetricDefinition by its column-family id.
func LookupMetricByID(defs []MetricDefinition, id string) (MetricDefinition, bool) {
	for _, m := range defs {
		if m.ID == id {
			return m, true
		}
	}
	return MetricDefinition{}, false
}
