/*
 * Copyright 2024 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metrics

import (
	"sync/atomic"
)

// NodeMetrics holds the event counters of one node instance.
type NodeMetrics struct {
	In      int64 `json:"in"`      // Number of events delivered to the node
	Out     int64 `json:"out"`     // Number of events emitted by the node
	Dropped int64 `json:"dropped"` // Number of events discarded on a full queue or on stop
	Failed  int64 `json:"failed"`  // Number of events whose processing failed
}

// NewNodeMetrics creates a new instance of NodeMetrics.
func NewNodeMetrics() *NodeMetrics {
	return &NodeMetrics{}
}

// IncrementIn increases the count of delivered events.
func (m *NodeMetrics) IncrementIn() {
	atomic.AddInt64(&m.In, 1)
}

// IncrementOut increases the count of emitted events.
func (m *NodeMetrics) IncrementOut() {
	atomic.AddInt64(&m.Out, 1)
}

// IncrementDropped increases the count of dropped events.
func (m *NodeMetrics) IncrementDropped() {
	atomic.AddInt64(&m.Dropped, 1)
}

// IncrementFailed increases the count of failed events.
func (m *NodeMetrics) IncrementFailed() {
	atomic.AddInt64(&m.Failed, 1)
}

// Get returns a copy of the current metrics.
func (m *NodeMetrics) Get() NodeMetrics {
	return NodeMetrics{
		In:      atomic.LoadInt64(&m.In),
		Out:     atomic.LoadInt64(&m.Out),
		Dropped: atomic.LoadInt64(&m.Dropped),
		Failed:  atomic.LoadInt64(&m.Failed),
	}
}

// Reset resets all metrics to zero.
func (m *NodeMetrics) Reset() {
	atomic.StoreInt64(&m.In, 0)
	atomic.StoreInt64(&m.Out, 0)
	atomic.StoreInt64(&m.Dropped, 0)
	atomic.StoreInt64(&m.Failed, 0)
}
