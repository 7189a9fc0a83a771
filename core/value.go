// Copyright 2015 trivago GmbH
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

package core

import "time"

// Timestamp is a point in time expressed as microseconds since the Unix
// epoch (spec.md §3): a plain integer rather than a time.Time so that
// producers, the merger and the batcher can compare, sort and arrange
// timestamps in a non-decreasing array with ordinary operators instead of
// repeated time.Time.Before/After calls.
type Timestamp int64

// FromTime converts a wall-clock time.Time into a Timestamp, truncating
// to microsecond resolution.
func FromTime(t time.Time) Timestamp {
	return Timestamp(t.UnixMicro())
}

// Time converts a Timestamp back into a time.Time in UTC. Callers that
// need a specific zone re-home it themselves (In).
func (t Timestamp) Time() time.Time {
	return time.UnixMicro(int64(t)).UTC()
}

// Add returns t shifted by d.
func (t Timestamp) Add(d time.Duration) Timestamp {
	return t + Timestamp(d/time.Microsecond)
}

// Sub returns the duration between t and other (t - other).
func (t Timestamp) Sub(other Timestamp) time.Duration {
	return time.Duration(t-other) * time.Microsecond
}

// ProducerID is the small, dense, generator-local integer identifying
// which configured input producer a timestamp came from (spec.md §3).
type ProducerID int

// IdentifiedTimestamp pairs a Timestamp with the id of the producer that
// emitted it, the unit the merger and batcher operate on once more than
// one producer is in play (spec.md §4.2).
type IdentifiedTimestamp struct {
	Timestamp  Timestamp
	ProducerID ProducerID
}

// TimestampBatch is a non-decreasing array of IdentifiedTimestamp ready
// to hand to the renderer (spec.md §4.3's batcher output).
type TimestampBatch []IdentifiedTimestamp

// Last returns the batch's last (latest) timestamp. Callers only call
// this on a non-empty batch.
func (b TimestampBatch) Last() Timestamp {
	return b[len(b)-1].Timestamp
}

// EventBatch is an ordered sequence of rendered event strings (spec.md
// §3), the renderer's output unit and the output subsystem's input unit.
type EventBatch []string
