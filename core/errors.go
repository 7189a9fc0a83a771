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

// Package core holds the value types, error taxonomy, configuration reader
// and metrics registry shared by every stage of the generation pipeline.
package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies which branch of the error taxonomy (spec.md §7) an
// error belongs to.
type Kind int

const (
	// KindConfiguration marks structural/semantic problems detected before
	// or during plugin construction. Fatal for the affected generator.
	KindConfiguration Kind = iota
	// KindInitialization marks plugin construction failures. Fatal.
	KindInitialization
	// KindProducerRuntime marks expected runtime failures in a producer.
	// Terminates that producer only.
	KindProducerRuntime
	// KindRendererRuntime marks per-template, per-batch render failures.
	KindRendererRuntime
	// KindWriterRuntime marks per-batch, per-sink write failures.
	KindWriterRuntime
	// KindUnexpected marks anything else. Fatal, logged with stack context.
	KindUnexpected
)

// String returns the taxonomy name used in logs and exit-code mapping.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindInitialization:
		return "initialization"
	case KindProducerRuntime:
		return "producer_runtime"
	case KindRendererRuntime:
		return "renderer_runtime"
	case KindWriterRuntime:
		return "writer_runtime"
	default:
		return "unexpected"
	}
}

// ExitCode maps a Kind onto the process exit codes from spec.md §6.
func (k Kind) ExitCode() int {
	switch k {
	case KindConfiguration:
		return 2
	case KindInitialization:
		return 3
	case KindProducerRuntime, KindRendererRuntime, KindWriterRuntime:
		return 4
	default:
		return 1
	}
}

// Context is a free-form bag of error context (reason, plugin name/id/type,
// file path, URL, ...). It is logged verbatim as structured fields, never
// folded into a free-form message, per spec.md §7.
type Context map[string]interface{}

// Error is the taxonomy error every component boundary wraps its local
// failures into. The original cause stays reachable through Unwrap so
// errors.Is / errors.As keep working across the boundary.
type Error struct {
	kind    Kind
	context Context
	cause   error
}

// NewError builds a taxonomy error from a kind and a context map, with no
// underlying cause (used for errors that originate in this package).
func NewError(kind Kind, context Context) *Error {
	if context == nil {
		context = Context{}
	}
	return &Error{kind: kind, context: context}
}

// Wrap wraps cause into a taxonomy error of the given kind, attaching
// context and a stack trace via pkg/errors.
func Wrap(kind Kind, cause error, context Context) *Error {
	if context == nil {
		context = Context{}
	}
	return &Error{kind: kind, context: context, cause: errors.WithStack(cause)}
}

// Kind returns the taxonomy branch this error belongs to.
func (e *Error) Kind() Kind { return e.kind }

// Context returns the attached context map.
func (e *Error) Context() Context { return e.context }

// Unwrap exposes the original cause to errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Error implements the error interface. The message intentionally excludes
// the context map; callers log Context() as structured fields instead.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.kind, e.cause.Error())
	}
	return e.kind.String()
}

// ErrRegionTooSmall is returned by the global state store when a write
// would not fit the fixed-size shared-memory region.
var ErrRegionTooSmall = errors.New("global state: payload exceeds region size")

// ErrCorruptRegion is returned by the global state store when the region's
// length prefix or payload cannot be decoded.
var ErrCorruptRegion = errors.New("global state: region contents are corrupt")
