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

// Package event implements the template rendering subsystem: pickers,
// templates, the module provider and the subprocess runner.
package event

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/eventum-io/eventum/core"
)

// RenderContext is what a picker condition or a rendered template sees:
// the timestamp, the originating producer's tags, declared params, the
// loaded samples and the three state scopes.
type RenderContext struct {
	Timestamp core.Timestamp
	Tags      []string
	Params    map[string]interface{}
	Locals    map[string]interface{}
	Shared    map[string]interface{}
	Globals   map[string]interface{}
}

// Picker selects one or more template aliases to render for a single
// timestamp. Pickers are stateful (spec.md §4.5): each variant carries
// its own mutable state rather than being modeled as a class hierarchy
// (spec.md §9 design note).
type Picker interface {
	// Pick returns a non-empty, ordered tuple of declared aliases.
	Pick(ctx *RenderContext) ([]string, error)
}

// AllPicker returns every template alias, in declared order, on every
// pick.
type AllPicker struct {
	Aliases []string
}

func (p *AllPicker) Pick(ctx *RenderContext) ([]string, error) {
	return p.Aliases, nil
}

// AnyPicker returns one alias chosen uniformly at random on each pick.
type AnyPicker struct {
	Aliases []string
	mu      sync.Mutex
	rng     *rand.Rand
}

// NewAnyPicker builds an any-picker over the given aliases.
func NewAnyPicker(aliases []string) *AnyPicker {
	return &AnyPicker{Aliases: aliases, rng: rand.New(rand.NewSource(rand.Int63()))}
}

func (p *AnyPicker) Pick(ctx *RenderContext) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return []string{p.Aliases[p.rng.Intn(len(p.Aliases))]}, nil
}

// ChancePicker returns one alias, weighted by Weights[i]/Σ Weights.
type ChancePicker struct {
	Aliases []string
	Weights []float64
	mu      sync.Mutex
	rng     *rand.Rand
}

// NewChancePicker builds a chance-picker. Aliases and weights must be
// the same length.
func NewChancePicker(aliases []string, weights []float64) *ChancePicker {
	return &ChancePicker{Aliases: aliases, Weights: weights, rng: rand.New(rand.NewSource(rand.Int63()))}
}

func (p *ChancePicker) Pick(ctx *RenderContext) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var total float64
	for _, w := range p.Weights {
		total += w
	}
	r := p.rng.Float64() * total
	var cum float64
	for i, w := range p.Weights {
		cum += w
		if r < cum {
			return []string{p.Aliases[i]}, nil
		}
	}
	return []string{p.Aliases[len(p.Aliases)-1]}, nil
}

// SpinPicker returns the next alias in round-robin order, wrapping
// modulo the number of declared aliases.
type SpinPicker struct {
	Aliases []string
	mu      sync.Mutex
	cursor  int
}

// NewSpinPicker builds a spin-picker starting at index 0.
func NewSpinPicker(aliases []string) *SpinPicker {
	return &SpinPicker{Aliases: aliases}
}

func (p *SpinPicker) Pick(ctx *RenderContext) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	alias := p.Aliases[p.cursor%len(p.Aliases)]
	p.cursor++
	return []string{alias}, nil
}

// ChainPicker returns the next alias from a declared sequence, wrapping
// cyclically. The chain references only declared aliases.
type ChainPicker struct {
	Sequence []string
	mu       sync.Mutex
	cursor   int
}

// NewChainPicker builds a chain-picker over the given sequence.
func NewChainPicker(sequence []string) *ChainPicker {
	return &ChainPicker{Sequence: sequence}
}

func (p *ChainPicker) Pick(ctx *RenderContext) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	alias := p.Sequence[p.cursor%len(p.Sequence)]
	p.cursor++
	return []string{alias}, nil
}

// FSMTransition is one state's outgoing edge: if Condition fires against
// the current render context, the state machine switches to To.
type FSMTransition struct {
	To        string
	Condition Condition
}

// FSMPicker models the `fsm` mode (spec.md §4.5): current state is the
// last alias returned (initial = the template marked `initial`);
// evaluating the current state's condition may switch to another state,
// whose alias is then emitted.
type FSMPicker struct {
	Table   map[string]FSMTransition
	current string
	mu      sync.Mutex
}

// NewFSMPicker builds an fsm-picker with the given transition table and
// initial state.
func NewFSMPicker(table map[string]FSMTransition, initial string) *FSMPicker {
	return &FSMPicker{Table: table, current: initial}
}

func (p *FSMPicker) Pick(ctx *RenderContext) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	transition, ok := p.Table[p.current]
	if ok && transition.Condition != nil {
		fire, err := transition.Condition.Eval(ctx)
		if err != nil {
			return nil, fmt.Errorf("evaluating fsm condition for state %q: %w", p.current, err)
		}
		if fire {
			p.current = transition.To
		}
	}
	return []string{p.current}, nil
}

// Condition is the FSM transition grammar: a small expression tree
// evaluated against the render context (spec.md §9 design note).
type Condition interface {
	Eval(ctx *RenderContext) (bool, error)
}

// Expr resolves to a scalar value read from the render context, used as
// an operand of a Condition.
type Expr interface {
	Value(ctx *RenderContext) (interface{}, error)
}

// Literal is a constant operand.
type Literal struct {
	Value_ interface{}
}

func (l Literal) Value(ctx *RenderContext) (interface{}, error) { return l.Value_, nil }

// Path resolves a dotted path against the render context's scopes:
// "locals.x", "shared.flag", "globals.y", "tags", "params.z",
// "timestamp".
type Path struct {
	Path string
}

func (p Path) Value(ctx *RenderContext) (interface{}, error) {
	parts := strings.SplitN(p.Path, ".", 2)
	root := parts[0]

	var scope map[string]interface{}
	switch root {
	case "locals":
		scope = ctx.Locals
	case "shared":
		scope = ctx.Shared
	case "globals":
		scope = ctx.Globals
	case "params":
		scope = ctx.Params
	case "timestamp":
		return int64(ctx.Timestamp), nil
	case "tags":
		return ctx.Tags, nil
	default:
		return nil, fmt.Errorf("unknown path root %q", root)
	}
	if len(parts) == 1 {
		return scope, nil
	}
	v, ok := lookupNested(scope, parts[1])
	if !ok {
		return nil, nil
	}
	return v, nil
}

func lookupNested(scope map[string]interface{}, rest string) (interface{}, bool) {
	parts := strings.SplitN(rest, ".", 2)
	v, ok := scope[parts[0]]
	if !ok {
		return nil, false
	}
	if len(parts) == 1 {
		return v, true
	}
	nested, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	return lookupNested(nested, parts[1])
}

func compareNumeric(a, b interface{}) (float64, float64, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	return af, bf, aok && bok
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case core.Timestamp:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func length(v interface{}) (int, bool) {
	switch s := v.(type) {
	case []string:
		return len(s), true
	case []interface{}:
		return len(s), true
	case string:
		return len(s), true
	case map[string]interface{}:
		return len(s), true
	default:
		return 0, false
	}
}

// Eq is true when both operands compare equal.
type Eq struct{ A, B Expr }

func (c Eq) Eval(ctx *RenderContext) (bool, error) {
	a, err := c.A.Value(ctx)
	if err != nil {
		return false, err
	}
	b, err := c.B.Value(ctx)
	if err != nil {
		return false, err
	}
	if af, bf, ok := compareNumeric(a, b); ok {
		return af == bf, nil
	}
	return fmt.Sprint(a) == fmt.Sprint(b), nil
}

// Ne is the negation of Eq.
type Ne struct{ A, B Expr }

func (c Ne) Eval(ctx *RenderContext) (bool, error) {
	eq, err := (Eq{c.A, c.B}).Eval(ctx)
	return !eq, err
}

func numericCompare(ctx *RenderContext, a, b Expr) (float64, float64, error) {
	av, err := a.Value(ctx)
	if err != nil {
		return 0, 0, err
	}
	bv, err := b.Value(ctx)
	if err != nil {
		return 0, 0, err
	}
	af, bf, ok := compareNumeric(av, bv)
	if !ok {
		return 0, 0, fmt.Errorf("operands are not comparable numerically: %v, %v", av, bv)
	}
	return af, bf, nil
}

// Gt is a numeric strictly-greater-than comparison.
type Gt struct{ A, B Expr }

func (c Gt) Eval(ctx *RenderContext) (bool, error) {
	a, b, err := numericCompare(ctx, c.A, c.B)
	return a > b, err
}

// Ge is a numeric greater-or-equal comparison.
type Ge struct{ A, B Expr }

func (c Ge) Eval(ctx *RenderContext) (bool, error) {
	a, b, err := numericCompare(ctx, c.A, c.B)
	return a >= b, err
}

// Lt is a numeric strictly-less-than comparison.
type Lt struct{ A, B Expr }

func (c Lt) Eval(ctx *RenderContext) (bool, error) {
	a, b, err := numericCompare(ctx, c.A, c.B)
	return a < b, err
}

// Le is a numeric less-or-equal comparison.
type Le struct{ A, B Expr }

func (c Le) Eval(ctx *RenderContext) (bool, error) {
	a, b, err := numericCompare(ctx, c.A, c.B)
	return a <= b, err
}

// LenEq is true when len(A) == N (operators.py's len_eq).
type LenEq struct {
	A Expr
	N int
}

func (c LenEq) Eval(ctx *RenderContext) (bool, error) {
	v, err := c.A.Value(ctx)
	if err != nil {
		return false, err
	}
	n, ok := length(v)
	if !ok {
		return false, fmt.Errorf("value has no length: %v", v)
	}
	return n == c.N, nil
}

// LenGt is true when len(A) > N (operators.py's len_gt).
type LenGt struct {
	A Expr
	N int
}

func (c LenGt) Eval(ctx *RenderContext) (bool, error) {
	v, err := c.A.Value(ctx)
	if err != nil {
		return false, err
	}
	n, ok := length(v)
	if !ok {
		return false, fmt.Errorf("value has no length: %v", v)
	}
	return n > c.N, nil
}

// LenLt is true when len(A) < N (operators.py's len_lt).
type LenLt struct {
	A Expr
	N int
}

func (c LenLt) Eval(ctx *RenderContext) (bool, error) {
	v, err := c.A.Value(ctx)
	if err != nil {
		return false, err
	}
	n, ok := length(v)
	if !ok {
		return false, fmt.Errorf("value has no length: %v", v)
	}
	return n < c.N, nil
}

// And is true when every operand is true.
type And struct{ Operands []Condition }

func (c And) Eval(ctx *RenderContext) (bool, error) {
	for _, op := range c.Operands {
		ok, err := op.Eval(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Or is true when at least one operand is true.
type Or struct{ Operands []Condition }

func (c Or) Eval(ctx *RenderContext) (bool, error) {
	for _, op := range c.Operands {
		ok, err := op.Eval(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Not negates its operand.
type Not struct{ Operand Condition }

func (c Not) Eval(ctx *RenderContext) (bool, error) {
	ok, err := c.Operand.Eval(ctx)
	return !ok, err
}
