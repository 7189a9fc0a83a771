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

package event

import "testing"

func TestSpinPickerWrapsRoundRobin(t *testing.T) {
	p := NewSpinPicker([]string{"a", "b", "c"})
	ctx := &RenderContext{}

	var got []string
	for i := 0; i < 7; i++ {
		aliases, err := p.Pick(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, aliases[0])
	}

	want := []string{"a", "b", "c", "a", "b", "c", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("spin picker mismatch at %d: got %v, want %v", i, got, want)
		}
	}
}

func TestChainPickerFollowsDeclaredSequence(t *testing.T) {
	p := NewChainPicker([]string{"start", "middle", "end"})
	ctx := &RenderContext{}

	for i, want := range []string{"start", "middle", "end", "start"} {
		aliases, err := p.Pick(ctx)
		if err != nil {
			t.Fatalf("unexpected error at %d: %v", i, err)
		}
		if aliases[0] != want {
			t.Fatalf("chain picker mismatch at %d: got %q, want %q", i, aliases[0], want)
		}
	}
}

func TestFSMPickerTransitionsOnCondition(t *testing.T) {
	table := map[string]FSMTransition{
		"idle": {
			To:        "active",
			Condition: Eq{A: Path{Path: "locals.start"}, B: Literal{Value_: true}},
		},
		"active": {
			To:        "idle",
			Condition: Eq{A: Path{Path: "locals.stop"}, B: Literal{Value_: true}},
		},
	}
	p := NewFSMPicker(table, "idle")

	ctx := &RenderContext{Locals: map[string]interface{}{}}
	aliases, err := p.Pick(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if aliases[0] != "idle" {
		t.Fatalf("expected to stay in idle with no trigger, got %q", aliases[0])
	}

	ctx.Locals["start"] = true
	aliases, err = p.Pick(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if aliases[0] != "active" {
		t.Fatalf("expected transition to active, got %q", aliases[0])
	}

	ctx.Locals["start"] = false
	aliases, err = p.Pick(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if aliases[0] != "active" {
		t.Fatalf("expected to remain in active without stop trigger, got %q", aliases[0])
	}
}

func TestConditionAndOrNot(t *testing.T) {
	ctx := &RenderContext{Timestamp: 100}

	gt50 := Gt{A: Path{Path: "timestamp"}, B: Literal{Value_: 50}}
	lt200 := Lt{A: Path{Path: "timestamp"}, B: Literal{Value_: 200}}

	and := And{Operands: []Condition{gt50, lt200}}
	ok, err := and.Eval(ctx)
	if err != nil || !ok {
		t.Fatalf("expected And(gt50, lt200) to be true for timestamp=100, got %v, err=%v", ok, err)
	}

	or := Or{Operands: []Condition{Not{Operand: gt50}, lt200}}
	ok, err = or.Eval(ctx)
	if err != nil || !ok {
		t.Fatalf("expected Or(not gt50, lt200) to be true, got %v, err=%v", ok, err)
	}

	not := Not{Operand: gt50}
	ok, err = not.Eval(ctx)
	if err != nil || ok {
		t.Fatalf("expected Not(gt50) to be false for timestamp=100, got %v, err=%v", ok, err)
	}
}

func TestLenConditions(t *testing.T) {
	ctx := &RenderContext{Tags: []string{"a", "b"}}
	tagsExpr := Path{Path: "tags"}

	if ok, err := (LenEq{A: tagsExpr, N: 2}).Eval(ctx); err != nil || !ok {
		t.Fatalf("expected len(tags) == 2, got %v, err=%v", ok, err)
	}
	if ok, err := (LenGt{A: tagsExpr, N: 1}).Eval(ctx); err != nil || !ok {
		t.Fatalf("expected len(tags) > 1, got %v, err=%v", ok, err)
	}
	if ok, err := (LenLt{A: tagsExpr, N: 1}).Eval(ctx); err != nil || ok {
		t.Fatalf("expected len(tags) < 1 to be false, got %v, err=%v", ok, err)
	}
}
