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

import (
	"fmt"

	"github.com/flosch/pongo2/v4"

	"github.com/eventum-io/eventum/core"
	"github.com/eventum-io/eventum/plugin"
	"github.com/eventum-io/eventum/state"
)

// templateSpec is one declared template alias (spec.md §4.5): its file
// path plus whatever picking-mode-specific fields apply to it.
type templateSpec struct {
	Alias      string
	Path       string
	Chance     float64
	Chain      []string
	Initial    bool
	Transition *FSMTransition
}

// Params is the small params record passed to the event plugin
// constructor (spec.md §4.7): its host generator's id and the shared
// global-state handle.
type Params struct {
	GeneratorID string
	GlobalState *state.GlobalStore
}

// Renderer is the event plugin (spec.md §4.5): for one timestamp at a
// time it picks one or more template aliases and renders each with the
// full render context; the coordinator assembles the per-batch
// EventBatch from these results.
type Renderer struct {
	set          *pongo2.TemplateSet
	templates    map[string]*pongo2.Template
	localStates  map[string]*state.InProcess
	sharedState  *state.InProcess
	globalState  *state.GlobalStore
	picker       Picker
	params       map[string]interface{}
	samples      map[string][]interface{}
	modules      *ModuleProvider
	subprocesses *SubprocessRunner

	renderFailed map[string]uint64
}

func init() {
	plugin.Register("event", "jinja", func(settings map[string]interface{}, params interface{}) (interface{}, error) {
		p, _ := params.(Params)
		cfg := core.RawConfig{"jinja": settings}
		return NewRenderer(cfg, p)
	})
}

// NewRenderer builds a renderer from the generator's event config
// (spec.md §4.5, §4.7) — the declared mode, template aliases, samples
// and constant params.
func NewRenderer(cfg core.EventConfig, params Params) (*Renderer, error) {
	r := core.NewConfigReader(cfg.Settings())

	mode := r.GetString("mode", "all")
	specs, err := parseTemplateSpecs(r, mode)
	if err != nil {
		return nil, core.Wrap(core.KindConfiguration, err, core.Context{"plugin": "jinja"})
	}

	sampleConfigs := parseSampleConfigs(r.GetMap("samples", nil))
	samples, err := LoadSamples(sampleConfigs)
	if err != nil {
		return nil, core.Wrap(core.KindConfiguration, err, core.Context{"plugin": "jinja"})
	}

	set := pongo2.NewSet("eventum", pongo2.MustNewLocalFileSystemLoader(""))

	rend := &Renderer{
		set:          set,
		templates:    map[string]*pongo2.Template{},
		localStates:  map[string]*state.InProcess{},
		sharedState:  state.NewShared(),
		globalState:  params.GlobalState,
		params:       asRawMap(r.GetValue("params", map[string]interface{}{})),
		samples:      samples,
		modules:      NewModuleProvider(),
		subprocesses: NewSubprocessRunner(),
		renderFailed: map[string]uint64{},
	}

	for _, spec := range specs {
		tpl, err := set.FromFile(spec.Path)
		if err != nil {
			return nil, core.Wrap(core.KindInitialization, err, core.Context{
				"plugin":          "jinja",
				"template_alias":  spec.Alias,
				"template_path":   spec.Path,
			})
		}
		rend.templates[spec.Alias] = tpl
		rend.localStates[spec.Alias] = state.NewLocal()
	}

	picker, err := buildPicker(mode, specs)
	if err != nil {
		return nil, core.Wrap(core.KindConfiguration, err, core.Context{"plugin": "jinja"})
	}
	rend.picker = picker

	return rend, nil
}

// parseTemplateSpecs reads the `templates` list: [{alias: {...fields}}].
func parseTemplateSpecs(r *core.ConfigReader, mode string) ([]templateSpec, error) {
	raw, _ := r.GetValue("templates", nil).([]interface{})
	if len(raw) == 0 {
		return nil, fmt.Errorf("templates must declare at least one alias")
	}

	seen := map[string]bool{}
	specs := make([]templateSpec, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok || len(m) != 1 {
			return nil, fmt.Errorf("each templates entry must be a single-key map")
		}
		for alias, fieldsRaw := range m {
			if seen[alias] {
				return nil, fmt.Errorf("template alias %q is duplicated", alias)
			}
			seen[alias] = true

			fields, _ := fieldsRaw.(map[string]interface{})
			fr := core.NewConfigReader(fields)

			spec := templateSpec{
				Alias: alias,
				Path:  fr.GetString("template", ""),
			}
			if spec.Path == "" {
				return nil, fmt.Errorf("template alias %q: missing template path", alias)
			}

			switch mode {
			case "chance":
				spec.Chance = fr.GetFloat("chance", 0)
				if spec.Chance <= 0 {
					return nil, fmt.Errorf("template alias %q: chance must be > 0", alias)
				}
			case "fsm":
				spec.Initial = fr.GetBool("initial", false)
				if transitionRaw := fr.GetMap("transition", nil); transitionRaw != nil {
					tr := core.NewConfigReader(transitionRaw)
					cond, err := parseCondition(tr.GetValue("when", nil))
					if err != nil {
						return nil, fmt.Errorf("template alias %q: %w", alias, err)
					}
					spec.Transition = &FSMTransition{
						To:        tr.GetString("to", ""),
						Condition: cond,
					}
				}
			case "chain":
				spec.Chain = fr.GetStringArray("chain", nil)
			}

			specs = append(specs, spec)
		}
	}
	return specs, nil
}

func buildPicker(mode string, specs []templateSpec) (Picker, error) {
	aliases := make([]string, len(specs))
	for i, s := range specs {
		aliases[i] = s.Alias
	}

	switch mode {
	case "all":
		return &AllPicker{Aliases: aliases}, nil
	case "any":
		return NewAnyPicker(aliases), nil
	case "spin":
		return NewSpinPicker(aliases), nil
	case "chance":
		weights := make([]float64, len(specs))
		for i, s := range specs {
			weights[i] = s.Chance
		}
		return NewChancePicker(aliases, weights), nil
	case "chain":
		var sequence []string
		for _, s := range specs {
			if len(s.Chain) > 0 {
				sequence = s.Chain
				break
			}
		}
		if len(sequence) == 0 {
			sequence = aliases
		}
		declared := map[string]bool{}
		for _, a := range aliases {
			declared[a] = true
		}
		for _, a := range sequence {
			if !declared[a] {
				return nil, fmt.Errorf("chain references unknown template alias %q", a)
			}
		}
		return NewChainPicker(sequence), nil
	case "fsm":
		table := map[string]FSMTransition{}
		initial := ""
		for _, s := range specs {
			if s.Initial {
				if initial != "" {
					return nil, fmt.Errorf("only one template can be initial")
				}
				initial = s.Alias
			}
			if s.Transition != nil {
				table[s.Alias] = *s.Transition
			}
		}
		if initial == "" {
			return nil, fmt.Errorf("fsm mode requires exactly one initial template")
		}
		return NewFSMPicker(table, initial), nil
	default:
		return nil, fmt.Errorf("unknown picking mode %q", mode)
	}
}

// Render picks and renders templates for one timestamp, returning every
// rendered event (spec.md §4.5's per-timestamp produce operation).
func (r *Renderer) Render(ts core.Timestamp, tags []string) ([]string, error) {
	ctx := &RenderContext{
		Timestamp: ts,
		Tags:      tags,
		Params:    r.params,
		Shared:    r.sharedState.AsMap(),
	}
	if r.globalState != nil {
		ctx.Globals = r.globalState.AsMap()
	}

	aliases, err := r.picker.Pick(ctx)
	if err != nil {
		return nil, core.Wrap(core.KindRendererRuntime, err, core.Context{"reason": "picking failed"})
	}

	events := make([]string, 0, len(aliases))
	for _, alias := range aliases {
		event, err := r.renderAlias(alias, ts, tags)
		if err != nil {
			r.renderFailed[alias]++
			return nil, core.Wrap(core.KindRendererRuntime, err, core.Context{
				"template_alias": alias,
			})
		}
		events = append(events, event)
	}
	return events, nil
}

func (r *Renderer) renderAlias(alias string, ts core.Timestamp, tags []string) (string, error) {
	tpl, ok := r.templates[alias]
	if !ok {
		return "", fmt.Errorf("template alias %q is not declared", alias)
	}
	local := r.localStates[alias]

	pctx := pongo2.Context{
		"timestamp": ts.Time(),
		"tags":      tags,
		"params":    r.params,
		"samples":   r.samples,
		"module":    r.modules,
		"subprocess": r.subprocesses,
		"locals":    local,
		"shared":    r.sharedState,
		"globals":   r.globalState,
	}
	return tpl.Execute(pctx)
}

// LocalStates returns a snapshot of every template's local state,
// keyed by alias (spec.md §6 metrics shape, `state.locals`).
func (r *Renderer) LocalStates() map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(r.localStates))
	for alias, s := range r.localStates {
		out[alias] = s.AsMap()
	}
	return out
}

// SharedState returns a snapshot of the generator-wide shared state.
func (r *Renderer) SharedState() map[string]interface{} {
	return r.sharedState.AsMap()
}

// RenderFailed returns the per-alias render failure tally (spec.md
// §4.5 "Per-batch per-alias failure tallies are exposed as metrics").
func (r *Renderer) RenderFailed() map[string]uint64 {
	out := make(map[string]uint64, len(r.renderFailed))
	for k, v := range r.renderFailed {
		out[k] = v
	}
	return out
}

func asRawMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

func parseSampleConfigs(raw map[string]interface{}) map[string]SampleConfig {
	out := make(map[string]SampleConfig, len(raw))
	for name, v := range raw {
		m, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		r := core.NewConfigReader(m)
		cfg := SampleConfig{
			Type:      r.GetString("type", "items"),
			Source:    r.GetString("source", ""),
			CSVHeader: r.GetBool("header", false),
		}
		if d := r.GetString("delimiter", ","); len(d) > 0 {
			cfg.Delimiter = rune(d[0])
		}
		if items, ok := m["source"].([]interface{}); ok && cfg.Type == "items" {
			cfg.Items = items
		}
		out[name] = cfg
	}
	return out
}

// parseCondition builds a Condition from the FSM transition grammar's
// configuration shape: {op: "eq", a: {path: "shared.flag"}, b: {value: true}},
// composed recursively for and/or/not.
func parseCondition(raw interface{}) (Condition, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("condition must be a map")
	}
	r := core.NewConfigReader(m)
	op := r.GetString("op", "")

	switch op {
	case "and", "or":
		rawOperands, _ := r.GetValue("operands", nil).([]interface{})
		operands := make([]Condition, 0, len(rawOperands))
		for _, o := range rawOperands {
			c, err := parseCondition(o)
			if err != nil {
				return nil, err
			}
			operands = append(operands, c)
		}
		if op == "and" {
			return And{Operands: operands}, nil
		}
		return Or{Operands: operands}, nil
	case "not":
		inner, err := parseCondition(r.GetValue("operand", nil))
		if err != nil {
			return nil, err
		}
		return Not{Operand: inner}, nil
	case "eq", "ne", "gt", "ge", "lt", "le":
		a := parseExpr(r.GetValue("a", nil))
		b := parseExpr(r.GetValue("b", nil))
		switch op {
		case "eq":
			return Eq{a, b}, nil
		case "ne":
			return Ne{a, b}, nil
		case "gt":
			return Gt{a, b}, nil
		case "ge":
			return Ge{a, b}, nil
		case "lt":
			return Lt{a, b}, nil
		default:
			return Le{a, b}, nil
		}
	case "len_eq", "len_gt", "len_lt":
		a := parseExpr(r.GetValue("a", nil))
		n := int(r.GetInt("n", 0))
		switch op {
		case "len_eq":
			return LenEq{a, n}, nil
		case "len_gt":
			return LenGt{a, n}, nil
		default:
			return LenLt{a, n}, nil
		}
	default:
		return nil, fmt.Errorf("unknown condition operator %q", op)
	}
}

func parseExpr(raw interface{}) Expr {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return Literal{Value_: raw}
	}
	if path, ok := m["path"].(string); ok {
		return Path{Path: path}
	}
	return Literal{Value_: m["value"]}
}
