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

package input

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/eventum-io/eventum/core"
	"github.com/eventum-io/eventum/plugin"
)

// RandomizerDirection selects which side of 1.0 the randomizer factor
// is drawn from (spec.md §4.1.1 step 3).
type RandomizerDirection string

const (
	RandomizerDecrease RandomizerDirection = "decrease"
	RandomizerIncrease RandomizerDirection = "increase"
	RandomizerMixed    RandomizerDirection = "mixed"
)

// Distribution selects the spreader's sampling function (spec.md §4.1.1
// step 4).
type Distribution string

const (
	DistributionUniform    Distribution = "uniform"
	DistributionTriangular Distribution = "triangular"
	DistributionBeta       Distribution = "beta"
)

// OscillatorConfig partitions [Start, End] into equal periods.
type OscillatorConfig struct {
	Period float64
	Unit   time.Duration
	Start  time.Time
	End    time.Time
}

// MultiplierConfig sets the base signal count per period.
type MultiplierConfig struct {
	Ratio int
}

// RandomizerConfig configures the per-period count randomizer.
type RandomizerConfig struct {
	Deviation float64
	Direction RandomizerDirection
	Sampling  int
}

// SpreaderConfig configures how signals are distributed within a
// period.
type SpreaderConfig struct {
	Distribution Distribution
	// Uniform
	Low, High float64
	// Triangular
	Left, Mode, Right float64
	// Beta
	A, B float64
}

// TimePatternConfig is the configuration of a single pattern file
// (spec.md §4.1.1).
type TimePatternConfig struct {
	Label      string           `yaml:"label"`
	Oscillator OscillatorConfig `yaml:"-"`
	Multiplier MultiplierConfig `yaml:"-"`
	Randomizer RandomizerConfig `yaml:"-"`
	Spreader   SpreaderConfig   `yaml:"-"`
}

// timePatternFile is the on-disk YAML shape for a pattern file; it is
// decoded and then converted into TimePatternConfig so the exported
// type can use time.Duration/time.Time instead of raw strings.
type timePatternFile struct {
	Label      string `yaml:"label"`
	Oscillator struct {
		Period float64 `yaml:"period"`
		Unit   string  `yaml:"unit"`
		Start  string  `yaml:"start"`
		End    string  `yaml:"end"`
	} `yaml:"oscillator"`
	Multiplier struct {
		Ratio int `yaml:"ratio"`
	} `yaml:"multiplier"`
	Randomizer struct {
		Deviation float64 `yaml:"deviation"`
		Direction string  `yaml:"direction"`
		Sampling  int     `yaml:"sampling"`
	} `yaml:"randomizer"`
	Spreader struct {
		Distribution string                 `yaml:"distribution"`
		Parameters   map[string]float64     `yaml:"parameters"`
	} `yaml:"spreader"`
}

func timeUnit(unit string) time.Duration {
	switch unit {
	case "weeks":
		return 7 * 24 * time.Hour
	case "days":
		return 24 * time.Hour
	case "hours":
		return time.Hour
	case "minutes":
		return time.Minute
	case "seconds":
		return time.Second
	case "milliseconds":
		return time.Millisecond
	case "microseconds":
		return time.Microsecond
	default:
		return time.Second
	}
}

// loadTimePatternConfig reads and validates a single pattern file.
func loadTimePatternConfig(path string) (TimePatternConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TimePatternConfig{}, err
	}

	var f timePatternFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return TimePatternConfig{}, err
	}

	start, err := time.Parse(time.RFC3339, f.Oscillator.Start)
	if err != nil {
		return TimePatternConfig{}, fmt.Errorf("oscillator.start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, f.Oscillator.End)
	if err != nil {
		return TimePatternConfig{}, fmt.Errorf("oscillator.end: %w", err)
	}
	if f.Randomizer.Sampling == 0 {
		f.Randomizer.Sampling = 1024
	}

	cfg := TimePatternConfig{
		Label: f.Label,
		Oscillator: OscillatorConfig{
			Period: f.Oscillator.Period,
			Unit:   timeUnit(f.Oscillator.Unit),
			Start:  start,
			End:    end,
		},
		Multiplier: MultiplierConfig{Ratio: f.Multiplier.Ratio},
		Randomizer: RandomizerConfig{
			Deviation: f.Randomizer.Deviation,
			Direction: RandomizerDirection(f.Randomizer.Direction),
			Sampling:  f.Randomizer.Sampling,
		},
		Spreader: SpreaderConfig{
			Distribution: Distribution(f.Spreader.Distribution),
			Low:          f.Spreader.Parameters["low"],
			High:         f.Spreader.Parameters["high"],
			Left:         f.Spreader.Parameters["left"],
			Mode:         f.Spreader.Parameters["mode"],
			Right:        f.Spreader.Parameters["right"],
			A:            f.Spreader.Parameters["a"],
			B:            f.Spreader.Parameters["b"],
		},
	}

	if cfg.Multiplier.Ratio < 1 {
		return TimePatternConfig{}, fmt.Errorf("multiplier.ratio must be >= 1")
	}
	if cfg.Spreader.Distribution == DistributionTriangular {
		if !(cfg.Spreader.Left <= cfg.Spreader.Mode && cfg.Spreader.Mode <= cfg.Spreader.Right) ||
			(cfg.Spreader.Left == cfg.Spreader.Mode && cfg.Spreader.Mode == cfg.Spreader.Right) {
			return TimePatternConfig{}, fmt.Errorf("triangular parameters must satisfy left <= mode <= right, not all equal")
		}
	}

	return cfg, nil
}

// timePatternProducer generates timestamps for a single pattern file,
// composing the oscillator, multiplier, randomizer and spreader
// transforms described in spec.md §4.1.1.
type timePatternProducer struct {
	config  TimePatternConfig
	rng     *rand.Rand
	factors []float64
	cursor  int
}

func newTimePatternProducer(cfg TimePatternConfig) *timePatternProducer {
	p := &timePatternProducer{
		config: cfg,
		rng:    rand.New(rand.NewSource(rand.Int63())),
	}
	p.factors = p.generateFactors(cfg.Randomizer.Sampling)
	return p
}

// generateFactors draws the randomizer's bulk sample (step 3).
func (p *timePatternProducer) generateFactors(count int) []float64 {
	d := p.config.Randomizer.Deviation
	factors := make([]float64, count)
	var low, high float64
	switch p.config.Randomizer.Direction {
	case RandomizerDecrease:
		low, high = 1-d, 1
	case RandomizerIncrease:
		low, high = 1, 1+d
	default:
		low, high = 1-d, 1+d
	}
	for i := range factors {
		factors[i] = low + p.rng.Float64()*(high-low)
	}
	return factors
}

// nextFactor cyclically consumes the factor sample, reshuffling on
// exhaustion (matches the Python generator's behavior).
func (p *timePatternProducer) nextFactor() float64 {
	if p.cursor >= len(p.factors) {
		p.rng.Shuffle(len(p.factors), func(i, j int) {
			p.factors[i], p.factors[j] = p.factors[j], p.factors[i]
		})
		p.cursor = 0
	}
	f := p.factors[p.cursor]
	p.cursor++
	return f
}

// periodSize returns the randomized signal count for the next period.
func (p *timePatternProducer) periodSize() int {
	return int(float64(p.config.Multiplier.Ratio) * p.nextFactor())
}

// spread samples size fractions in [0,1] from the configured
// distribution, sorted, and scales them by duration (step 4).
func (p *timePatternProducer) spread(size int, duration time.Duration) []time.Duration {
	fractions := make([]float64, size)
	s := p.config.Spreader
	switch s.Distribution {
	case DistributionTriangular:
		for i := range fractions {
			fractions[i] = triangular(p.rng, s.Left, s.Mode, s.Right)
		}
	case DistributionBeta:
		for i := range fractions {
			fractions[i] = betaSample(p.rng, s.A, s.B)
		}
	default:
		for i := range fractions {
			fractions[i] = s.Low + p.rng.Float64()*(s.High-s.Low)
		}
	}
	sort.Float64s(fractions)

	out := make([]time.Duration, size)
	for i, f := range fractions {
		out[i] = time.Duration(f * float64(duration))
	}
	return out
}

// periodTimestamps generates one period's worth of distributed
// timestamps, starting at start.
func (p *timePatternProducer) periodTimestamps(start core.Timestamp, size int, duration time.Duration) []core.Timestamp {
	offsets := p.spread(size, duration)
	out := make([]core.Timestamp, size)
	for i, off := range offsets {
		out[i] = start + core.Timestamp(off/time.Microsecond)
	}
	return out
}

// Generate implements Producer for a single pattern file. skip_past is
// applied twice (spec.md §9): once here at the period level (whole
// past periods are skipped outright), and once more further down in
// this same loop after each period's samples are spread, since spreading can still place a sample before "now" even in the
// first future period.
func (p *timePatternProducer) Generate(ctx context.Context, size int, skipPast bool) (<-chan []core.Timestamp, <-chan error) {
	out := make(chan []core.Timestamp)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		periodDuration := time.Duration(p.config.Oscillator.Period * float64(p.config.Oscillator.Unit))
		start := p.config.Oscillator.Start
		end := p.config.Oscillator.End

		if skipPast && periodDuration > 0 {
			now := time.Now()
			for start.Add(periodDuration).Before(now) || start.Add(periodDuration).Equal(now) {
				start = start.Add(periodDuration)
				if !start.Before(end) {
					break
				}
			}
		}

		if !start.Before(end) {
			return
		}

		for start.Before(end) {
			select {
			case <-ctx.Done():
				return
			default:
			}

			size := p.periodSize()
			if size > 0 {
				timestamps := p.periodTimestamps(core.FromTime(start), size, periodDuration)

				periodEnd := start.Add(periodDuration)
				if periodEnd.After(end) {
					cutoff := core.FromTime(end)
					timestamps = cutBefore(timestamps, cutoff)
				}

				if skipPast {
					timestamps = SkipPastInPlace(timestamps, core.FromTime(time.Now()))
				}

				if len(timestamps) > 0 {
					select {
					case out <- timestamps:
					case <-ctx.Done():
						return
					}
				}
			}

			start = start.Add(periodDuration)
		}
	}()

	return out, errc
}

func cutBefore(timestamps []core.Timestamp, before core.Timestamp) []core.Timestamp {
	idx := sort.Search(len(timestamps), func(i int) bool {
		return timestamps[i] >= before
	})
	return timestamps[:idx]
}

// triangular samples the triangular distribution with mode c over
// [a,b] using the standard inverse-CDF construction.
func triangular(rng *rand.Rand, a, c, b float64) float64 {
	u := rng.Float64()
	f := (c - a) / (b - a)
	if u < f {
		return a + (b-a)*math.Sqrt(u*f)
	}
	return b - (b-a)*math.Sqrt((1-u)*(1-f))
}

// betaSample draws from Beta(a,b) via two Gamma draws (Marsaglia-Tsang).
func betaSample(rng *rand.Rand, a, b float64) float64 {
	x := gammaSample(rng, a)
	y := gammaSample(rng, b)
	if x+y == 0 {
		return 0
	}
	return x / (x + y)
}

func gammaSample(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return gammaSample(rng, shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// TimePatternsConfig configures the time_patterns producer (spec.md
// §4.1.1): a set of pattern files composed through the merger.
type TimePatternsConfig struct {
	Patterns       []string
	OrderedMerging bool
}

// TimePatternsProducer initializes one sub-producer per pattern file
// and runs them through the merger.
type TimePatternsProducer struct {
	config   TimePatternsConfig
	patterns []*timePatternProducer
}

func init() {
	plugin.Register("input", "time_patterns", func(settings map[string]interface{}, params interface{}) (interface{}, error) {
		r := core.NewConfigReader(settings)
		cfg := TimePatternsConfig{
			Patterns:       r.GetStringArray("patterns", nil),
			OrderedMerging: r.GetBool("ordered_merging", false),
		}
		prod, err := NewTimePatternsProducer(cfg)
		if err != nil {
			return nil, core.Wrap(core.KindConfiguration, err, core.Context{"plugin": "time_patterns"})
		}
		return prod, nil
	})
}

// NewTimePatternsProducer loads every configured pattern file.
func NewTimePatternsProducer(cfg TimePatternsConfig) (*TimePatternsProducer, error) {
	patterns := make([]*timePatternProducer, 0, len(cfg.Patterns))
	for _, path := range cfg.Patterns {
		patternCfg, err := loadTimePatternConfig(path)
		if err != nil {
			return nil, fmt.Errorf("loading time pattern %q: %w", path, err)
		}
		patterns = append(patterns, newTimePatternProducer(patternCfg))
	}
	return &TimePatternsProducer{config: cfg, patterns: patterns}, nil
}

// Count returns the number of loaded time patterns.
func (p *TimePatternsProducer) Count() int {
	return len(p.patterns)
}

// Generate implements Producer by merging every pattern sub-producer
// through the merger (spec.md §4.2), or bypassing it entirely when
// only one pattern is configured.
func (p *TimePatternsProducer) Generate(ctx context.Context, size int, skipPast bool) (<-chan []core.Timestamp, <-chan error) {
	if len(p.patterns) == 1 {
		return p.patterns[0].Generate(ctx, size, skipPast)
	}

	producers := make([]Producer, len(p.patterns))
	for i, pat := range p.patterns {
		producers[i] = pat
	}

	merger := NewMerger(producers)
	identified, mergeErr := merger.Generate(ctx, size, skipPast)

	out := make(chan []core.Timestamp)
	go func() {
		defer close(out)
		for batch := range identified {
			plain := make([]core.Timestamp, len(batch))
			for i, it := range batch {
				plain[i] = it.Timestamp
			}
			select {
			case out <- plain:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, mergeErr
}
