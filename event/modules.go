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
	"math/rand"
	"time"
)

// RandomNumberModule is the `module.random.number` namespace.
type RandomNumberModule struct{ rng *rand.Rand }

func (m *RandomNumberModule) Integer(a, b int) int {
	if b <= a {
		return a
	}
	return a + m.rng.Intn(b-a+1)
}

func (m *RandomNumberModule) Floating(a, b float64) float64 {
	return a + m.rng.Float64()*(b-a)
}

func (m *RandomNumberModule) Gauss(mu, sigma float64) float64 {
	return mu + m.rng.NormFloat64()*sigma
}

const (
	asciiLower = "abcdefghijklmnopqrstuvwxyz"
	asciiUpper = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	asciiHex   = "0123456789abcdefABCDEF"
	asciiPunct = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

// RandomStringModule is the `module.random.string` namespace.
type RandomStringModule struct{ rng *rand.Rand }

func (m *RandomStringModule) fromAlphabet(alphabet string, size int) string {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = alphabet[m.rng.Intn(len(alphabet))]
	}
	return string(buf)
}

func (m *RandomStringModule) LettersLowercase(size int) string { return m.fromAlphabet(asciiLower, size) }
func (m *RandomStringModule) LettersUppercase(size int) string { return m.fromAlphabet(asciiUpper, size) }
func (m *RandomStringModule) Letters(size int) string {
	return m.fromAlphabet(asciiLower+asciiUpper, size)
}
func (m *RandomStringModule) Punctuation(size int) string { return m.fromAlphabet(asciiPunct, size) }
func (m *RandomStringModule) Hex(size int) string         { return m.fromAlphabet(asciiHex, size) }

// RandomModule is the `module.random` namespace (numbers and strings).
type RandomModule struct {
	Number *RandomNumberModule
	String *RandomStringModule
}

// NewRandomModule builds the random namespace.
func NewRandomModule() *RandomModule {
	rng := rand.New(rand.NewSource(rand.Int63()))
	return &RandomModule{
		Number: &RandomNumberModule{rng: rng},
		String: &RandomStringModule{rng: rng},
	}
}

// ConvertModule is the `module.convert` namespace: unit/type coercion
// helpers for templates.
type ConvertModule struct{}

// ToDatetime parses an RFC3339/ISO8601 timestamp string.
func (ConvertModule) ToDatetime(timestamp string) (time.Time, error) {
	return time.Parse(time.RFC3339, timestamp)
}

// ToUnixMicro converts a parsed time to microseconds since epoch.
func (ConvertModule) ToUnixMicro(t time.Time) int64 {
	return t.UnixMicro()
}

// fakeDataModule is a small stand-in for the mimesis namespace (names,
// emails, sentences, ...): a from-scratch Go module cannot bind the
// Python mimesis package, so a compact generator that picks at random
// from fixed word lists plays the same templating role. Each instance
// is randomly seeded, so its output differs between runs.
type fakeDataModule struct {
	rng *rand.Rand
}

var firstNames = []string{"Alex", "Jordan", "Casey", "Morgan", "Taylor", "Riley", "Avery", "Quinn"}
var lastNames = []string{"Smith", "Johnson", "Brown", "Garcia", "Miller", "Davis", "Martinez", "Lee"}
var words = []string{"system", "event", "network", "process", "packet", "session", "request", "cluster", "node", "stream"}
var domains = []string{"example.com", "mail.test", "corp.internal", "service.local"}

// NewFakeDataModule builds the mimesis-equivalent namespace.
func NewFakeDataModule() *fakeDataModule {
	return &fakeDataModule{rng: rand.New(rand.NewSource(rand.Int63()))}
}

func (m *fakeDataModule) Name() string {
	return firstNames[m.rng.Intn(len(firstNames))]
}

func (m *fakeDataModule) FullName() string {
	return fmt.Sprintf("%s %s", firstNames[m.rng.Intn(len(firstNames))], lastNames[m.rng.Intn(len(lastNames))])
}

func (m *fakeDataModule) Email() string {
	return fmt.Sprintf("%s.%s@%s",
		firstNames[m.rng.Intn(len(firstNames))],
		lastNames[m.rng.Intn(len(lastNames))],
		domains[m.rng.Intn(len(domains))])
}

func (m *fakeDataModule) Sentence() string {
	n := 5 + m.rng.Intn(6)
	out := make([]string, n)
	for i := range out {
		out[i] = words[m.rng.Intn(len(words))]
	}
	out[0] = capitalize(out[0])
	return joinWords(out) + "."
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-('a'-'A')) + s[1:]
}

func joinWords(words []string) string {
	out := words[0]
	for _, w := range words[1:] {
		out += " " + w
	}
	return out
}

// ModuleProvider is the `module` global injected into templates
// (spec.md §4.5): a bundled set of helper namespaces a template
// reaches through dotted field access (`module.random.number.integer`).
// The Python original resolves namespaces by name on first access and
// caches the result; a Go template engine has no equivalent dynamic
// `__getitem__` hook, so the namespaces are built eagerly instead as
// exported fields — the caching behavior becomes moot since
// construction is cheap and happens once regardless.
type ModuleProvider struct {
	Random  *RandomModule
	Convert ConvertModule
	Mimesis *fakeDataModule
}

// NewModuleProvider builds the bundled namespace set: random, convert,
// and the fake-data equivalent of mimesis.
func NewModuleProvider() *ModuleProvider {
	return &ModuleProvider{
		Random:  NewRandomModule(),
		Convert: ConvertModule{},
		Mimesis: NewFakeDataModule(),
	}
}
