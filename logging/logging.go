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

// Package logging wires logrus the way gollum's logger package does:
// one shared *logrus.Logger, formatted through a prefixed formatter for
// human consumption, with one *logrus.Entry carved out per plugin
// instance carrying its id/kind/generator fields.
package logging

import (
	"os"

	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	"github.com/sirupsen/logrus"
)

// Entry is an alias for logrus.Entry so callers need not import logrus
// directly just to type-annotate a scoped logger.
type Entry = logrus.Entry

var root = newRoot()

func newRoot() *logrus.Logger {
	log := logrus.New()
	log.Out = os.Stderr
	log.Formatter = &prefixed.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	log.Level = logrus.InfoLevel
	return log
}

// SetLevel adjusts the root logger's verbosity.
func SetLevel(level logrus.Level) {
	root.Level = level
}

// ForGenerator returns the base entry for one generator run.
func ForGenerator(id string) *logrus.Entry {
	return root.WithField("generator", id)
}

// ForPlugin returns a log entry scoped to one plugin instance, mirroring
// gollum's per-plugin tlog.LogScope.
func ForPlugin(base *logrus.Entry, category, kind, id string) *logrus.Entry {
	return base.WithFields(logrus.Fields{
		"category": category,
		"kind":     kind,
		"id":       id,
	})
}

// WithContext attaches a core.Context-shaped map (§7: context is logged
// verbatim, never folded into the message) as structured fields.
func WithContext(entry *logrus.Entry, context map[string]interface{}) *logrus.Entry {
	return entry.WithFields(logrus.Fields(context))
}
