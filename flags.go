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

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

var (
	flagConfigFile  = flag.String("config", "", "Path to the generator's YAML configuration file.")
	flagLoglevel    = flag.String("loglevel", "info", "Log level (panic, fatal, error, warn, info, debug, trace).")
	flagMetricsPort = flag.Int("metrics-port", 0, "Port to serve the §6 metrics snapshot on. 0 disables the server.")
	flagParams      = flagMap{}
)

func init() {
	flag.Var(&flagParams, "param", "A params.NAME=value substitution, may be repeated.")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: eventum -config <file> [OPTIONS]")
		flag.PrintDefaults()
	}
}

// flagMap collects repeated -param NAME=value flags into a map, the
// same accumulate-by-repetition idiom gollum's mflag-based flags use
// for list-valued options.
type flagMap map[string]string

func (m flagMap) String() string {
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (m flagMap) Set(value string) error {
	name, val, ok := strings.Cut(value, "=")
	if !ok {
		return fmt.Errorf("-param expects NAME=value, got %q", value)
	}
	m[name] = val
	return nil
}
