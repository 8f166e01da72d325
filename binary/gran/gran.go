// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// The gran command is a standalone CLI for statically analysing grsecurity
// RBAC policies for information-flow vulnerabilities.
package main

import (
	"flag"
	"os"

	"github.com/secgroup/gran/binary/cli"
	"github.com/secgroup/gran/binary/granrunner"
	"github.com/secgroup/gran/log"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	flags, err := parseFlags(args[1:])
	if err != nil {
		log.Errorf("Error parsing CLI args: %v", err)
		return 1
	}
	return granrunner.RunAnalysis(flags)
}

func parseFlags(args []string) (*cli.Flags, error) {
	fs := flag.NewFlagSet("gran", flag.ExitOnError)
	var admin, bestcase, debug, printVersion bool
	fs.BoolVar(&admin, "a", false, "Do not blacklist administrative (A-flagged) roles")
	fs.BoolVar(&admin, "admin", false, "Alias for -a")
	fs.BoolVar(&bestcase, "b", false, "Assume no set-UID/GID binaries: exec does not change UID/GID")
	fs.BoolVar(&bestcase, "bestcase", false, "Alias for -b")
	var entrypoints, targets, learnconfig, processed string
	fs.StringVar(&entrypoints, "e", "", "Path of the entry-points file")
	fs.StringVar(&entrypoints, "entrypoints", "", "Alias for -e")
	fs.StringVar(&targets, "t", "", "Path of the targets file")
	fs.StringVar(&targets, "targets", "", "Alias for -t")
	fs.StringVar(&learnconfig, "l", "", "Extract targets from this learn-config file")
	fs.StringVar(&learnconfig, "learnconfig", "", "Alias for -l")
	fs.StringVar(&processed, "P", "", "Dump the preprocessed policy to this path")
	fs.StringVar(&processed, "processedpolicy", "", "Alias for -P")
	fs.BoolVar(&debug, "d", false, "Enable this to print debug logs")
	fs.BoolVar(&debug, "debug", false, "Alias for -d")
	fs.BoolVar(&printVersion, "v", false, "Print the version and exit")
	fs.BoolVar(&printVersion, "version", false, "Alias for -v")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	policyPath := ""
	if fs.NArg() > 0 {
		policyPath = fs.Arg(0)
	}

	flags := &cli.Flags{
		PolicyPath:          policyPath,
		AllowAdmin:          admin,
		BestCase:            bestcase,
		EntryPointsPath:     entrypoints,
		TargetsPath:         targets,
		LearnConfigPath:     learnconfig,
		ProcessedPolicyPath: processed,
		Verbose:             debug,
		PrintVersion:        printVersion,
	}
	if err := cli.ValidateFlags(flags); err != nil {
		return nil, err
	}
	return flags, nil
}
