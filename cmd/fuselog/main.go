// Copyright 2024 Google LLC
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

// Command fuselog mounts a backing directory through the mutation-logging
// overlay, recording every successful write syscall as a replayable
// state-diff served over a Unix domain socket.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/fuselogfs/fuselog/cmd"
)

func main() {
	defer reportCrash()
	cmd.Execute()
}

// reportCrash writes a recovered panic's stack trace to a crash log before
// re-raising it, so an operator debugging a dead mount daemon doesn't have
// to rely on whatever captured stderr.
func reportCrash() {
	r := recover()
	if r == nil {
		return
	}

	crashLog := filepath.Join(os.TempDir(), "fuselog-crash.log")
	w := cmd.NewCrashWriter(crashLog)
	fmt.Fprintf(w, "panic: %v\n%s\n", r, debug.Stack())

	panic(r)
}
