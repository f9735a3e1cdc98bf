// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/randomizedcoder/go-processjob/internal/cmdline"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options describes the job being checked.
type Options struct {
	WorkingDir string
	PropsDir   string // "" = os.TempDir()
	Commands   []string
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

func (r *Result) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// RunAll executes all preflight checks.
func RunAll(opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 4+len(opts.Commands)),
		Passed: true,
	}

	result.add(checkWorkingDir(opts.WorkingDir))
	result.add(checkPropsDir(opts.PropsDir))
	result.add(checkFileDescriptors(len(opts.Commands)))
	result.add(checkProcessLimit())

	for i, command := range opts.Commands {
		result.add(checkExecutable(i, command, opts.WorkingDir))
	}

	return result
}

// checkWorkingDir verifies the directory the children start in.
func checkWorkingDir(dir string) Check {
	if dir == "" {
		return Check{
			Name:    "working_dir",
			Passed:  true,
			Warning: true,
			Message: "not set, children inherit the current directory",
		}
	}

	info, err := os.Stat(dir)
	if err != nil {
		return Check{Name: "working_dir", Passed: false, Message: err.Error()}
	}
	if !info.IsDir() {
		return Check{Name: "working_dir", Passed: false, Message: dir + " is not a directory"}
	}
	return Check{Name: "working_dir", Passed: true, Message: dir}
}

// checkPropsDir verifies property files can be created.
func checkPropsDir(dir string) Check {
	if dir == "" {
		dir = os.TempDir()
	}

	f, err := os.CreateTemp(dir, "preflight_*_tmp")
	if err != nil {
		return Check{
			Name:    "props_dir",
			Passed:  false,
			Message: fmt.Sprintf("cannot create files in %s: %v", dir, err),
		}
	}
	f.Close()
	os.Remove(f.Name())

	return Check{Name: "props_dir", Passed: true, Message: dir + " is writable"}
}

// checkExecutable verifies that the program a command names can be found.
// An empty command is only a warning: the runner reports it as a
// configuration error when its turn comes.
func checkExecutable(index int, command, workingDir string) Check {
	name := fmt.Sprintf("command_%d", index)

	args := cmdline.Split(command)
	if len(args) == 0 {
		return Check{
			Name:    name,
			Passed:  true,
			Warning: true,
			Message: "empty command, will fail when reached",
		}
	}

	program := args[0]
	if strings.ContainsRune(program, filepath.Separator) && !filepath.IsAbs(program) && workingDir != "" {
		program = filepath.Join(workingDir, program)
	}

	path, err := exec.LookPath(program)
	if err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("%s: %v", args[0], err),
		}
	}

	return Check{
		Name:    name,
		Passed:  true,
		Message: fmt.Sprintf("%s found at %s", args[0], path),
	}
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(commands int) Check {
	actual, err := openFileLimit()
	if err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	// Each child holds stdout/stderr pipes plus the two property files;
	// the rest is the runner's own overhead (metrics server, logging).
	required := commands*4 + 64

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d)", actual, required),
	}
}

// checkProcessLimit verifies a child process can be forked.
func checkProcessLimit() Check {
	actual, err := processLimit()
	if err != nil || actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	const required = 16
	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch {
	case name == "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	case name == "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	case name == "working_dir":
		return "create the directory or fix working_dir in the job file"
	case name == "props_dir":
		return "pass a writable directory with -props-dir"
	case strings.HasPrefix(name, "command_"):
		return "install the program or use an absolute path in the command"
	default:
		return "see documentation"
	}
}
