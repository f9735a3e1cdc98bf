package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shoenig/test/must"
)

func writeJobFile(t *testing.T, dir, src string) string {
	t.Helper()
	path := filepath.Join(dir, "job.hcl")
	must.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestLoadJob_Full(t *testing.T) {
	dir := t.TempDir()
	must.NoError(t, os.WriteFile(filepath.Join(dir, "etl.env"), []byte("FOO=from-file\nBAR=file-only\n"), 0o644))

	path := writeJobFile(t, dir, `
job "nightly-etl" {
  commands    = ["echo 1", "echo 'two words'"]
  working_dir = "work"
  env_file    = "etl.env"
  env         = { FOO = "bar" }
  properties  = { region = "eu", retries = 3, dry_run = false }
}
`)

	job, err := LoadJob(path)
	must.NoError(t, err)

	must.Eq(t, "nightly-etl", job.Name)
	must.Eq(t, []string{"echo 1", "echo 'two words'"}, job.Commands)
	must.Eq(t, filepath.Join(dir, "work"), job.WorkingDir)
	must.MapEq(t, map[string]string{"FOO": "bar", "BAR": "file-only"}, job.Env)
	must.MapEq(t, map[string]string{"region": "eu", "retries": "3", "dry_run": "false"}, job.Properties)
	must.Eq(t, path, job.Source)
}

func TestLoadJob_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := writeJobFile(t, dir, `
job "minimal" {
  commands = ["true"]
}
`)

	job, err := LoadJob(path)
	must.NoError(t, err)

	abs, err := filepath.Abs(dir)
	must.NoError(t, err)
	must.Eq(t, abs, job.WorkingDir)
	must.MapEmpty(t, job.Env)
	must.MapEmpty(t, job.Properties)
}

func TestLoadJob_AbsoluteWorkingDir(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()
	path := writeJobFile(t, dir, `
job "abs" {
  commands    = ["true"]
  working_dir = "`+filepath.ToSlash(other)+`"
}
`)

	job, err := LoadJob(path)
	must.NoError(t, err)
	must.Eq(t, filepath.ToSlash(other), filepath.ToSlash(job.WorkingDir))
}

func TestParseJob_LegacyCommands(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "single command",
			src:  `job "j" { command = "echo only" }`,
			want: []string{"echo only"},
		},
		{
			name: "contiguous numbered commands",
			src: `job "j" {
  command   = "echo 0"
  command_1 = "echo 1"
  command_2 = "echo 2"
}`,
			want: []string{"echo 0", "echo 1", "echo 2"},
		},
		{
			name: "stops at first gap",
			src: `job "j" {
  command   = "echo 0"
  command_1 = "echo 1"
  command_3 = "echo 3"
}`,
			want: []string{"echo 0", "echo 1"},
		},
		{
			name: "numbered without base is ignored",
			src: `job "j" {
  command_1 = "echo 1"
}`,
			want: nil,
		},
		{
			name: "commands list wins",
			src: `job "j" {
  commands = ["echo list"]
  command  = "echo legacy"
}`,
			want: []string{"echo list"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			job, err := ParseJob([]byte(tc.src), filepath.Join(t.TempDir(), "job.hcl"))
			must.NoError(t, err)
			must.Eq(t, tc.want, job.Commands)
		})
	}
}

func TestParseJob_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"syntax error", `job "j" { commands = [ }`, ""},
		{"no job block", `# empty`, "no job block"},
		{"two job blocks", `job "a" { command = "x" }
job "b" { command = "y" }`, "exactly one job block"},
		{"unknown attribute", `job "j" { comand = "x" }`, "Unsupported argument"},
		{"properties not an object", `job "j" {
  command    = "x"
  properties = ["a"]
}`, "must be an object"},
		{"nested property value", `job "j" {
  command    = "x"
  properties = { a = { b = 1 } }
}`, "properties.a"},
		{"missing env file", `job "j" {
  command  = "x"
  env_file = "nope.env"
}`, "env_file"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseJob([]byte(tc.src), filepath.Join(t.TempDir(), "job.hcl"))
			must.Error(t, err)
			if tc.wantErr != "" {
				must.ErrorContains(t, err, tc.wantErr)
			}
		})
	}
}

func TestLoadJob_MissingFile(t *testing.T) {
	_, err := LoadJob(filepath.Join(t.TempDir(), "missing.hcl"))
	must.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadJob_EnvFileQuoting(t *testing.T) {
	dir := t.TempDir()
	must.NoError(t, os.WriteFile(filepath.Join(dir, "job.env"),
		[]byte("# comment\nexport GREETING=\"hello world\"\nPLAIN=value\n"), 0o644))
	path := writeJobFile(t, dir, `
job "env" {
  command  = "printenv GREETING"
  env_file = "job.env"
}
`)

	job, err := LoadJob(path)
	must.NoError(t, err)
	must.MapEq(t, map[string]string{"GREETING": "hello world", "PLAIN": "value"}, job.Env)
}
