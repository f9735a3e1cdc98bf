package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/hashicorp/go-envparse"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// legacyCommandKey is the first of the numbered command attributes
// (command, command_1, command_2, ...).
const legacyCommandKey = "command"

var legacyCommandPattern = regexp.MustCompile(`^command(_[0-9]+)?$`)

// Job is a loaded job definition.
type Job struct {
	Name       string
	Commands   []string
	WorkingDir string
	Env        map[string]string
	Properties map[string]string

	// Source is the file the job was loaded from.
	Source string
}

type jobFile struct {
	Jobs []*jobBlock `hcl:"job,block"`
}

type jobBlock struct {
	Name       string            `hcl:"name,label"`
	Commands   []string          `hcl:"commands,optional"`
	WorkingDir string            `hcl:"working_dir,optional"`
	Env        map[string]string `hcl:"env,optional"`
	EnvFile    string            `hcl:"env_file,optional"`
	Properties hcl.Expression    `hcl:"properties,optional"`

	// Remain holds the legacy numbered command attributes.
	Remain hcl.Body `hcl:",remain"`
}

// LoadJob reads and decodes the job file at path.
func LoadJob(path string) (*Job, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job file: %w", err)
	}
	return ParseJob(src, path)
}

// ParseJob decodes a job file. Relative paths in it resolve against the
// directory of filename.
func ParseJob(src []byte, filename string) (*Job, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}

	var jf jobFile
	if diags := gohcl.DecodeBody(file.Body, nil, &jf); diags.HasErrors() {
		return nil, diags
	}

	switch len(jf.Jobs) {
	case 0:
		return nil, fmt.Errorf("%s: no job block found", filename)
	case 1:
	default:
		return nil, fmt.Errorf("%s: expected exactly one job block, found %d", filename, len(jf.Jobs))
	}
	block := jf.Jobs[0]

	baseDir, err := filepath.Abs(filepath.Dir(filename))
	if err != nil {
		return nil, fmt.Errorf("resolving job file directory: %w", err)
	}

	job := &Job{
		Name:       block.Name,
		Commands:   block.Commands,
		WorkingDir: resolvePath(baseDir, block.WorkingDir),
		Env:        make(map[string]string),
		Source:     filename,
	}
	if block.WorkingDir == "" {
		job.WorkingDir = baseDir
	}

	legacy, diags := legacyCommands(block.Remain)
	if diags.HasErrors() {
		return nil, diags
	}
	// The list form wins when both are present.
	if len(job.Commands) == 0 {
		job.Commands = legacy
	}

	if block.EnvFile != "" {
		fileEnv, err := readEnvFile(resolvePath(baseDir, block.EnvFile))
		if err != nil {
			return nil, err
		}
		for k, v := range fileEnv {
			job.Env[k] = v
		}
	}
	for k, v := range block.Env {
		job.Env[k] = v
	}

	if job.Properties, err = decodeProperties(block.Properties); err != nil {
		return nil, err
	}

	return job, nil
}

// legacyCommands reads command, command_1, command_2, ... in order and stops
// at the first missing slot. Attributes after a gap are ignored.
func legacyCommands(body hcl.Body) ([]string, hcl.Diagnostics) {
	if body == nil {
		return nil, nil
	}
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}

	// Anything other than the numbered commands is a typo worth reporting.
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !legacyCommandPattern.MatchString(name) {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Unsupported argument",
				Detail:   fmt.Sprintf("An argument named %q is not expected here.", name),
				Subject:  attrs[name].NameRange.Ptr(),
			})
		}
	}
	if diags.HasErrors() {
		return nil, diags
	}

	var commands []string
	for i := 0; ; i++ {
		key := legacyCommandKey
		if i > 0 {
			key = legacyCommandKey + "_" + strconv.Itoa(i)
		}
		attr, ok := attrs[key]
		if !ok {
			return commands, nil
		}
		var command string
		if diags := gohcl.DecodeExpression(attr.Expr, nil, &command); diags.HasErrors() {
			return nil, diags
		}
		commands = append(commands, command)
	}
}

// decodeProperties renders the properties object as strings. Numbers and
// bools are accepted so job files can write retries = 3.
func decodeProperties(expr hcl.Expression) (map[string]string, error) {
	props := make(map[string]string)
	if expr == nil {
		return props, nil
	}

	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return props, nil
	}

	ty := val.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("properties: must be an object, got %s", ty.FriendlyName())
	}
	if !val.IsWhollyKnown() {
		return nil, errors.New("properties: values must be known constants")
	}

	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		s, err := propertyString(v)
		if err != nil {
			return nil, fmt.Errorf("properties.%s: %w", k.AsString(), err)
		}
		props[k.AsString()] = s
	}
	return props, nil
}

func propertyString(v cty.Value) (string, error) {
	if v.IsNull() {
		return "", nil
	}
	switch v.Type() {
	case cty.String:
		return v.AsString(), nil
	case cty.Number:
		return v.AsBigFloat().Text('f', -1), nil
	case cty.Bool:
		return strconv.FormatBool(v.True()), nil
	}
	return "", fmt.Errorf("unsupported value type %s", v.Type().FriendlyName())
}

// readEnvFile parses a KEY=value file.
func readEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening env_file: %w", err)
	}
	defer f.Close()

	env, err := envparse.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing env_file %s: %w", path, err)
	}
	return env, nil
}

func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
