// Package propfile manages the transient property files that pass values into
// and out of a job's commands.
//
// Before a job runs, its properties are written as a JSON object to an input
// file. Commands find the files through JOB_PROP_FILE and JOB_OUTPUT_PROP_FILE
// and may write a JSON object of output properties to the output file, which
// is read back once every command has succeeded. Both files are removed when
// the run ends, whatever the outcome.
package propfile

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Environment variable names exported to job commands.
const (
	EnvInputFile  = "JOB_PROP_FILE"
	EnvOutputFile = "JOB_OUTPUT_PROP_FILE"
)

// ErrMalformed is returned when the output file is not a JSON object.
var ErrMalformed = errors.New("output properties are not a JSON object")

// ErrEmptyName is returned by Create for a property with an empty name.
var ErrEmptyName = errors.New("property name must not be empty")

// Set is the pair of property files belonging to one job run.
// A nil *Set is valid: it has no files, exports nothing and releases nothing.
type Set struct {
	Input  string
	Output string

	releaseOnce sync.Once
	releaseErr  error
}

// Create writes props to a new input file in dir and creates an empty output
// file next to it. An empty dir uses os.TempDir.
func Create(dir, jobName string, props map[string]string) (*Set, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	prefix := sanitize(jobName)

	doc, err := encode(props)
	if err != nil {
		return nil, fmt.Errorf("encode input properties: %w", err)
	}

	in, err := os.CreateTemp(dir, prefix+"_props_*_tmp")
	if err != nil {
		return nil, fmt.Errorf("create input properties file: %w", err)
	}
	s := &Set{Input: in.Name()}

	if _, err := in.WriteString(doc); err != nil {
		in.Close()
		s.Release()
		return nil, fmt.Errorf("write input properties: %w", err)
	}
	if err := in.Close(); err != nil {
		s.Release()
		return nil, fmt.Errorf("close input properties: %w", err)
	}

	out, err := os.CreateTemp(dir, prefix+"_output_*_tmp")
	if err != nil {
		s.Release()
		return nil, fmt.Errorf("create output properties file: %w", err)
	}
	s.Output = out.Name()
	if err := out.Close(); err != nil {
		s.Release()
		return nil, fmt.Errorf("close output properties: %w", err)
	}

	return s, nil
}

// Env returns the variables that point commands at the files.
func (s *Set) Env() map[string]string {
	if s == nil {
		return nil
	}
	return map[string]string{
		EnvInputFile:  s.Input,
		EnvOutputFile: s.Output,
	}
}

// LoadOutput reads the output properties. An empty or missing output file
// yields an empty map. String values are returned as-is; other scalars and
// nested values are returned as their JSON text.
func (s *Set) LoadOutput() (map[string]string, error) {
	props := make(map[string]string)
	if s == nil || s.Output == "" {
		return props, nil
	}

	data, err := os.ReadFile(s.Output)
	if errors.Is(err, os.ErrNotExist) {
		return props, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read output properties: %w", err)
	}
	return Decode(data)
}

// Decode parses a JSON object of properties.
func Decode(data []byte) (map[string]string, error) {
	props := make(map[string]string)
	if len(strings.TrimSpace(string(data))) == 0 {
		return props, nil
	}

	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: got %s", ErrMalformed, doc.Type)
	}

	doc.ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.String {
			props[key.String()] = value.String()
		} else {
			props[key.String()] = value.Raw
		}
		return true
	})
	return props, nil
}

// Release removes both files. Missing files are ignored; other failures are
// collected and returned. Only the first call does any work.
func (s *Set) Release() error {
	if s == nil {
		return nil
	}
	s.releaseOnce.Do(func() {
		var result *multierror.Error
		for _, path := range []string{s.Input, s.Output} {
			if path == "" {
				continue
			}
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				result = multierror.Append(result, err)
			}
		}
		s.releaseErr = result.ErrorOrNil()
	})
	return s.releaseErr
}

// encode renders props as a JSON object. sjson escapes keys containing path
// syntax, so arbitrary property names round-trip.
func encode(props map[string]string) (string, error) {
	doc := "{}"
	for k, v := range props {
		if k == "" {
			return "", ErrEmptyName
		}
		var err error
		doc, err = sjson.Set(doc, escapeKey(k), v)
		if err != nil {
			return "", err
		}
	}
	return doc, nil
}

// escapeKey escapes sjson path metacharacters so k is taken literally.
func escapeKey(k string) string {
	var b strings.Builder
	for _, c := range k {
		switch c {
		case '.', '*', '?', '|', '#', '@', '\\', ':', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// sanitize turns a job name into a file name prefix.
func sanitize(name string) string {
	if name == "" {
		return "job"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
