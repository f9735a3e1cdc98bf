// Package cmdline splits configured command strings into argument vectors.
//
// Only literal tokenization is supported. Spaces separate arguments, single
// and double quotes group them, and a quote character inside the other kind
// of quote is kept verbatim. There is no variable expansion, globbing, escape
// handling or redirection.
package cmdline

import "strings"

// Split breaks command into arguments.
//
// Quote characters that open or close a quoted region are stripped. A quoted
// region that is empty contributes nothing, so quoting cannot produce an empty
// argument. Unterminated quotes are tolerated: whatever was collected is
// returned as the last argument.
func Split(command string) []string {
	var (
		args     []string
		buf      strings.Builder
		inSingle bool
		inDouble bool
	)

	// Byte-wise scan: the separators are ASCII, so multi-byte UTF-8
	// sequences pass through untouched, as do invalid ones.
	for i := 0; i < len(command); i++ {
		c := command[i]
		switch c {
		case ' ':
			if inSingle || inDouble {
				buf.WriteByte(c)
				continue
			}
			if buf.Len() > 0 {
				args = append(args, buf.String())
				buf.Reset()
			}
		case '\'':
			if inDouble {
				buf.WriteByte(c)
				continue
			}
			inSingle = !inSingle
		case '"':
			if inSingle {
				buf.WriteByte(c)
				continue
			}
			inDouble = !inDouble
		default:
			buf.WriteByte(c)
		}
	}

	if buf.Len() > 0 {
		args = append(args, buf.String())
	}

	return args
}

// Join renders args as a single command string for display.
//
// Arguments containing a space or a quote are wrapped in whichever quote
// character they do not contain, so Split(Join(args)) returns args unless an
// argument holds both quote characters.
func Join(args []string) string {
	var b strings.Builder
	for i, arg := range args {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(quote(arg))
	}
	return b.String()
}

func quote(arg string) string {
	if !strings.ContainsAny(arg, ` '"`) {
		return arg
	}
	if strings.Contains(arg, "'") {
		return `"` + arg + `"`
	}
	return "'" + arg + "'"
}
