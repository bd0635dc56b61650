package model

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
)

// CueErrorDetail is one configuration problem, located by its dotted key
// (download.format) and, for file input, by line and column.
type CueErrorDetail struct {
	Path    string
	Code    string
	Message string
	File    string
	Line    int
	Column  int
	Raw     string
}

// LogValue renders the detail as a group, so it can be passed to slog
// directly.
func (d CueErrorDetail) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("code", d.Code),
		slog.String("path", d.Path),
		slog.String("message", d.Message),
	}
	if d.File != "" {
		attrs = append(attrs,
			slog.String("file", d.File),
			slog.Int("line", d.Line),
			slog.Int("column", d.Column),
		)
	}
	return slog.GroupValue(attrs...)
}

// first match wins
var issueRules = []struct {
	code   string
	rx     *regexp.Regexp
	format string
}{
	{"unknown_field", regexp.MustCompile(`(?i)not allowed|unknown field`), "%s is not a known setting"},
	{"missing_required", regexp.MustCompile(`(?i)incomplete value`), "%s must be set"},
	{"invalid_enum", regexp.MustCompile(`(?i)must be one of|expected one of|empty disjunction`), "%s has an unsupported value"},
	{"conflicting_values", regexp.MustCompile(`(?i)conflicting values|cannot unify|incompatible`), "%s has a conflicting value"},
	{"out_of_range", regexp.MustCompile(`(?i)invalid value .* \(out of bound`), "%s is out of range"},
	{"type_mismatch", regexp.MustCompile(`(?i)expected .* got .*`), "%s has the wrong type"},
}

// CueErrDetails explains an error returned by the config loaders, one
// detail per offending location.
func CueErrDetails(err error) []CueErrorDetail {
	if err == nil {
		return nil
	}
	var out []CueErrorDetail
	seen := make(map[string]bool)
	for _, e := range cueerrors.Errors(err) {
		d := detail(e)
		key := d.Path
		if d.File != "" {
			key = fmt.Sprintf("%s:%d:%d", d.File, d.Line, d.Column)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}

func detail(e cueerrors.Error) CueErrorDetail {
	path := e.Path()
	if len(path) > 0 && strings.HasPrefix(path[0], "#") {
		path = path[1:]
	}
	format, args := e.Msg()
	raw := fmt.Sprintf(format, args...)
	d := CueErrorDetail{
		Path:    strings.Join(path, "."),
		Code:    "validation_error",
		Message: raw,
		Raw:     e.Error(),
	}

	name := d.Path
	if len(path) > 0 {
		name = path[len(path)-1]
	}
	for _, r := range issueRules {
		if r.rx.MatchString(raw) {
			d.Code = r.code
			d.Message = fmt.Sprintf(r.format, name)
			break
		}
	}
	if d.Code == "invalid_enum" || d.Code == "conflicting_values" {
		d.Message += allowedValues(d.Path)
	}

	for _, p := range cueerrors.Positions(e) {
		if p.Filename() != "" {
			d.File, d.Line, d.Column = p.Filename(), p.Line(), p.Column()
			break
		}
	}
	return d
}

// allowedValues describes a string enum of the schema such as
// download.format, and is empty for any other field.
func allowedValues(path string) string {
	if path == "" {
		return ""
	}
	field := schema.LookupPath(cue.ParsePath(path))
	op, args := field.Expr()
	if !field.Exists() || op != cue.OrOp {
		return ""
	}
	var values []string
	for _, a := range args {
		if s, err := a.String(); err == nil && !slices.Contains(values, s) {
			values = append(values, s)
		}
	}
	if len(values) < 2 {
		return ""
	}
	hint := " (one of " + strings.Join(values, ", ")
	if d, ok := field.Default(); ok {
		if s, err := d.String(); err == nil {
			hint += ", default " + s
		}
	}
	return hint + ")"
}
