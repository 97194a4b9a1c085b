// Package script builds the per-run tool scripts: it binds stage variables,
// substitutes them into the tech's template files, and assembles the final
// batch script the external tool executes.
package script

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/fabworks/pdflow/internal/errors"
	"github.com/fabworks/pdflow/internal/layout"
	"github.com/fabworks/pdflow/internal/stage"
)

// Binding is one resolved variable. Bindings are kept ordered so the same
// request always produces a byte-identical script.
type Binding struct {
	Name  string
	Value string
}

// Bindings is an ordered variable set.
type Bindings []Binding

// Get returns the value bound to name.
func (b Bindings) Get(name string) (string, bool) {
	for _, bind := range b {
		if bind.Name == name {
			return bind.Value, true
		}
	}
	return "", false
}

// Build resolves the full variable set for one stage run: the built-in
// identity variables first, then the stage's declared variables with request
// overrides applied. A required variable with no default and no override
// fails the build.
func Build(spec *stage.Spec, req *stage.Request, paths layout.Paths, synVer string) (Bindings, error) {
	binds := Bindings{
		{Name: "TOP_NAME", Value: req.Top()},
		{Name: "BASE_DIR", Value: paths.TechDir(req.Design, req.Tech)},
		{Name: "NETLIST_DIR", Value: paths.SynthesisResults(req.Design, req.Tech, synVer)},
		{Name: "FILE_FORMAT", Value: "verilog"},
		{Name: "CLOCK_NAME", Value: "clk"},
	}

	for _, v := range spec.Vars {
		value := v.Default
		if raw, ok := req.Params[v.Name]; ok {
			value = FormatValue(raw)
		}
		if value == "" && v.Required {
			return nil, errors.ErrVariableUnresolved(spec.Name, v.Name)
		}
		binds = append(binds, Binding{Name: v.Name, Value: value})
	}
	return binds, nil
}

// FormatValue renders a request parameter as its tcl literal. Booleans become
// lowercase true/false, floats keep their shortest exact form.
func FormatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Substitute replaces every reference to the bound variables in text. All
// four tcl spellings are recognized: $name, ${name}, $env(name) and
// ${env(name)}. Unbound references are left untouched; plain $vars are
// often script-local and only env() references are checked afterwards by
// CheckResolved.
func Substitute(text string, binds Bindings) string {
	for _, b := range binds {
		text = refPattern(b.Name).ReplaceAllString(text, b.Value)
	}
	return text
}

func refPattern(name string) *regexp.Regexp {
	q := regexp.QuoteMeta(name)
	// Longer spellings first so ${env(x)} is not half-matched by $env(x).
	return regexp.MustCompile(
		`\$(?:\{env\(` + q + `\)\}|env\(` + q + `\)|\{` + q + `\}|` + q + `\b)`)
}

// envRefPattern matches the env() spellings, which are by convention the
// template's configuration inputs rather than script-local variables.
var envRefPattern = regexp.MustCompile(`\$\{?env\(([A-Za-z_][A-Za-z0-9_]*)\)\}?`)

// CheckResolved scans an assembled script for env() references that never
// received a binding.
func CheckResolved(stageName, text string) error {
	m := envRefPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return errors.ErrVariableUnresolved(stageName, m[1])
}
