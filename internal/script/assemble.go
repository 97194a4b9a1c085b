package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fabworks/pdflow/internal/errors"
	"github.com/fabworks/pdflow/internal/stage"
	"github.com/fabworks/pdflow/internal/util"
)

// Input carries everything Assemble needs for one stage script.
type Input struct {
	Spec *stage.Spec

	// TemplateDir holds the tech's template scripts.
	TemplateDir string

	// Bindings is the resolved variable set, already ordered.
	Bindings Bindings

	// RestorePath is the upstream checkpoint to restore before the
	// stage body, empty when the stage starts from scratch.
	RestorePath string
}

// Assemble produces the final batch script text: a header of variable
// assignments, an optional checkpoint restore, the stage's template bodies
// with every variable reference substituted, and the completion footer.
// The result is deterministic for identical inputs.
func Assemble(in Input) (string, error) {
	var b strings.Builder

	b.WriteString("# " + in.Spec.Name + " stage script (generated)\n")
	for _, bind := range in.Bindings {
		fmt.Fprintf(&b, "set env(%s) \"%s\"\n", bind.Name, bind.Value)
	}
	b.WriteString("\n")

	if in.RestorePath != "" {
		top, _ := in.Bindings.Get("TOP_NAME")
		b.WriteString(restoreLine(in.RestorePath, top))
		b.WriteString("\n")
	}

	for _, tmpl := range in.Spec.Templates {
		path := filepath.Join(in.TemplateDir, tmpl)
		data, err := os.ReadFile(path)
		if err != nil {
			return "", errors.ErrTemplateMissing(path)
		}
		body := Substitute(string(data), in.Bindings)
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "exec touch %s\n", in.Spec.Marker)
	b.WriteString("exit\n")

	text := b.String()
	if err := CheckResolved(in.Spec.Name, text); err != nil {
		return "", err
	}
	return text, nil
}

// WriteScript assembles the script and writes it atomically.
func WriteScript(in Input, path string) (string, error) {
	text, err := Assemble(in)
	if err != nil {
		return "", err
	}
	if err := util.AtomicWriteFileString(path, text, 0o644); err != nil {
		return "", err
	}
	return text, nil
}

// restoreLine picks the tool command for the checkpoint format: saved
// databases (.enc.dat directories) are restored, plain .enc scripts are
// sourced.
func restoreLine(path, top string) string {
	if strings.HasSuffix(path, ".enc.dat") {
		if top != "" {
			return fmt.Sprintf("restoreDesign \"%s\" %s\n", path, top)
		}
		return fmt.Sprintf("restoreDesign \"%s\"\n", path)
	}
	return fmt.Sprintf("source \"%s\"\n", path)
}
