// Package script rewrites job and playbook scripts: it injects per-application
// environment setup and helper functions into job scripts, and reads or
// writes the one-line description comment carried by saved scripts.
package script

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pandeptwidyaop/hpc-console/internal/models"
)

// AppConfig is what injection needs to know about one application.
type AppConfig struct {
	Name        string
	Kind        models.AppKind
	Environment string // conda environment name
	Executable  string // binary path
	CondaBase   string // conda installation prefix
}

// NewAppConfig builds the injection config for a manifest.
func NewAppConfig(m models.ApplicationManifest, condaBase string) AppConfig {
	kind := m.Kind
	if kind == "" {
		kind = models.KindUnknown
	}
	return AppConfig{
		Name:        m.Name,
		Kind:        kind,
		Environment: m.Environment,
		Executable:  m.Executable,
		CondaBase:   condaBase,
	}
}

// NormalizeName turns a display name into the token used in variable and
// function names: uppercased, spaces and dashes become underscores and
// parentheses are dropped.
func NormalizeName(name string) string {
	r := strings.NewReplacer(" ", "_", "-", "_", "(", "", ")", "")
	return r.Replace(strings.ToUpper(name))
}

// Signature returns the marker text identifying cfg inside a script.
func (cfg AppConfig) Signature() string {
	return signature(cfg.Name, string(cfg.Kind))
}

// setupLines returns the lines contributed to the setup block: the signature
// followed by the kind-specific exports.
func (cfg AppConfig) setupLines() []string {
	norm := NormalizeName(cfg.Name)
	lines := []string{
		signatureNamePrefix + cfg.Name,
		signatureKindPrefix + string(cfg.Kind),
	}

	switch cfg.Kind {
	case models.KindConda:
		if cfg.Environment != "" {
			lines = append(lines,
				fmt.Sprintf("export APP_%s_SELECTED=1", norm),
				"export CONDA_BASE="+shellQuote(cfg.CondaBase),
				fmt.Sprintf("export CONDA_ENV_%s=%s", norm, shellQuote(cfg.Environment)),
			)
		}
	case models.KindBinary:
		if cfg.Executable != "" {
			lines = append(lines,
				fmt.Sprintf("export APP_%s_SELECTED=1", norm),
				fmt.Sprintf("export %s_BIN=%s", norm, shellQuote(cfg.Executable)),
				fmt.Sprintf("export %s_PATH=%s", norm, shellQuote(filepath.Dir(cfg.Executable))),
			)
		}
	}
	return lines
}

// shellQuote renders s as a bash double-quoted word. Inside double quotes
// bash only treats \, ", ` and $ specially, so those are backslash-escaped.
// Control characters cannot be written into a line-oriented block and are
// dropped.
func shellQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '\\' || r == '"' || r == '`' || r == '$':
			b.WriteByte('\\')
			b.WriteRune(r)
		case unicode.IsControl(r):
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// helperLines returns the lines contributed to the helpers block. Unknown
// kinds contribute nothing.
func (cfg AppConfig) helperLines() []string {
	norm := NormalizeName(cfg.Name)
	fn := "run_" + strings.ToLower(norm)

	switch cfg.Kind {
	case models.KindConda:
		return []string{
			"function " + fn + "() {",
			`  (source "$CONDA_BASE/etc/profile.d/conda.sh" && conda activate "$CONDA_ENV_` + norm + `" && "$@")`,
			"}",
			"",
		}
	case models.KindBinary:
		return []string{
			"function " + fn + "() {",
			`  "$` + norm + `_BIN" "$@"`,
			"}",
			"",
		}
	}
	return nil
}

// Inject adds the setup and helper sections for cfg to a job script.
//
// When the script already carries the application's signature it is
// returned unchanged. Otherwise the new lines are spliced in front of the
// end marker of each existing block, or a new block is inserted right after
// the interpreter and scheduler directive lines. Every other line is kept
// verbatim and in order.
func Inject(text string, cfg AppConfig) string {
	if strings.Contains(text, cfg.Signature()) {
		log.Printf("[Inject] %s already present, skipping", cfg.Name)
		return text
	}

	lines := strings.Split(text, "\n")
	header := headerLen(lines)

	setup := cfg.setupLines()
	helpers := cfg.helperLines()

	// setup first: splicing it shifts the helper block when that comes later
	var setupEnd int
	if b, ok := findBlock(lines, header, SetupStart, SetupEnd); ok {
		lines = insertLines(lines, b.end, setup)
		setupEnd = b.end + len(setup)
	} else {
		fragment := append([]string{"", SetupStart, setupComment}, setup...)
		fragment = append(fragment, SetupEnd)
		lines = insertLines(lines, header, fragment)
		setupEnd = header + len(fragment) - 1
	}

	if len(helpers) == 0 {
		return strings.Join(lines, "\n")
	}

	if b, ok := findBlock(lines, header, HelpersStart, HelpersEnd); ok {
		lines = insertLines(lines, b.end, helpers)
	} else {
		fragment := append([]string{"", HelpersStart, helpersComment}, helpers...)
		fragment = append(fragment, HelpersEnd)
		lines = insertLines(lines, setupEnd+1, fragment)
	}

	return strings.Join(lines, "\n")
}

// InjectAll applies Inject for each config in order.
func InjectAll(text string, cfgs ...AppConfig) string {
	for _, cfg := range cfgs {
		text = Inject(text, cfg)
	}
	return text
}

func insertLines(lines []string, at int, add []string) []string {
	out := make([]string, 0, len(lines)+len(add))
	out = append(out, lines[:at]...)
	out = append(out, add...)
	out = append(out, lines[at:]...)
	return out
}
