package script

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pandeptwidyaop/hpc-console/internal/models"
)

const condaBase = "/mnt/nfsshare/miniforge3"

func condaApp() AppConfig {
	return AppConfig{Name: "My App", Kind: models.KindConda, Environment: "ml-env", CondaBase: condaBase}
}

func binaryApp() AppConfig {
	return AppConfig{Name: "solver-2 (beta)", Kind: models.KindBinary, Executable: "/opt/solver/bin/solver"}
}

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"My App":          "MY_APP",
		"solver-2 (beta)": "SOLVER_2_BETA",
		"gromacs":         "GROMACS",
	}
	for in, want := range tests {
		if got := NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInject_Conda(t *testing.T) {
	got := Inject("#!/bin/bash\necho hi\n", condaApp())

	want := `#!/bin/bash

# === APPLICATION SETUP ===
# Environment variables for all configured applications
# Application: My App
# Type: conda
export APP_MY_APP_SELECTED=1
export CONDA_BASE="/mnt/nfsshare/miniforge3"
export CONDA_ENV_MY_APP="ml-env"
# === END APPLICATION SETUP ===

# === APP EXECUTION HELPERS ===
# Functions to run applications in their proper environments
function run_my_app() {
  (source "$CONDA_BASE/etc/profile.d/conda.sh" && conda activate "$CONDA_ENV_MY_APP" && "$@")
}

# === END APP EXECUTION HELPERS ===
echo hi
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("script mismatch (-want +got):\n%s", diff)
	}
}

func TestInject_Idempotent(t *testing.T) {
	scripts := []string{
		"#!/bin/bash\necho hi\n",
		"",
		"echo no header",
		"#!/bin/bash\n#SBATCH --ntasks=4\n#SBATCH --time=01:00:00\n\nsrun ./a.out\n",
	}
	for _, s := range scripts {
		for _, cfg := range []AppConfig{condaApp(), binaryApp()} {
			once := Inject(s, cfg)
			twice := Inject(once, cfg)
			if once != twice {
				t.Errorf("Inject not idempotent for %s on %q:\n%s", cfg.Name, s, cmp.Diff(once, twice))
			}
		}
	}
}

func TestInject_Binary(t *testing.T) {
	got := Inject("#!/bin/bash\n", binaryApp())

	for _, want := range []string{
		"export APP_SOLVER_2_BETA_SELECTED=1\n",
		`export SOLVER_2_BETA_BIN="/opt/solver/bin/solver"` + "\n",
		`export SOLVER_2_BETA_PATH="/opt/solver/bin"` + "\n",
		"function run_solver_2_beta() {\n" + `  "$SOLVER_2_BETA_BIN" "$@"` + "\n}\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected script to contain %q, got:\n%s", want, got)
		}
	}
}

func TestInject_ShellQuoting(t *testing.T) {
	cfg := AppConfig{
		Name:       "odd",
		Kind:       models.KindBinary,
		Executable: "/opt/a \"b\"/$HOME/`x`\\y\t/run",
	}
	got := Inject("#!/bin/bash\n", cfg)

	for _, want := range []string{
		"export ODD_BIN=\"/opt/a \\\"b\\\"/\\$HOME/\\`x\\`\\\\y/run\"\n",
		"export ODD_PATH=\"/opt/a \\\"b\\\"/\\$HOME/\\`x\\`\\\\y\"\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected script to contain %q, got:\n%s", want, got)
		}
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ml-env", `"ml-env"`},
		{"", `""`},
		{`a"b`, `"a\"b"`},
		{"$PATH", `"\$PATH"`},
		{"`id`", "\"\\`id\\`\""},
		{`C:\conda`, `"C:\\conda"`},
		{"x\x01y\r\n", `"xy"`},
		{"café", `"café"`},
	}
	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Errorf("shellQuote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestInject_HeaderKept(t *testing.T) {
	src := "#!/bin/bash\n#SBATCH --ntasks=4\n#SBATCH --time=01:00:00\n\nsrun ./a.out\n"
	got := Inject(src, condaApp())

	if !strings.HasPrefix(got, "#!/bin/bash\n#SBATCH --ntasks=4\n#SBATCH --time=01:00:00\n\n"+SetupStart) {
		t.Errorf("expected setup block right after directives, got:\n%s", got)
	}
	if !strings.HasSuffix(got, HelpersEnd+"\n\nsrun ./a.out\n") {
		t.Errorf("expected body after helpers block, got:\n%s", got)
	}
}

func TestInject_TwoAppsMerge(t *testing.T) {
	a, b := condaApp(), binaryApp()

	got := Inject(Inject("#!/bin/bash\necho hi\n", a), b)

	if strings.Count(got, SetupStart) != 1 || strings.Count(got, SetupEnd) != 1 {
		t.Errorf("expected exactly one setup block:\n%s", got)
	}
	if strings.Count(got, HelpersStart) != 1 || strings.Count(got, HelpersEnd) != 1 {
		t.Errorf("expected exactly one helpers block:\n%s", got)
	}
	for _, want := range []string{a.Signature(), b.Signature(), "function run_my_app()", "function run_solver_2_beta()"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in merged script:\n%s", want, got)
		}
	}

	// second app lands after the first, just before each end marker
	if strings.Index(got, a.Signature()) > strings.Index(got, b.Signature()) {
		t.Error("expected first application's setup before the second")
	}
	if !strings.Contains(got, `export SOLVER_2_BETA_PATH="/opt/solver/bin"`+"\n"+SetupEnd) {
		t.Errorf("expected new exports spliced before end marker:\n%s", got)
	}

	if again := Inject(got, a); again != got {
		t.Errorf("reapplying first app changed the script:\n%s", cmp.Diff(got, again))
	}
	if InjectAll("#!/bin/bash\necho hi\n", a, b, a, b) != got {
		t.Error("InjectAll must equal sequential Inject calls")
	}
}

func TestInject_ExistingBlocksElsewhere(t *testing.T) {
	src := `#!/bin/bash
module load gcc

# === APPLICATION SETUP ===
# custom comment kept
# === END APPLICATION SETUP ===

srun ./a.out
# === APP EXECUTION HELPERS ===
# === END APP EXECUTION HELPERS ===
echo done`

	got := Inject(src, condaApp())

	want := `#!/bin/bash
module load gcc

# === APPLICATION SETUP ===
# custom comment kept
# Application: My App
# Type: conda
export APP_MY_APP_SELECTED=1
export CONDA_BASE="/mnt/nfsshare/miniforge3"
export CONDA_ENV_MY_APP="ml-env"
# === END APPLICATION SETUP ===

srun ./a.out
# === APP EXECUTION HELPERS ===
function run_my_app() {
  (source "$CONDA_BASE/etc/profile.d/conda.sh" && conda activate "$CONDA_ENV_MY_APP" && "$@")
}

# === END APP EXECUTION HELPERS ===
echo done`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("script mismatch (-want +got):\n%s", diff)
	}
}

func TestInject_OnlySetupBlockPresent(t *testing.T) {
	src := "#!/bin/bash\n\n" + SetupStart + "\n" + SetupEnd + "\necho body\n"

	got := Inject(src, condaApp())

	setupEnd := strings.Index(got, SetupEnd)
	helpers := strings.Index(got, HelpersStart)
	body := strings.Index(got, "echo body")
	if !(setupEnd < helpers && helpers < body) {
		t.Errorf("expected helpers block between setup block and body:\n%s", got)
	}
}

func TestInject_UnterminatedBlockIgnored(t *testing.T) {
	src := "#!/bin/bash\n" + SetupStart + "\necho body\n"

	got := Inject(src, condaApp())

	if strings.Count(got, SetupEnd) != 1 {
		t.Errorf("expected a new complete setup block:\n%s", got)
	}
	if !strings.HasSuffix(got, SetupStart+"\necho body\n") {
		t.Errorf("expected the stray marker to be kept verbatim:\n%s", got)
	}
}

func TestInject_UnknownKind(t *testing.T) {
	cfg := AppConfig{Name: "Viewer", Kind: models.KindUnknown}
	src := "#!/bin/bash\necho hi\n"

	got := Inject(src, cfg)

	want := "#!/bin/bash\n\n" + SetupStart + "\n" + setupComment + "\n# Application: Viewer\n# Type: Unknown\n" + SetupEnd + "\necho hi\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("script mismatch (-want +got):\n%s", diff)
	}
	if Inject(got, cfg) != got {
		t.Error("unknown kind must still be detected as injected")
	}
}

func TestInject_CondaWithoutEnvironment(t *testing.T) {
	cfg := AppConfig{Name: "Lab", Kind: models.KindConda, CondaBase: condaBase}

	got := Inject("#!/bin/bash\n", cfg)

	if strings.Contains(got, "export ") {
		t.Errorf("expected no exports without an environment:\n%s", got)
	}
	if !strings.Contains(got, "function run_lab()") {
		t.Errorf("expected helper function:\n%s", got)
	}
}

func TestNewAppConfig(t *testing.T) {
	m := models.ApplicationManifest{ID: "lab", Name: "Lab", Environment: "lab-env"}

	cfg := NewAppConfig(m, condaBase)

	if cfg.Kind != models.KindUnknown {
		t.Errorf("expected kind to default to Unknown, got %q", cfg.Kind)
	}
	if cfg.CondaBase != condaBase || cfg.Environment != "lab-env" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestFindBlock(t *testing.T) {
	lines := []string{
		"#!/bin/bash",
		"  " + SetupStart + "  ",
		"x",
		SetupEnd,
		SetupStart,
	}

	b, ok := findBlock(lines, 0, SetupStart, SetupEnd)
	if !ok || b.start != 1 || b.end != 3 {
		t.Errorf("unexpected block %+v ok=%v", b, ok)
	}

	if _, ok := findBlock(lines, 4, SetupStart, SetupEnd); ok {
		t.Error("expected unterminated block to be rejected")
	}
	if _, ok := findBlock(lines, 0, HelpersStart, HelpersEnd); ok {
		t.Error("expected no helpers block")
	}
}

func TestHeaderLen(t *testing.T) {
	tests := []struct {
		lines []string
		want  int
	}{
		{[]string{"#!/bin/bash", "#SBATCH -n 1", "", "#SBATCH -t 1"}, 2},
		{[]string{"echo hi"}, 0},
		{[]string{"#SBATCH -n 1"}, 1},
		{nil, 0},
	}
	for _, tt := range tests {
		if got := headerLen(tt.lines); got != tt.want {
			t.Errorf("headerLen(%q) = %d, want %d", tt.lines, got, tt.want)
		}
	}
}
