package script

import "strings"

// Banner lines delimiting the generated regions of a job script. They are a
// stable micro-format: scripts stay hand-editable and are re-scanned on every
// submission, so these strings must never change.
const (
	SetupStart   = "# === APPLICATION SETUP ==="
	SetupEnd     = "# === END APPLICATION SETUP ==="
	HelpersStart = "# === APP EXECUTION HELPERS ==="
	HelpersEnd   = "# === END APP EXECUTION HELPERS ==="

	setupComment   = "# Environment variables for all configured applications"
	helpersComment = "# Functions to run applications in their proper environments"

	signatureNamePrefix = "# Application: "
	signatureKindPrefix = "# Type: "

	descriptionPrefix = "# Description: "
)

// block is a delimited region of a script, as line indexes of its start and
// end markers (both inclusive).
type block struct {
	start, end int
}

// findBlock locates the first start marker at or after from and the first end
// marker after it. Markers match on the trimmed line. A start marker without
// a matching end marker is not a block.
func findBlock(lines []string, from int, startMarker, endMarker string) (block, bool) {
	start := -1
	for i := from; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if start < 0 {
			if line == startMarker {
				start = i
			}
			continue
		}
		if line == endMarker {
			return block{start: start, end: i}, true
		}
	}
	return block{}, false
}

// headerLen returns the number of leading interpreter and scheduler
// directive lines.
func headerLen(lines []string) int {
	n := 0
	for n < len(lines) && (strings.HasPrefix(lines[n], "#!") || strings.HasPrefix(lines[n], "#SBATCH")) {
		n++
	}
	return n
}

// signature is the text whose presence marks an application as injected.
func signature(name, kind string) string {
	return signatureNamePrefix + name + "\n" + signatureKindPrefix + kind
}
