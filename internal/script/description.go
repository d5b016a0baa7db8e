package script

import "strings"

// SplitDescription extracts the "# Description: " comment from a saved script.
// The comment is recognized on the first line, or on the second line when the
// first is an interpreter directive. The returned content has the comment line
// removed and surrounding whitespace trimmed.
func SplitDescription(text string) (description, content string) {
	lines := strings.Split(text, "\n")

	idx := 0
	if len(lines) > 1 && strings.HasPrefix(lines[0], "#!") {
		idx = 1
	}
	if !strings.HasPrefix(lines[idx], descriptionPrefix) {
		if idx == 1 && strings.HasPrefix(lines[0], descriptionPrefix) {
			idx = 0
		} else {
			return "", strings.TrimSpace(text)
		}
	}

	description = strings.TrimSpace(strings.TrimPrefix(lines[idx], descriptionPrefix))
	rest := append(lines[:idx:idx], lines[idx+1:]...)
	return description, strings.TrimSpace(strings.Join(rest, "\n"))
}

// PrependDescription writes description into a job script. The comment goes
// right after an interpreter directive when there is one, otherwise on the
// first line. An empty description leaves content unchanged.
func PrependDescription(content, description string) string {
	description = singleLine(description)
	if description == "" {
		return content
	}
	if strings.HasPrefix(content, "#!") {
		shebang, rest, _ := strings.Cut(content, "\n")
		return shebang + "\n" + descriptionPrefix + description + "\n" + rest
	}
	return descriptionPrefix + description + "\n" + content
}

// PrependPlaybookDescription writes description as the first line of a
// playbook, where YAML treats it as a comment.
func PrependPlaybookDescription(content, description string) string {
	description = singleLine(description)
	if description == "" {
		return content
	}
	return descriptionPrefix + description + "\n" + content
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
