package inventory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pandeptwidyaop/hpc-console/internal/models"
)

var (
	// ErrInvalidHost indicates a host that cannot be written as a single inventory line.
	ErrInvalidHost = errors.New("invalid host")
	// ErrInvalidGroup indicates a group name or member list that cannot be written.
	ErrInvalidGroup = errors.New("invalid group")
	// ErrGroupExists indicates the group section is already present.
	ErrGroupExists = errors.New("group already exists")
	// ErrHostExists indicates the host name is already declared.
	ErrHostExists = errors.New("host already exists")
)

// FormatHostLine renders h as an inventory host line without the trailing newline.
func FormatHostLine(h models.Host) string {
	var b strings.Builder
	b.WriteString(h.Name)
	if h.IP != "" {
		b.WriteString(" ansible_host=" + h.IP)
	}
	if h.Connection != "" {
		b.WriteString(" ansible_connection=" + h.Connection)
	}
	if h.User != "" {
		b.WriteString(" ansible_user=" + h.User)
	}
	return b.String()
}

// AddHost adds h to the DefaultGroup section.
func AddHost(text string, h models.Host) (string, error) {
	return AddHostToGroup(text, DefaultGroup, h)
}

// AddHostToGroup inserts h after the last non-blank line of the group's
// section, or appends a new section when the group is absent. A name that is
// already declared anywhere in the inventory is rejected, since RemoveHost
// drops every line carrying it.
func AddHostToGroup(text, group string, h models.Host) (string, error) {
	if err := validateGroupName(group); err != nil {
		return text, err
	}
	if err := validateHost(h); err != nil {
		return text, err
	}
	if declared(Parse(text), h.Name) {
		return text, fmt.Errorf("%w: %s", ErrHostExists, h.Name)
	}

	hostLine := FormatHostLine(h) + "\n"
	lines := splitLines(text)

	start := findHeader(lines, group)
	if start < 0 {
		return appendSection(text, group, hostLine), nil
	}

	insertAt := start + 1
	for j := start + 1; j < len(lines) && !isHeader(lines[j]); j++ {
		if strings.TrimSpace(lines[j]) != "" {
			insertAt = j + 1
		}
	}
	if !strings.HasSuffix(lines[insertAt-1], "\n") {
		lines[insertAt-1] += "\n"
	}

	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:insertAt]...)
	out = append(out, hostLine)
	out = append(out, lines[insertAt:]...)
	return strings.Join(out, ""), nil
}

// RemoveHost drops every host line whose first token is name. Bare IP lines
// match their synthesized host-<ip> name. A section left with only blank
// lines by the removal is dropped with its header; when it was the last
// section, the blank separator line in front of it goes too.
func RemoveHost(text, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return text
	}

	lines := splitLines(text)
	out := make([]string, 0, len(lines))
	header := -1
	removed, kept := false, false

	closeSection := func(last bool) {
		if header < 0 || !removed || kept {
			return
		}
		out = out[:header]
		if last && len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == "" {
			out = out[:len(out)-1]
		}
	}

	for _, line := range lines {
		if isHeader(line) {
			closeSection(false)
			header, removed, kept = len(out), false, false
			out = append(out, line)
			continue
		}
		if hostLineName(line) == name {
			removed = true
			continue
		}
		if strings.TrimSpace(line) != "" {
			kept = true
		}
		out = append(out, line)
	}
	closeSection(true)
	return strings.Join(out, "")
}

// AddGroup appends a new [name] section listing hosts.
func AddGroup(text, name string, hosts []models.Host) (string, error) {
	if err := validateGroupName(name); err != nil {
		return text, err
	}
	if name == AllGroup {
		return text, fmt.Errorf("%w: %s is implicit", ErrInvalidGroup, name)
	}
	if len(hosts) == 0 {
		return text, fmt.Errorf("%w: group %s needs at least one host", ErrInvalidGroup, name)
	}
	if findHeader(splitLines(text), name) >= 0 {
		return text, fmt.Errorf("%w: %s", ErrGroupExists, name)
	}

	var body strings.Builder
	for _, h := range hosts {
		if err := validateHost(h); err != nil {
			return text, err
		}
		body.WriteString(FormatHostLine(h) + "\n")
	}
	return appendSection(text, name, body.String()), nil
}

// RemoveGroup drops the [name] header and every line up to the next header.
func RemoveGroup(text, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return text
	}

	lines := splitLines(text)
	out := make([]string, 0, len(lines))
	inGroup := false
	for _, line := range lines {
		if isHeader(line) {
			inGroup = strings.TrimSpace(line) == "["+name+"]"
			if inGroup {
				continue
			}
		}
		if !inGroup {
			out = append(out, line)
		}
	}
	return strings.Join(out, "")
}

func appendSection(text, group, body string) string {
	var b strings.Builder
	b.WriteString(text)
	if text != "" {
		if !strings.HasSuffix(text, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("[" + group + "]\n")
	b.WriteString(body)
	return b.String()
}

// splitLines keeps line terminators so joining the result restores the input exactly.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func isHeader(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]")
}

func findHeader(lines []string, group string) int {
	want := "[" + group + "]"
	for i, line := range lines {
		if strings.TrimSpace(line) == want {
			return i
		}
	}
	return -1
}

func hostLineName(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 || isHeader(line) {
		return ""
	}
	if len(fields) == 1 && isDottedQuad(fields[0]) {
		return bareHostName(fields[0])
	}
	return fields[0]
}

// declared reports whether name is an addressable host or a member of any
// leaf group.
func declared(inv *Inventory, name string) bool {
	if _, ok := inv.Host(name); ok {
		return true
	}
	for _, members := range inv.Groups {
		if contains(members, name) {
			return true
		}
	}
	return false
}

func validateHost(h models.Host) error {
	if h.Name == "" || strings.ContainsAny(h.Name, "=[]#;") || strings.HasPrefix(h.Name, groupPrefix) {
		return fmt.Errorf("%w: bad name %q", ErrInvalidHost, h.Name)
	}
	for _, v := range []string{h.Name, h.IP, h.User, h.Connection} {
		if strings.ContainsAny(v, " \t\r\n") {
			return fmt.Errorf("%w: %q contains whitespace", ErrInvalidHost, v)
		}
	}
	return nil
}

func validateGroupName(name string) error {
	if name == "" || strings.ContainsAny(name, "[] \t\r\n#;") || isNonLeaf(name) {
		return fmt.Errorf("%w: bad name %q", ErrInvalidGroup, name)
	}
	return nil
}
