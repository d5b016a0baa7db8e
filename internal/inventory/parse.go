// Package inventory parses and edits INI-style ansible inventory files.
//
// Parsing produces a display list in a fixed order: the synthetic "all"
// entry, one synthetic entry per non-empty leaf group sorted by name, then
// every addressable host in first-seen order. Editing works on raw lines so
// that content outside the touched region is written back byte for byte.
package inventory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pandeptwidyaop/hpc-console/internal/models"
)

const (
	// DefaultGroup receives hosts added without an explicit group.
	DefaultGroup = "myhosts"
	// AllGroup is the implicit group containing every host.
	AllGroup = "all"

	childrenMarker = ":children"
	varsMarker     = ":vars"
	groupPrefix    = "group:"
)

// EntryKind tags a row of the parsed display list.
type EntryKind string

const (
	KindAll   EntryKind = "all"
	KindGroup EntryKind = "group"
	KindHost  EntryKind = "host"
)

// Entry is one row of the display list. Aggregate rows (all, group) carry a
// Summary and never have an IP.
type Entry struct {
	models.Host
	Kind    EntryKind `json:"kind"`
	Summary string    `json:"summary,omitempty"`
}

// LineError describes an inventory line that was skipped.
type LineError struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

func (e LineError) String() string {
	return fmt.Sprintf("line %d: %s (%q)", e.Line, e.Reason, e.Text)
}

// Inventory is the parsed form of an inventory file.
type Inventory struct {
	Entries []Entry             `json:"entries"`
	Hosts   []models.Host       `json:"hosts"`
	Groups  map[string][]string `json:"groups"`
	Skipped []LineError         `json:"skipped,omitempty"`

	groupOrder []string
	seen       map[string]int
}

// Host returns the addressable host with the given name.
func (inv *Inventory) Host(name string) (models.Host, bool) {
	if idx, ok := inv.seen[name]; ok {
		return inv.Hosts[idx], true
	}
	return models.Host{}, false
}

// HasGroup reports whether a leaf group with this name was declared.
func (inv *Inventory) HasGroup(name string) bool {
	_, ok := inv.Groups[name]
	return ok
}

// Parse reads inventory text. It never fails: malformed lines are recorded in
// Skipped and the rest of the file is still parsed.
func Parse(text string) *Inventory {
	inv := &Inventory{
		Groups: make(map[string][]string),
		seen:   make(map[string]int),
	}

	current := ""
	skipSection := false

	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			name, ok := headerName(line)
			if !ok {
				inv.skip(i+1, line, "malformed section header")
				current, skipSection = "", true
				continue
			}
			current = name
			skipSection = strings.HasSuffix(name, varsMarker)
			if !isNonLeaf(name) {
				inv.declareGroup(name)
			}
			continue
		}

		if skipSection {
			continue
		}

		host, ok := parseHostLine(line)
		if !ok {
			inv.skip(i+1, line, "host line has no name")
			continue
		}
		inv.addHost(host, current)
	}

	inv.Entries = inv.buildEntries()
	return inv
}

func (inv *Inventory) skip(line int, text, reason string) {
	inv.Skipped = append(inv.Skipped, LineError{Line: line, Text: text, Reason: reason})
}

func (inv *Inventory) declareGroup(name string) {
	if _, ok := inv.Groups[name]; ok {
		return
	}
	inv.Groups[name] = []string{}
	inv.groupOrder = append(inv.groupOrder, name)
}

func (inv *Inventory) addHost(h models.Host, group string) {
	idx, known := inv.seen[h.Name]
	if !known && h.IP != "" {
		h.Groups = []string{}
		// back-fill groups that listed this name before it had an address
		for _, g := range inv.groupOrder {
			if contains(inv.Groups[g], h.Name) {
				h.Groups = append(h.Groups, g)
			}
		}
		inv.Hosts = append(inv.Hosts, h)
		idx = len(inv.Hosts) - 1
		inv.seen[h.Name] = idx
		known = true
	}

	members, ok := inv.Groups[group]
	if group == "" || !ok {
		return
	}
	if !contains(members, h.Name) {
		inv.Groups[group] = append(members, h.Name)
	}
	if known && !contains(inv.Hosts[idx].Groups, group) {
		inv.Hosts[idx].Groups = append(inv.Hosts[idx].Groups, group)
	}
}

func (inv *Inventory) buildEntries() []Entry {
	var names []string
	for name, members := range inv.Groups {
		if len(members) > 0 && name != AllGroup {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	entries := make([]Entry, 0, 1+len(names)+len(inv.Hosts))
	entries = append(entries, Entry{
		Host:    models.Host{Name: AllGroup, Groups: []string{AllGroup}},
		Kind:    KindAll,
		Summary: fmt.Sprintf("All hosts (%d hosts)", len(inv.Hosts)),
	})

	for _, name := range names {
		members := inv.Groups[name]
		entries = append(entries, Entry{
			Host:    models.Host{Name: groupPrefix + name, Groups: []string{name}},
			Kind:    KindGroup,
			Summary: fmt.Sprintf("Group (%d hosts: %s)", len(members), strings.Join(members, ", ")),
		})
	}

	for _, h := range inv.Hosts {
		entries = append(entries, Entry{Host: h, Kind: KindHost})
	}
	return entries
}

// parseHostLine handles both "name key=value..." lines and bare dotted-quad lines.
func parseHostLine(line string) (models.Host, bool) {
	fields := strings.Fields(line)

	if len(fields) == 1 && isDottedQuad(fields[0]) {
		return models.Host{Name: bareHostName(fields[0]), IP: fields[0]}, true
	}

	if strings.Contains(fields[0], "=") {
		return models.Host{}, false
	}

	h := models.Host{Name: fields[0]}
	for _, tok := range fields[1:] {
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		switch key {
		case "ansible_host":
			h.IP = value
		case "ansible_user":
			h.User = value
		case "ansible_connection":
			h.Connection = value
		}
	}
	return h, true
}

func headerName(line string) (string, bool) {
	if !strings.HasSuffix(line, "]") || len(line) < 3 {
		return "", false
	}
	name := strings.TrimSpace(line[1 : len(line)-1])
	if name == "" || strings.ContainsAny(name, "[]") {
		return "", false
	}
	return name, true
}

func isNonLeaf(group string) bool {
	return strings.Contains(group, childrenMarker) || strings.HasSuffix(group, varsMarker)
}

func isDottedQuad(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, r := range p {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

func bareHostName(ip string) string {
	return "host-" + strings.ReplaceAll(ip, ".", "-")
}

// LimitPattern converts a display-list selection into a scheduler or ansible
// host pattern. It returns "" for the all entry, meaning no limit.
func LimitPattern(selection string) string {
	selection = strings.TrimSpace(selection)
	if selection == "" || selection == AllGroup {
		return ""
	}
	return strings.TrimPrefix(selection, groupPrefix)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
