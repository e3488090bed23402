// Package manifest implements parsing and validation of dependency manifests.
//
// A manifest is a plain-text file listing external packages and version
// constraints, one requirement per line. Comment lines starting with "Core"
// or "Optional" open the corresponding section; an inline comment may follow
// a requirement after a '#'.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/blang/semver/v4"
)

var (
	// ErrDuplicateRequirement is returned when a package is declared more than once.
	ErrDuplicateRequirement = errors.New("duplicate requirement")

	// ErrMalformedLine is returned when a non-comment line does not match the requirement grammar.
	ErrMalformedLine = errors.New("malformed requirement line")
)

// Section identifies which manifest section a requirement belongs to.
type Section int

const (
	// SectionNone is for requirements declared before any section header.
	SectionNone Section = iota
	// SectionCore holds packages required for baseline operation.
	SectionCore
	// SectionOptional holds packages enabling supplementary features.
	SectionOptional
)

// String returns the human readable name of the section.
func (s Section) String() string {
	switch s {
	case SectionCore:
		return "core"
	case SectionOptional:
		return "optional"
	default:
		return "none"
	}
}

// Requirement is a single package requirement line.
type Requirement struct {
	Name    string         // Name is the declared package name.
	Op      string         // Op is the version comparator, ">=" in a conforming manifest.
	Version semver.Version // Version is the parsed version constraint operand.
	Raw     string         // Raw is the verbatim version text from the file.
	Comment string         // Comment is the inline comment, if any, without the leading '#'.
	Section Section        // Section the requirement was declared under.
	Line    int            // Line is the 1-based line number in the source.
}

// Issue is a lint finding for a requirement that deviates from the
// minimum-only constraint convention.
type Issue struct {
	Line int
	Name string
	Msg  string
}

// Manifest is a parsed dependency manifest.
type Manifest struct {
	Requirements []Requirement
}

// requirementRe matches `<name><comparator><version>` with optional whitespace.
var requirementRe = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)\s*(>=|<=|==|!=|>|<)\s*([0-9][0-9A-Za-z.+-]*)$`)

// Parse reads a manifest from r.
//
// Blank lines and whole-line comments are skipped. A requirement line must
// match `<name><comparator><semver>`, optionally followed by an inline
// comment. Declaring the same package twice is an error.
func Parse(r io.Reader) (*Manifest, error) {
	var m Manifest
	seen := make(map[string]int)
	section := SectionNone

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		if strings.HasPrefix(text, "#") {
			if s, ok := sectionHeader(text); ok {
				section = s
			}
			continue
		}

		req, comment, _ := strings.Cut(text, "#")
		req = strings.TrimSpace(req)

		groups := requirementRe.FindStringSubmatch(req)
		if groups == nil {
			return nil, fmt.Errorf("%w: line %d: %q", ErrMalformedLine, line, text)
		}

		name, op, raw := groups[1], groups[2], groups[3]
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("%w: %q declared on lines %d and %d", ErrDuplicateRequirement, name, prev, line)
		}
		seen[name] = line

		version, err := semver.ParseTolerant(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: invalid version %q: %v", ErrMalformedLine, line, raw, err)
		}

		m.Requirements = append(m.Requirements, Requirement{
			Name:    name,
			Op:      op,
			Version: version,
			Raw:     raw,
			Comment: strings.TrimSpace(comment),
			Section: section,
			Line:    line,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %v", err)
	}

	return &m, nil
}

// ParseFile reads a manifest from the file at path.
func ParseFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %v", err)
	}
	defer f.Close()

	return Parse(f)
}

// Requirement returns the requirement declared for name.
func (m *Manifest) Requirement(name string) (Requirement, bool) {
	for _, r := range m.Requirements {
		if r.Name == name {
			return r, true
		}
	}
	return Requirement{}, false
}

// Core returns the requirements declared in the core section.
func (m *Manifest) Core() []Requirement {
	return m.section(SectionCore)
}

// Optional returns the requirements declared in the optional section.
func (m *Manifest) Optional() []Requirement {
	return m.section(SectionOptional)
}

// Names returns the declared package names in file order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Requirements))
	for _, r := range m.Requirements {
		names = append(names, r.Name)
	}
	return names
}

// Lint reports requirements whose constraint is not a pure minimum bound.
// Pinned versions and upper bounds are flagged so that a manifest which is
// expected to stay minimum-only can be checked for regressions.
func (m *Manifest) Lint() []Issue {
	var issues []Issue
	for _, r := range m.Requirements {
		if r.Op == ">=" {
			continue
		}
		issues = append(issues, Issue{
			Line: r.Line,
			Name: r.Name,
			Msg:  fmt.Sprintf("constraint %q is not a minimum bound", r.Op+r.Raw),
		})
	}
	return issues
}

func (m *Manifest) section(s Section) []Requirement {
	var reqs []Requirement
	for _, r := range m.Requirements {
		if r.Section == s {
			reqs = append(reqs, r)
		}
	}
	return reqs
}

// sectionHeader reports whether a comment line opens a known section.
// Only "core dependencies" and "optional dependencies" headers count, with
// optional trailing text; an ordinary comment that merely starts with one of
// those words must not switch sections.
func sectionHeader(comment string) (Section, bool) {
	text := strings.ToLower(strings.TrimSpace(strings.TrimLeft(comment, "#")))
	switch {
	case headerMatches(text, "core"):
		return SectionCore, true
	case headerMatches(text, "optional"):
		return SectionOptional, true
	default:
		return SectionNone, false
	}
}

func headerMatches(text, word string) bool {
	rest, ok := strings.CutPrefix(text, word)
	if !ok {
		return false
	}
	rest = strings.TrimLeft(rest, " ")
	return rest == "dependencies" || strings.HasPrefix(rest, "dependencies ")
}
