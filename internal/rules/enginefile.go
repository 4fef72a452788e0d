package rules

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// EngineRule is one opaque rule body from the external detection engine's
// rules file.
type EngineRule struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	IsActive bool   `json:"is_active"`
}

// EngineRulesFile manages the newline-delimited rules file consumed by the
// external detection engine. Blank lines and lines starting with # are
// ignored; every other line is one opaque rule body. The file is only ever
// appended to, never rewritten.
type EngineRulesFile struct {
	path string
}

// NewEngineRulesFile creates a manager for the rules file at path.
func NewEngineRulesFile(path string) *EngineRulesFile {
	return &EngineRulesFile{path: path}
}

// List returns the active rule bodies in file order. A missing file yields
// an empty list, not an error.
func (f *EngineRulesFile) List() ([]EngineRule, error) {
	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer file.Close()

	var out []EngineRule
	scanner := bufio.NewScanner(file)
	i := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, EngineRule{
			ID:       strconv.Itoa(i),
			Name:     fmt.Sprintf("Rule %d", i+1),
			Content:  line,
			IsActive: true,
		})
		i++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return out, nil
}

// Append adds one rule body to the end of the file, creating it if needed.
func (f *EngineRulesFile) Append(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("empty rule content")
	}
	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open rules file for append: %w", err)
	}
	defer file.Close()

	if _, err := fmt.Fprintf(file, "\n%s\n", content); err != nil {
		return fmt.Errorf("failed to append rule: %w", err)
	}
	return nil
}
