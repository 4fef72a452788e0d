package rules

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader reads additional predicate rules from a rules directory. Files may
// hold a single rule document or a list of rules. Invalid rules are skipped
// with a warning, they never fail the load.
type Loader struct {
	rulesDir string
	logger   *slog.Logger
}

// NewLoader creates a rule loader for dir.
func NewLoader(rulesDir string, logger *slog.Logger) *Loader {
	return &Loader{rulesDir: rulesDir, logger: logger}
}

// Load returns the built-in rule table followed by every valid rule found
// under the rules directory, in filename order. A missing directory yields
// the built-in table alone.
func (l *Loader) Load() ([]Rule, error) {
	rules := Builtin()

	files, err := l.ruleFiles()
	if err != nil {
		if os.IsNotExist(err) {
			return rules, nil
		}
		return nil, fmt.Errorf("failed to read rules dir: %w", err)
	}

	for _, file := range files {
		loaded, err := l.loadFile(file)
		if err != nil {
			l.logger.Warn("failed to load rule file", "file", file, "error", err)
			continue
		}
		for _, rule := range loaded {
			if err := rule.Validate(); err != nil {
				l.logger.Warn("invalid rule skipped", "file", file, "error", err)
				continue
			}
			rules = append(rules, rule)
		}
	}

	l.logger.Info("rules loaded", "total", len(rules), "builtin", len(builtinRules))
	return rules, nil
}

func (l *Loader) ruleFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(l.rulesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (l *Loader) loadFile(filename string) ([]Rule, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var single Rule
	if err := yaml.Unmarshal(data, &single); err == nil && single.ID != "" {
		return []Rule{single}, nil
	}

	var list []Rule
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	return list, nil
}
