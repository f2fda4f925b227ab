package rulestore

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const starterTemplate = "templates/rules.yaml"

//go:embed templates/rules.yaml
var templatesFS embed.FS

// Starter returns the commented example rules file.
func Starter() ([]byte, error) {
	content, err := templatesFS.ReadFile(starterTemplate)
	if err != nil {
		return nil, fmt.Errorf("load starter rules: %w", err)
	}

	return content, nil
}

// WriteStarter writes the example rules file to path. An existing file is kept
// unless overwrite is set.
func WriteStarter(path string, overwrite bool) error {
	content, err := Starter()
	if err != nil {
		return err
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat rules file: %w", err)
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create rules directory: %w", err)
		}
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write rules file: %w", err)
	}

	return nil
}
