package output

import (
	"fmt"
	"os"
	"path/filepath"
)

// Results is everything one dataset variant produces.
type Results struct {
	Variant  string
	Models   []ModelRow
	Tabs     []TabRow
	Counts   []CountRow
	Failures []FailureRow
}

// Paths returns the files Write creates for a variant under dir.
func Paths(dir, variant string) map[string]string {
	return map[string]string{
		"models":      filepath.Join(dir, variant+"_models.parquet"),
		"tabulations": filepath.Join(dir, variant+"_tabulations.parquet"),
		"counts":      filepath.Join(dir, variant+"_counts.parquet"),
		"failures":    filepath.Join(dir, variant+"_failures.parquet"),
	}
}

// Write stores the four result tables of a variant in dir, creating it
// if needed. Empty tables still produce a file.
func Write(dir string, res *Results) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	paths := Paths(dir, res.Variant)

	if _, err := WriteFile(paths["models"], res.Models); err != nil {
		return fmt.Errorf("write models: %w", err)
	}
	if _, err := WriteFile(paths["tabulations"], res.Tabs); err != nil {
		return fmt.Errorf("write tabulations: %w", err)
	}
	if _, err := WriteFile(paths["counts"], res.Counts); err != nil {
		return fmt.Errorf("write counts: %w", err)
	}
	if _, err := WriteFile(paths["failures"], res.Failures); err != nil {
		return fmt.Errorf("write failures: %w", err)
	}
	return nil
}
