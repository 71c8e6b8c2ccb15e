// Package filter provides hit filtering and category folding
package filter

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/ChrisMcGann/DecoyVal/pkg/reader/hits"
)

// Config holds filtering configuration
type Config struct {
	Categories []string          // Keep only these categories, after aliasing (nil = all)
	MinScore   *float64          // Drop hits scoring below (nil = no bound)
	MaxScore   *float64          // Drop hits scoring above (nil = no bound)
	Aliases    map[string]string // Raw category -> validation category
}

// Apply folds the hit category through the aliases and reports whether the
// hit should be kept. Non-finite scores are never kept.
func (c *Config) Apply(hit *hits.Hit) bool {
	if math.IsNaN(hit.Score) || math.IsInf(hit.Score, 0) {
		return false
	}

	if alias, ok := c.Aliases[hit.Category]; ok {
		hit.Category = alias
	}

	if c.MinScore != nil && hit.Score < *c.MinScore {
		return false
	}
	if c.MaxScore != nil && hit.Score > *c.MaxScore {
		return false
	}

	if len(c.Categories) > 0 && !matchesCategory(hit.Category, c.Categories) {
		return false
	}

	return true
}

// matchesCategory checks if a category is one of the allowed ones
func matchesCategory(category string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(category, a) {
			return true
		}
	}
	return false
}

// LoadCategoryAliases reads a "raw,category" CSV with a header line.
func LoadCategoryAliases(r io.Reader) (map[string]string, error) {
	result := make(map[string]string)
	scanner := bufio.NewScanner(r)

	// Skip header line
	scanner.Scan()

	lineNum := 1
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("line %d: expected 2 fields (raw,category), got %d", lineNum, len(parts))
		}

		raw := strings.TrimSpace(parts[0])
		category := strings.TrimSpace(parts[1])
		if raw == "" || category == "" {
			return nil, fmt.Errorf("line %d: empty alias field", lineNum)
		}

		result[raw] = category
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading CSV: %w", err)
	}

	return result, nil
}
