package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"market-tracker/internal/models"
	"market-tracker/internal/security"
)

// symbolFile is the YAML layout of a custom symbol table.
type symbolFile struct {
	Indices []symbolRow `yaml:"indices"`
	Crypto  []symbolRow `yaml:"crypto"`
}

type symbolRow struct {
	Name   string `yaml:"name"`
	Symbol string `yaml:"symbol"`
}

// LoadSymbolTable returns the table from cfg.Symbols.File, or the built-in
// table when no file is configured.
func (c *Config) LoadSymbolTable() (*models.SymbolTable, error) {
	if c.Symbols.File == "" {
		return models.DefaultSymbolTable(), nil
	}
	return LoadSymbolFile(expandHome(c.Symbols.File))
}

// LoadSymbolFile parses a YAML symbol table. Every identifier must pass the
// symbol sanitizer.
func LoadSymbolFile(path string) (*models.SymbolTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading symbol table: %w", err)
	}

	var f symbolFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing symbol table: %w", err)
	}

	var entries []models.SymbolEntry
	add := func(rows []symbolRow, kind models.AssetKind) error {
		for _, r := range rows {
			name := strings.TrimSpace(r.Name)
			symbol, ok := security.SanitizeSymbol(r.Symbol)
			if name == "" || !ok {
				return fmt.Errorf("invalid symbol table entry %q: %q", r.Name, r.Symbol)
			}
			entries = append(entries, models.SymbolEntry{Name: name, Symbol: symbol, Kind: kind})
		}
		return nil
	}
	if err := add(f.Indices, models.KindIndex); err != nil {
		return nil, err
	}
	if err := add(f.Crypto, models.KindCrypto); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("symbol table %s is empty", path)
	}
	return models.NewSymbolTable(entries...), nil
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return home + p[1:]
		}
	}
	return p
}
