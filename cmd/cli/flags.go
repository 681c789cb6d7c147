package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dvloznov/txgroup/internal/domain"
	"github.com/dvloznov/txgroup/internal/mapping"
)

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("TXGROUP_CONFIG"), "Path to a YAML config file")
	return fs, configPath
}

// parseMapping reads "field=Header" pairs separated by commas, e.g.
// "date=Data operacji,amount=Kwota,description=Tytuł".
func parseMapping(s string) (mapping.ColumnMapping, error) {
	byField := make(map[mapping.Field]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, header, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("parseMapping: %q is not field=header", pair)
		}
		f, err := mapping.ParseField(name)
		if err != nil {
			return nil, fmt.Errorf("parseMapping: %w", err)
		}
		if f == "" {
			continue
		}
		if _, dup := byField[f]; dup {
			return nil, fmt.Errorf("parseMapping: %w: %s", mapping.ErrDuplicateField, f)
		}
		byField[f] = strings.TrimSpace(header)
	}
	return mapping.FromFields(byField), nil
}

// splitIDs splits a comma separated list, dropping blanks.
func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// findCategory matches ref against category IDs first, then names ignoring
// case.
func findCategory(categories []domain.Category, ref string) (domain.Category, bool) {
	for _, c := range categories {
		if c.ID == ref {
			return c, true
		}
	}
	for _, c := range categories {
		if strings.EqualFold(c.Name, ref) {
			return c, true
		}
	}
	return domain.Category{}, false
}
