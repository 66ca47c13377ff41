package config

import (
	"bytes"
	"fmt"
	"maps"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/petermich29/uf-database/internal/source"
)

// Profile is a YAML import profile. It pins the source files, worksheets and
// column aliases of one data delivery so a rerun does not depend on the shell
// environment.
//
//	sources:
//	  enrollments: {path: data/inscriptions_2024.xlsx, sheet: Feuil1}
//	aliases:
//	  enrollments: {id_parcours_caractere: id_parcours}
//	import:
//	  batch_size: 500
type Profile struct {
	Sources  map[string]ProfileSource     `yaml:"sources"`
	Aliases  map[string]map[string]string `yaml:"aliases"`
	Encoding string                       `yaml:"encoding"`
	Import   ProfileImport                `yaml:"import"`
}

// ProfileSource locates one source file.
type ProfileSource struct {
	Path  string `yaml:"path"`
	Sheet string `yaml:"sheet"`
}

// ProfileImport overrides pipeline settings. Zero values leave the
// environment setting in place.
type ProfileImport struct {
	BatchSize int    `yaml:"batch_size"`
	ErrorLog  string `yaml:"error_log"`
	DateOrder string `yaml:"date_order"`
}

var sourceKinds = map[string]source.Kind{
	string(source.Institutions): source.Institutions,
	string(source.Metadata):     source.Metadata,
	string(source.Enrollments):  source.Enrollments,
}

// LoadProfile reads and parses a profile file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes a profile, rejecting unknown fields and source names.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	for name := range p.Sources {
		if _, ok := sourceKinds[name]; !ok {
			return nil, fmt.Errorf("profile: unknown source %q", name)
		}
	}
	for name := range p.Aliases {
		if _, ok := sourceKinds[name]; !ok {
			return nil, fmt.Errorf("profile: unknown alias source %q", name)
		}
	}
	return &p, nil
}

// ApplyProfile overlays the profile on the configuration.
func (c *Config) ApplyProfile(p *Profile) {
	for name, s := range p.Sources {
		kind := sourceKinds[name]
		if s.Path != "" {
			switch kind {
			case source.Institutions:
				c.Sources.InstitutionFile = s.Path
			case source.Metadata:
				c.Sources.MetadataFile = s.Path
			case source.Enrollments:
				c.Sources.EnrollmentFile = s.Path
			}
		}
		if s.Sheet != "" {
			if c.Sources.sheets == nil {
				c.Sources.sheets = make(map[source.Kind]string)
			}
			c.Sources.sheets[kind] = s.Sheet
		}
	}

	for name, aliases := range p.Aliases {
		if c.Sources.aliases == nil {
			c.Sources.aliases = make(map[source.Kind]map[string]string)
		}
		c.Sources.aliases[sourceKinds[name]] = normalizeAliases(aliases)
	}

	if p.Encoding != "" {
		c.Sources.Encoding = p.Encoding
	}
	if p.Import.BatchSize != 0 {
		c.Import.BatchSize = p.Import.BatchSize
	}
	if p.Import.ErrorLog != "" {
		c.Import.ErrorLogPath = p.Import.ErrorLog
	}
	if p.Import.DateOrder != "" {
		c.Import.DateOrder = p.Import.DateOrder
	}
}

// SourceFiles returns the file location of every source.
func (c *Config) SourceFiles() map[source.Kind]source.File {
	sheet := func(k source.Kind) string {
		if s, ok := c.Sources.sheets[k]; ok {
			return s
		}
		return c.Sources.Sheet
	}
	return map[source.Kind]source.File{
		source.Institutions: {Path: c.Sources.InstitutionFile, Sheet: sheet(source.Institutions)},
		source.Metadata:     {Path: c.Sources.MetadataFile, Sheet: sheet(source.Metadata)},
		source.Enrollments:  {Path: c.Sources.EnrollmentFile, Sheet: sheet(source.Enrollments)},
	}
}

// ColumnAliases merges the built-in aliases, IMPORT_COLUMN_ALIASES (applied to
// the enrollment source) and the profile aliases, later entries winning.
func (c *Config) ColumnAliases() map[source.Kind]map[string]string {
	out := make(map[source.Kind]map[string]string)
	merge := func(k source.Kind, m map[string]string) {
		if len(m) == 0 {
			return
		}
		if out[k] == nil {
			out[k] = make(map[string]string)
		}
		maps.Copy(out[k], m)
	}

	for k, m := range source.DefaultAliases {
		merge(k, m)
	}
	env, _ := parseAliases(c.Sources.Aliases)
	merge(source.Enrollments, env)
	for k, m := range c.Sources.aliases {
		merge(k, m)
	}
	return out
}

// parseAliases parses alias=canonical pairs.
func parseAliases(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		alias, canonical, ok := strings.Cut(pair, "=")
		alias = source.NormalizeColumn(alias)
		canonical = source.NormalizeColumn(canonical)
		if !ok || alias == "" || canonical == "" {
			return nil, fmt.Errorf("invalid alias %q (want alias=canonical)", pair)
		}
		out[alias] = canonical
	}
	return out, nil
}

func normalizeAliases(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for alias, canonical := range in {
		out[source.NormalizeColumn(alias)] = source.NormalizeColumn(canonical)
	}
	return out
}
