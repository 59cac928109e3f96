package core

import (
	"errors"
	"fmt"
	"maps"
	"strings"
)

// ErrInvalidDataset is wrapped by all dataset definition errors.
var ErrInvalidDataset = errors.New("invalid dataset")

// Source type identifiers.
const (
	SourceFile          = "file"
	SourceDatabase      = "database"
	SourceObjectStore   = "objectstore"
	SourceElasticsearch = "elasticsearch"
	SourceZip           = "zip"
)

// Dataset describes one import: source, target and attribute mapping.
type Dataset struct {
	Version   string                      `yaml:"version"`
	Catalogue string                      `yaml:"catalogue"`
	Entity    string                      `yaml:"entity"`
	HasStates bool                        `yaml:"has_states"`
	DependsOn []string                    `yaml:"depends_on"`
	Source    Source                      `yaml:"source"`
	Mapping   map[string]AttributeMapping `yaml:"gob_mapping"`

	// Path is the file the dataset was loaded from. Relative paths inside
	// the definition (merge datasets, inject files) resolve against it.
	Path string `yaml:"-"`
}

// Source declares where rows come from.
type Source struct {
	Name        string            `yaml:"name"`
	Application string            `yaml:"application"`
	EntityID    string            `yaml:"entity_id"`
	Type        string            `yaml:"type"`
	Config      map[string]any    `yaml:"config"`
	ReadConfig  map[string]any    `yaml:"read_config"`
	Query       []string          `yaml:"query"`
	Enrich      map[string]string `yaml:"enrich"`
	Merge       *MergeConfig      `yaml:"merge"`
	Inject      *InjectConfig     `yaml:"inject"`
}

// MergeConfig declares a secondary dataset merged into the primary stream.
type MergeConfig struct {
	Dataset string   `yaml:"dataset"`
	ID      string   `yaml:"id"`
	On      string   `yaml:"on"`
	Copy    []string `yaml:"copy"`
}

// InjectConfig declares a fixed-data patch file applied to raw rows.
type InjectConfig struct {
	File        string            `yaml:"file"`
	On          string            `yaml:"on"`
	Conversions map[string]string `yaml:"conversions"`
}

// AttributeMapping declares how one target attribute is derived.
//
// SourceMapping is either a string (literal "=x", column name or dotted
// "column.attr" object reference) or, for reference types, a map of
// sub-attribute to such a string. Every key not named below ends up in
// Options and is passed to the type constructor.
type AttributeMapping struct {
	Type          string         `yaml:"type"`
	SourceMapping any            `yaml:"source_mapping"`
	Filters       [][]any        `yaml:"filters"`
	ForceList     bool           `yaml:"force_list"`
	Options       map[string]any `yaml:",inline"`
}

// QueryString joins the query lines of a database source.
func (s Source) QueryString() string {
	return strings.Join(s.Query, "\n")
}

// ConfigString returns a string value from the source config or read config.
// Read config wins, it is the part updated per run.
func (s Source) ConfigString(key string) string {
	if v, ok := s.ReadConfig[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	if v, ok := s.Config[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// Name returns "catalogue.entity" for logging.
func (d *Dataset) Name() string {
	return d.Catalogue + "." + d.Entity
}

// WithReadConfig returns a copy of the dataset with updates merged into the
// source read config. The receiver is not modified.
func (d *Dataset) WithReadConfig(updates map[string]any) *Dataset {
	cp := *d
	cp.Source.ReadConfig = make(map[string]any, len(d.Source.ReadConfig)+len(updates))
	maps.Copy(cp.Source.ReadConfig, d.Source.ReadConfig)
	maps.Copy(cp.Source.ReadConfig, updates)
	return &cp
}

// Validate checks the keys every import needs.
func (d *Dataset) Validate() error {
	var missing []string
	if d.Catalogue == "" {
		missing = append(missing, "catalogue")
	}
	if d.Entity == "" {
		missing = append(missing, "entity")
	}
	if d.Source.Name == "" {
		missing = append(missing, "source.name")
	}
	if d.Source.Application == "" {
		missing = append(missing, "source.application")
	}
	if d.Source.EntityID == "" {
		missing = append(missing, "source.entity_id")
	}
	for name, m := range d.Mapping {
		if m.Type == "" {
			missing = append(missing, "gob_mapping."+name+".type")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w %s: missing required keys: %s", ErrInvalidDataset, d.Path, strings.Join(missing, ", "))
	}
	if d.Source.Merge != nil && (d.Source.Merge.Dataset == "" || d.Source.Merge.On == "" || d.Source.Merge.ID == "") {
		return fmt.Errorf("%w %s: merge requires dataset, id and on", ErrInvalidDataset, d.Path)
	}
	return nil
}
