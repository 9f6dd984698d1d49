package reports

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var validate = validator.New()

// Catalog holds report definitions by name.
type Catalog struct {
	defs map[string]Definition
}

type catalogFile struct {
	Reports []Definition `mapstructure:"reports"`
}

// LoadCatalog reads a catalog file (YAML, JSON or TOML by extension).
// Viper folds map keys to lower case, so rule and alias keys must name
// lower-case fields.
func LoadCatalog(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reports: read catalog %s: %w", path, err)
	}
	return decodeCatalog(v)
}

// ReadCatalog reads a catalog of the given format ("yaml", "json", "toml").
func ReadCatalog(r io.Reader, format string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("reports: read catalog: %w", err)
	}
	return decodeCatalog(v)
}

func decodeCatalog(v *viper.Viper) (*Catalog, error) {
	var file catalogFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("reports: decode catalog: %w", err)
	}
	return NewCatalog(file.Reports...)
}

// NewCatalog validates defs and indexes them by name. Companion references
// must exist and group by the same key fields.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]Definition, len(defs))}
	var errs []error
	for _, def := range defs {
		def.Name = strings.TrimSpace(def.Name)
		if err := validate.Struct(def); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %s", ErrInvalidDefinition, def.Name, describeValidation(err)))
			continue
		}
		if _, dup := c.defs[def.Name]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate report %q", ErrInvalidDefinition, def.Name))
			continue
		}
		if _, err := def.Plan(nil); err != nil {
			errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidDefinition, err))
			continue
		}
		c.defs[def.Name] = def
	}
	for _, def := range c.defs {
		for _, name := range def.Companions {
			companion, ok := c.defs[name]
			if !ok {
				errs = append(errs, fmt.Errorf("%w: %q companion %q not found", ErrInvalidDefinition, def.Name, name))
				continue
			}
			if !companion.KeySpec().SameFields(def.Key.Fields) {
				errs = append(errs, fmt.Errorf("%w: %q companion %q groups by %v", ErrInvalidDefinition, def.Name, name, companion.Key.Fields))
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

// Get returns the definition called name.
func (c *Catalog) Get(name string) (Definition, error) {
	if c != nil {
		if def, ok := c.defs[name]; ok {
			return def, nil
		}
	}
	return Definition{}, fmt.Errorf("%w: %q", ErrUnknownReport, name)
}

// Names returns the report names sorted.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.defs))
	for name := range c.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns every definition sorted by name.
func (c *Catalog) Definitions() []Definition {
	names := c.Names()
	out := make([]Definition, len(names))
	for i, name := range names {
		out[i] = c.defs[name]
	}
	return out
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
