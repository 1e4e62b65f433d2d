// Package catalog loads the static pet metadata shown next to registry
// state.
//
// A catalog is a list of pets in JSON or YAML. Every entry is validated
// against an embedded CUE schema before it is decoded, so a malformed
// catalog fails at startup with the offending path rather than rendering
// half-empty rows later.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/petadopt/internal/ir"
)

//go:embed schema.cue
var schemaCUE string

// Pet is one catalog entry. The id joins the entry against registry state.
type Pet struct {
	ID          ir.EntityID `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Age         int         `json:"age" yaml:"age"`
	Breed       string      `json:"breed" yaml:"breed"`
	Location    string      `json:"location" yaml:"location"`
	Description string      `json:"description" yaml:"description"`
	Picture     string      `json:"picture" yaml:"picture"`
}

// Catalog is an id-keyed, read-only set of pets.
type Catalog struct {
	pets []Pet
	byID map[ir.EntityID]int
}

// ValidationError reports a catalog entry that does not satisfy the schema.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("catalog: %s", e.Message)
	}
	return fmt.Sprintf("catalog: %s: %s", e.Path, e.Message)
}

// Load reads a catalog file. The format is chosen by extension:
// .json, .yaml or .yml.
func Load(path string) (*Catalog, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("catalog %s: unsupported extension (want .json, .yaml or .yml)", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a catalog. JSON is accepted as a subset of
// YAML.
//
// Entries are returned in ascending id order regardless of file order.
// Duplicate ids are rejected.
func Parse(data []byte) (*Catalog, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if raw == nil {
		raw = []any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile catalog schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Catalog")).Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, validationError(err)
	}

	var pets []Pet
	if err := v.Decode(&pets); err != nil {
		return nil, validationError(err)
	}

	return build(pets)
}

func build(pets []Pet) (*Catalog, error) {
	slices.SortStableFunc(pets, func(a, b Pet) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	c := &Catalog{pets: pets, byID: make(map[ir.EntityID]int, len(pets))}
	for i, p := range pets {
		if _, dup := c.byID[p.ID]; dup {
			return nil, &ValidationError{
				Path:    fmt.Sprintf("id %d", p.ID),
				Message: "duplicate pet id",
			}
		}
		c.byID[p.ID] = i
	}
	return c, nil
}

// validationError reduces a CUE error to its first entry with a path.
func validationError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	return &ValidationError{
		Path:    strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(format, args...),
	}
}

// Pets returns all entries in ascending id order.
func (c *Catalog) Pets() []Pet {
	return slices.Clone(c.pets)
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.pets)
}

// Get returns the entry for id.
func (c *Catalog) Get(id ir.EntityID) (Pet, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Pet{}, false
	}
	return c.pets[i], true
}
