package badge

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
)

// Catalog is an immutable, validated set of badge definitions.
type Catalog struct {
	defs []Definition
	byID map[string]int
}

// InvalidRecord reports a catalog entry that was skipped at load time.
type InvalidRecord struct {
	ID   string
	Name string
	Err  error
}

// BuildCatalog validates every record. Records with malformed criteria or
// duplicate ids/names are skipped and returned in the second value; the rest
// form the catalog. Definitions keep the input order.
func BuildCatalog(records []Record) (*Catalog, []InvalidRecord) {
	c := &Catalog{byID: make(map[string]int, len(records))}
	names := make(map[string]struct{}, len(records))
	var invalid []InvalidRecord

	for _, r := range records {
		def, err := NewDefinition(r)
		if err == nil {
			if _, dup := c.byID[def.ID]; dup {
				err = shared.NewDomainError("badge", "LoadCatalog", shared.ErrAlreadyExists, "duplicate badge id "+def.ID)
			} else if _, dup := names[strings.ToLower(def.Name)]; dup {
				err = shared.WrapError("badge", "LoadCatalog", shared.ErrInvalidCriteria, "duplicate badge name "+def.Name, shared.ErrDuplicateBadgeName)
			}
		}
		if err != nil {
			invalid = append(invalid, InvalidRecord{ID: r.ID, Name: r.Name, Err: err})
			continue
		}
		c.byID[def.ID] = len(c.defs)
		names[strings.ToLower(def.Name)] = struct{}{}
		c.defs = append(c.defs, def)
	}

	return c, invalid
}

// EmptyCatalog returns a catalog with no badges.
func EmptyCatalog() *Catalog {
	return &Catalog{byID: map[string]int{}}
}

// All returns every definition, active or not.
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Active returns the active definitions.
func (c *Catalog) Active() []Definition {
	out := make([]Definition, 0, len(c.defs))
	for _, d := range c.defs {
		if d.IsActive {
			out = append(out, d)
		}
	}
	return out
}

// Get returns a definition by id.
func (c *Catalog) Get(id string) (Definition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	return len(c.defs)
}

// ══════════════════════════════════════════════════════════════════════════════
// YAML SEED FILES
// ══════════════════════════════════════════════════════════════════════════════

type catalogFile struct {
	Badges []Record `yaml:"badges"`
}

// LoadRecordsYAML reads a seed file of the form
//
//	badges:
//	  - id: first-steps
//	    name: First Steps
//	    type: attendance
//	    criteria: {events_required: 1}
//	    points_reward: 10
//	    is_active: true
//
// Only the YAML shape is checked here; use BuildCatalog to validate criteria.
func LoadRecordsYAML(r io.Reader) ([]Record, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("badge: decode catalog: %w", err)
	}
	return f.Badges, nil
}
