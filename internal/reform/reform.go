// Package reform defines the catalog of policy reform scenarios the
// regression harness evaluates.
//
// Reforms are declared in CUE files. Each entry carries a dense 1-based
// identifier, a name, and an opaque parameter-override object that is handed
// to the external calculation engine untouched. The harness never interprets
// parameter semantics; it only needs the identifiers to be dense and unique
// so result files, shard assignment, and the baseline all line up.
package reform

import (
	"fmt"
	"sort"
)

// Reform is one named alternative policy parameter set.
type Reform struct {
	// ID is the dense 1-based reform identifier. It keys the reform's
	// result file and its row in the baseline.
	ID int `json:"id"`

	// Name uniquely labels the reform for humans.
	Name string `json:"name"`

	// Description explains what the reform changes.
	Description string `json:"description,omitempty"`

	// Params holds the policy parameter overrides, passed verbatim to the
	// engine as JSON.
	Params map[string]any `json:"params"`
}

// Catalog is the full ordered set of reforms for one regression run.
type Catalog struct {
	Reforms []Reform
}

// Len returns the number of reforms in the catalog.
func (c *Catalog) Len() int {
	return len(c.Reforms)
}

// ByID returns the reform with the given identifier.
func (c *Catalog) ByID(id int) (Reform, bool) {
	for _, rf := range c.Reforms {
		if rf.ID == id {
			return rf, true
		}
	}
	return Reform{}, false
}

// validate checks identifier density and name uniqueness, then sorts the
// catalog by id so iteration order matches aggregation order.
func (c *Catalog) validate() error {
	if len(c.Reforms) == 0 {
		return fmt.Errorf("catalog contains no reforms")
	}
	seenID := make(map[int]bool, len(c.Reforms))
	seenName := make(map[string]bool, len(c.Reforms))
	for i, rf := range c.Reforms {
		if rf.ID < 1 || rf.ID > len(c.Reforms) {
			return fmt.Errorf("reform %q: id %d outside 1..%d", rf.Name, rf.ID, len(c.Reforms))
		}
		if seenID[rf.ID] {
			return fmt.Errorf("duplicate reform id %d", rf.ID)
		}
		seenID[rf.ID] = true
		if rf.Name == "" {
			return fmt.Errorf("reforms[%d]: name is required", i)
		}
		if seenName[rf.Name] {
			return fmt.Errorf("duplicate reform name %q", rf.Name)
		}
		seenName[rf.Name] = true
	}
	sort.Slice(c.Reforms, func(i, j int) bool {
		return c.Reforms[i].ID < c.Reforms[j].ID
	})
	return nil
}
