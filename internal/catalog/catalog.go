// Package catalog provides the static pre-delivery checklist.
//
// The checklist is embedded as YAML and parsed once. Callers receive fresh
// copies of the section tree so seeding an inspection never aliases catalog
// data.
package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/dukerupert/handover"
	"gopkg.in/yaml.v3"
)

//go:embed checklist.yaml
var checklistYAML []byte

// Catalog is the parsed checklist.
type Catalog struct {
	Phases []PhaseDef `yaml:"phases" json:"phases"`
}

// PhaseDef describes one phase and its sections.
type PhaseDef struct {
	Phase       handover.Phase `yaml:"phase" json:"phase"`
	Title       string         `yaml:"title" json:"title"`
	Description string         `yaml:"description" json:"description"`

	// Evidence is the default evidence guidance for items of this phase.
	Evidence string       `yaml:"evidence" json:"evidence"`
	Sections []sectionDef `yaml:"sections" json:"sections"`
}

type sectionDef struct {
	handover.Section `yaml:",inline"`

	// Category overrides the section name as the item category.
	Category string `yaml:"category" json:"category,omitempty"`
}

var loadDefault = sync.OnceValues(func() (*Catalog, error) {
	return Parse(checklistYAML)
})

// Default returns the embedded checklist.
func Default() (*Catalog, error) {
	return loadDefault()
}

// Parse decodes and checks a checklist document. Item IDs must be unique
// across all phases.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing checklist: %w", err)
	}

	seen := make(map[string]bool)
	for p := range c.Phases {
		ph := &c.Phases[p]
		if _, err := handover.ParsePhase(string(ph.Phase)); err != nil {
			return nil, fmt.Errorf("checklist phase %d: %w", p, err)
		}
		for s := range ph.Sections {
			sec := &ph.Sections[s]
			sec.Stage = ph.Phase
			category := sec.Category
			if category == "" {
				category = sec.Name
			}
			for j := range sec.Items {
				it := &sec.Items[j]
				if it.ID == "" {
					return nil, fmt.Errorf("checklist section %q: item %d has no id", sec.ID, j)
				}
				if seen[it.ID] {
					return nil, fmt.Errorf("checklist: duplicate item id %q", it.ID)
				}
				seen[it.ID] = true

				it.Stage = ph.Phase
				if it.Category == "" {
					it.Category = category
				}
				if it.EvidenceRequired == "" {
					it.EvidenceRequired = ph.Evidence
				}
			}
		}
	}
	return &c, nil
}

// Phase returns the definition of one phase.
func (c *Catalog) Phase(phase handover.Phase) (PhaseDef, bool) {
	for _, p := range c.Phases {
		if p.Phase == phase {
			return p, true
		}
	}
	return PhaseDef{}, false
}

// Sections returns a fresh section tree for a new inspection, in phase
// order, with every item pending.
func (c *Catalog) Sections() []handover.Section {
	var out []handover.Section
	for _, p := range c.Phases {
		for _, sd := range p.Sections {
			sec := sd.Section
			sec.Items = make([]handover.Item, len(sd.Items))
			for j, it := range sd.Items {
				it.Status = handover.ItemPending
				it.Notes = ""
				it.Media = nil
				it.Links = append([]string(nil), it.Links...)
				sec.Items[j] = it
			}
			out = append(out, sec)
		}
	}
	return out
}

// ItemCount returns the number of items in a phase.
func (c *Catalog) ItemCount(phase handover.Phase) int {
	p, ok := c.Phase(phase)
	if !ok {
		return 0
	}
	var n int
	for _, s := range p.Sections {
		n += len(s.Items)
	}
	return n
}
