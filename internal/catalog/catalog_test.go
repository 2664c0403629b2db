package catalog

import (
	"testing"

	"github.com/dukerupert/handover"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Len(t, c.Phases, 2)
	assert.Equal(t, 20, c.ItemCount(handover.PhaseOnDelivery))
	assert.Equal(t, 8, c.ItemCount(handover.PhaseTestDrive))
}

func TestCatalog_Sections(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	sections := c.Sections()
	require.NotEmpty(t, sections)

	totals := handover.RecomputeTotals(sections)
	assert.Equal(t, 28, totals.Total)
	assert.Equal(t, 0, totals.Completed)

	for _, s := range sections {
		for _, it := range s.Items {
			assert.Equal(t, s.Stage, it.Stage, it.ID)
			assert.Equal(t, handover.ItemPending, it.Status, it.ID)
			assert.NotEmpty(t, it.Category, it.ID)
			assert.NotEmpty(t, it.EvidenceRequired, it.ID)
		}
	}

	first := sections[0].Items[0]
	assert.Equal(t, "vin-match", first.ID)
	assert.Equal(t, "Documentation & Identity", first.Category)

	t.Run("copies do not alias", func(t *testing.T) {
		a := c.Sections()
		a[0].Items[0].Status = handover.ItemFailed
		a[0].Items[0].Links[0] = "changed"

		b := c.Sections()
		assert.Equal(t, handover.ItemPending, b[0].Items[0].Status)
		assert.NotEqual(t, "changed", b[0].Items[0].Links[0])
	})
}

func TestCatalog_CategoryOverride(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	p, ok := c.Phase(handover.PhaseOnDelivery)
	require.True(t, ok)

	var found bool
	for _, s := range p.Sections {
		if s.ID == "electronics-static" {
			found = true
			assert.Equal(t, "Electronics & Software", s.Items[0].Category)
		}
	}
	assert.True(t, found)
}

func TestParse(t *testing.T) {
	t.Run("duplicate ids", func(t *testing.T) {
		doc := `
phases:
  - phase: on_delivery
    sections:
      - id: a
        name: A
        items:
          - id: x
          - id: x
`
		_, err := Parse([]byte(doc))
		assert.ErrorContains(t, err, "duplicate item id")
	})

	t.Run("unknown phase", func(t *testing.T) {
		_, err := Parse([]byte("phases:\n  - phase: final\n"))
		assert.Error(t, err)
	})

	t.Run("missing id", func(t *testing.T) {
		doc := `
phases:
  - phase: test_drive
    sections:
      - id: a
        name: A
        items:
          - name: nameless
`
		_, err := Parse([]byte(doc))
		assert.ErrorContains(t, err, "has no id")
	})
}
