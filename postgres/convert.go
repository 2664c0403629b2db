package postgres

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/handover"
	"github.com/jackc/pgx/v5/pgtype"
)

// Timestamp conversions

// toPgTimestamp converts a time.Time to pgtype.Timestamptz.
func toPgTimestamp(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}

// fromPgTimestamp converts a pgtype.Timestamptz to time.Time.
func fromPgTimestamp(t pgtype.Timestamptz) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}

// fromPgTimestampPtr converts a pgtype.Timestamptz to a time pointer (nil if not valid).
func fromPgTimestampPtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

// Text conversions

// fromPgText converts a pgtype.Text to string.
func fromPgText(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

// stringPtr converts a pointer to a string-kinded value to *string.
func stringPtr[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

// JSON document conversions

// inspectionDocs holds the JSONB columns of an inspection row.
type inspectionDocs struct {
	sections   []byte
	onDelivery []byte
	testDrive  []byte
}

func marshalInspectionDocs(i *handover.Inspection) (inspectionDocs, error) {
	var (
		d   inspectionDocs
		err error
	)
	sections := i.Sections
	if sections == nil {
		sections = []handover.Section{}
	}
	if d.sections, err = json.Marshal(sections); err != nil {
		return d, err
	}
	if d.onDelivery, err = json.Marshal(i.OnDelivery); err != nil {
		return d, err
	}
	if d.testDrive, err = json.Marshal(i.TestDrive); err != nil {
		return d, err
	}
	return d, nil
}

func (d inspectionDocs) unmarshalInto(i *handover.Inspection) error {
	if err := json.Unmarshal(d.sections, &i.Sections); err != nil {
		return err
	}
	if err := json.Unmarshal(d.onDelivery, &i.OnDelivery); err != nil {
		return err
	}
	return json.Unmarshal(d.testDrive, &i.TestDrive)
}

// replacePlaceholder swaps the first "?" for "$n".
func replacePlaceholder(clause string, n int) string {
	return strings.Replace(clause, "?", "$"+strconv.Itoa(n), 1)
}
