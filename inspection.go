package handover

import (
	"context"
	"strings"
	"time"
)

// Phase identifies one of the two sequential inspection stages. An item's
// discovery stage is the phase it belongs to.
type Phase string

const (
	PhaseOnDelivery Phase = "on_delivery"
	PhaseTestDrive  Phase = "test_drive"
)

// Phases lists the inspection phases in the order they are performed.
var Phases = []Phase{PhaseOnDelivery, PhaseTestDrive}

// ParsePhase accepts the canonical phase names plus the camel-case and
// hyphenated spellings used by clients.
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "on_delivery", "ondelivery":
		return PhaseOnDelivery, nil
	case "test_drive", "testdrive":
		return PhaseTestDrive, nil
	default:
		return "", Invalid("Unknown phase %q", s)
	}
}

// Title returns a display name for the phase.
func (p Phase) Title() string {
	switch p {
	case PhaseOnDelivery:
		return "On Delivery"
	case PhaseTestDrive:
		return "Test Drive"
	default:
		return string(p)
	}
}

// ItemStatus is the inspection result of a single checklist item.
type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemPassed  ItemStatus = "passed"
	ItemFailed  ItemStatus = "failed"
)

// ParseItemStatus validates a status supplied by a client.
func ParseItemStatus(s string) (ItemStatus, error) {
	switch st := ItemStatus(s); st {
	case ItemPending, ItemPassed, ItemFailed:
		return st, nil
	default:
		return "", Invalid("Unknown item status %q", s)
	}
}

// PhaseStatus is the completion state of one phase.
type PhaseStatus string

const (
	PhaseStatusPending   PhaseStatus = "pending"
	PhaseStatusCompleted PhaseStatus = "completed"

	// PhaseStatusApproved is accepted by the store but no operation
	// transitions a phase into it.
	PhaseStatusApproved PhaseStatus = "approved"
)

// Status is the overall progress of an inspection.
type Status string

const (
	StatusOnDeliveryPending   Status = "on_delivery_pending"
	StatusOnDeliveryCompleted Status = "on_delivery_completed"
	StatusTestDrivePending    Status = "test_drive_pending"
	StatusTestDriveCompleted  Status = "test_drive_completed"
	StatusFinalCompleted      Status = "final_completed"
)

// IsTerminal returns true once the inspection is final. No further item
// mutation is expected after this point.
func (s Status) IsTerminal() bool {
	return s == StatusFinalCompleted
}

// Item is a single checklist entry.
type Item struct {
	ID                string            `json:"id" yaml:"id"`
	Name              string            `json:"name" yaml:"name"`
	Description       string            `json:"description" yaml:"description"`
	Category          string            `json:"category" yaml:"category"`
	Stage             Phase             `json:"stage" yaml:"stage"`
	Status            ItemStatus        `json:"status" yaml:"-"`
	Notes             string            `json:"notes" yaml:"-"`
	Media             []MediaAttachment `json:"media" yaml:"-"`
	EvidenceRequired  string            `json:"evidenceRequired" yaml:"evidence"`
	SuggestedSolution string            `json:"suggestedSolution" yaml:"solution"`
	Links             []string          `json:"links" yaml:"links"`
}

// Section groups items for display. It has no lifecycle of its own.
type Section struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Stage Phase  `json:"stage" yaml:"stage"`
	Items []Item `json:"items" yaml:"items"`
}

// PhaseRecord holds the sign-off state of one phase.
type PhaseRecord struct {
	Status      PhaseStatus `json:"status"`
	Signature   string      `json:"signature,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// Inspection is the aggregate root for one vehicle handover. It owns its
// section/item tree and phase signatures. Media and reports reference it by
// ID but are stored separately.
type Inspection struct {
	ID                 int64     `json:"id"`
	OrderNumber        string    `json:"orderNumber"`
	VIN                string    `json:"vin"`
	VehicleModel       string    `json:"vehicleModel"`
	VehicleColor       string    `json:"vehicleColor"`
	CustomerName       string    `json:"customerName"`
	CustomerEmail      string    `json:"customerEmail"`
	SalesRepEmail      string    `json:"salesRepEmail"`
	RepresentativeName string    `json:"representativeName,omitempty"`
	DeliveryDate       time.Time `json:"deliveryDate"`
	Language           string    `json:"language"`
	Status             Status    `json:"status"`
	Sections           []Section `json:"sections"`

	OnDelivery PhaseRecord `json:"onDelivery"`
	TestDrive  PhaseRecord `json:"testDrive"`

	TestDriveKilometers int `json:"testDriveKilometers"`

	// Computed counters. Only RecomputeTotals writes these.
	TotalItems     int `json:"totalItems"`
	CompletedItems int `json:"completedItems"`
	FailedItems    int `json:"failedItems"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewInspection seeds an inspection for an order from catalog sections.
func NewInspection(order *Order, sections []Section) *Inspection {
	i := &Inspection{
		OrderNumber:   order.OrderNumber,
		VIN:           order.VIN,
		VehicleModel:  order.VehicleModel,
		VehicleColor:  order.VehicleColor,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		SalesRepEmail: order.SalesRepEmail,
		DeliveryDate:  order.DeliveryDate,
		Language:      DefaultLanguage,
		Status:        StatusOnDeliveryPending,
		Sections:      sections,
		OnDelivery:    PhaseRecord{Status: PhaseStatusPending},
		TestDrive:     PhaseRecord{Status: PhaseStatusPending},
	}
	i.applyTotals()
	return i
}

// DefaultLanguage is used for notifications when none is chosen.
const DefaultLanguage = "en"

// Totals are the derived item counters of an inspection.
type Totals struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// RecomputeTotals counts items across all sections. An item is completed
// when its status is anything but pending.
func RecomputeTotals(sections []Section) Totals {
	var t Totals
	for _, s := range sections {
		for _, it := range s.Items {
			t.Total++
			switch it.Status {
			case ItemPending:
			case ItemFailed:
				t.Completed++
				t.Failed++
			case ItemPassed:
				t.Completed++
			default:
				t.Completed++
			}
		}
	}
	return t
}

func (i *Inspection) applyTotals() {
	t := RecomputeTotals(i.Sections)
	i.TotalItems = t.Total
	i.CompletedItems = t.Completed
	i.FailedItems = t.Failed
}

// Totals returns the current counters.
func (i *Inspection) Totals() Totals {
	return Totals{Total: i.TotalItems, Completed: i.CompletedItems, Failed: i.FailedItems}
}

// ItemPatch is a partial update of one item. Nil fields are left unchanged.
// AppendMedia is additive: applying the same patch twice adds the media twice.
type ItemPatch struct {
	Status      *ItemStatus
	Notes       *string
	AppendMedia []MediaAttachment
}

// UpdateItem merges patch into the item at the given position and recomputes
// the counters. Status values are not validated here.
func (i *Inspection) UpdateItem(sectionIdx, itemIdx int, patch ItemPatch) error {
	if sectionIdx < 0 || sectionIdx >= len(i.Sections) {
		return Invalid("Section %d does not exist", sectionIdx)
	}
	items := i.Sections[sectionIdx].Items
	if itemIdx < 0 || itemIdx >= len(items) {
		return Invalid("Item %d does not exist in section %d", itemIdx, sectionIdx)
	}

	it := &items[itemIdx]
	if patch.Status != nil {
		it.Status = *patch.Status
	}
	if patch.Notes != nil {
		it.Notes = *patch.Notes
	}
	if len(patch.AppendMedia) > 0 {
		it.Media = append(it.Media, patch.AppendMedia...)
	}

	i.applyTotals()
	return nil
}

// UpdateItemByID is UpdateItem addressed by catalog item ID.
func (i *Inspection) UpdateItemByID(itemID string, patch ItemPatch) error {
	s, j, ok := i.ItemIndex(itemID)
	if !ok {
		return NotFound("Item %q not found", itemID)
	}
	return i.UpdateItem(s, j, patch)
}

// ItemIndex locates an item by ID.
func (i *Inspection) ItemIndex(itemID string) (sectionIdx, itemIdx int, ok bool) {
	for s := range i.Sections {
		for j := range i.Sections[s].Items {
			if i.Sections[s].Items[j].ID == itemID {
				return s, j, true
			}
		}
	}
	return 0, 0, false
}

// Item returns a copy of the item with the given ID.
func (i *Inspection) Item(itemID string) (Item, bool) {
	s, j, ok := i.ItemIndex(itemID)
	if !ok {
		return Item{}, false
	}
	return i.Sections[s].Items[j], true
}

// PhaseItems returns the items whose discovery stage is phase.
func (i *Inspection) PhaseItems(phase Phase) []Item {
	var items []Item
	for _, s := range i.Sections {
		for _, it := range s.Items {
			if it.Stage == phase {
				items = append(items, it)
			}
		}
	}
	return items
}

// PhaseTotals counts only the items of one phase.
func (i *Inspection) PhaseTotals(phase Phase) Totals {
	return RecomputeTotals([]Section{{Items: i.PhaseItems(phase)}})
}

// PhaseRecord returns the sign-off record for phase, or nil for an unknown
// phase.
func (i *Inspection) PhaseRecord(phase Phase) *PhaseRecord {
	switch phase {
	case PhaseOnDelivery:
		return &i.OnDelivery
	case PhaseTestDrive:
		return &i.TestDrive
	default:
		return nil
	}
}

// CanCompletePhase reports whether every item of the phase has a result and
// the phase itself is still pending.
func (i *Inspection) CanCompletePhase(phase Phase) bool {
	rec := i.PhaseRecord(phase)
	if rec == nil || rec.Status != PhaseStatusPending {
		return false
	}
	for _, it := range i.PhaseItems(phase) {
		if it.Status == ItemPending {
			return false
		}
	}
	return true
}

// CompletePhase records the signature and advances the overall status. The
// test drive cannot be signed while it is locked. Completing the on-delivery
// phase unlocks it. Completing the
// test drive makes the inspection final; the caller runs report completion.
func (i *Inspection) CompletePhase(phase Phase, signature string, now time.Time) error {
	if signature == "" {
		return Invalid("Signature is required")
	}
	if phase == PhaseTestDrive && !i.TestDriveUnlocked() {
		return Invalid("The on-delivery phase must be signed first")
	}
	if !i.CanCompletePhase(phase) {
		return Invalid("Phase %s cannot be completed yet", phase.Title())
	}

	rec := i.PhaseRecord(phase)
	completedAt := now
	rec.Status = PhaseStatusCompleted
	rec.Signature = signature
	rec.CompletedAt = &completedAt

	switch phase {
	case PhaseOnDelivery:
		i.Status = StatusTestDrivePending
	case PhaseTestDrive:
		i.Status = StatusFinalCompleted
	}
	return nil
}

// TestDriveUnlocked reports whether the test drive may begin.
func (i *Inspection) TestDriveUnlocked() bool {
	return i.OnDelivery.Status == PhaseStatusCompleted || i.OnDelivery.Status == PhaseStatusApproved
}

// ItemRef addresses an item within the section tree.
type ItemRef struct {
	SectionIndex int    `json:"sectionIndex"`
	ItemIndex    int    `json:"itemIndex"`
	ItemID       string `json:"itemId"`
}

// ItemsNeedingEvidence lists failed items with no attached media. This is
// advisory and never blocks phase completion.
func (i *Inspection) ItemsNeedingEvidence() []ItemRef {
	var refs []ItemRef
	for s, sec := range i.Sections {
		for j, it := range sec.Items {
			if EvidenceRequired(it) {
				refs = append(refs, ItemRef{SectionIndex: s, ItemIndex: j, ItemID: it.ID})
			}
		}
	}
	return refs
}

// Clone returns a deep copy of the inspection.
func (i *Inspection) Clone() *Inspection {
	c := *i
	c.Sections = make([]Section, len(i.Sections))
	for s, sec := range i.Sections {
		c.Sections[s] = sec
		c.Sections[s].Items = make([]Item, len(sec.Items))
		for j, it := range sec.Items {
			it.Media = append([]MediaAttachment(nil), it.Media...)
			it.Links = append([]string(nil), it.Links...)
			c.Sections[s].Items[j] = it
		}
	}
	c.OnDelivery = i.OnDelivery.clone()
	c.TestDrive = i.TestDrive.clone()
	return &c
}

func (r PhaseRecord) clone() PhaseRecord {
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		r.CompletedAt = &t
	}
	return r
}

// InspectionService defines operations for managing inspections.
type InspectionService interface {
	// FindInspectionByID retrieves an inspection by its ID.
	// Returns ENOTFOUND if the inspection does not exist.
	FindInspectionByID(ctx context.Context, id int64) (*Inspection, error)

	// FindInspectionByOrderNumber retrieves the inspection for an order.
	// Returns ENOTFOUND if the order has no inspection yet.
	FindInspectionByOrderNumber(ctx context.Context, orderNumber string) (*Inspection, error)

	// FindInspections retrieves inspections matching the filter criteria.
	// Returns the matching inspections and total count.
	FindInspections(ctx context.Context, filter InspectionFilter) ([]*Inspection, int, error)

	// CreateInspection creates a new inspection.
	// Returns ECONFLICT if the order already has an inspection.
	CreateInspection(ctx context.Context, inspection *Inspection) error

	// UpdateInspection merges the non-nil fields of upd into the inspection.
	// Counters are recomputed whenever sections change.
	// Returns ENOTFOUND if the inspection does not exist.
	UpdateInspection(ctx context.Context, id int64, upd InspectionUpdate) (*Inspection, error)

	// DeleteInspection deletes an inspection and its media and report records.
	// Returns ENOTFOUND if the inspection does not exist.
	DeleteInspection(ctx context.Context, id int64) error
}

// InspectionFilter defines criteria for filtering inspections.
type InspectionFilter struct {
	ID          *int64
	OrderNumber *string
	Status      *Status

	// Pagination
	Offset int
	Limit  int
}

// InspectionUpdate defines fields that can be updated on an inspection.
type InspectionUpdate struct {
	Status              *Status      `json:"status,omitempty"`
	Sections            []Section    `json:"sections,omitempty"`
	OnDelivery          *PhaseRecord `json:"onDelivery,omitempty"`
	TestDrive           *PhaseRecord `json:"testDrive,omitempty"`
	TestDriveKilometers *int         `json:"testDriveKilometers,omitempty"`
	CustomerEmail       *string      `json:"customerEmail,omitempty"`
	SalesRepEmail       *string      `json:"salesRepEmail,omitempty"`
	RepresentativeName  *string      `json:"representativeName,omitempty"`
	Language            *string      `json:"language,omitempty"`
}

// Apply merges the update into i.
func (u InspectionUpdate) Apply(i *Inspection) {
	if u.Status != nil {
		i.Status = *u.Status
	}
	if u.Sections != nil {
		i.Sections = u.Sections
		i.applyTotals()
	}
	if u.OnDelivery != nil {
		i.OnDelivery = *u.OnDelivery
	}
	if u.TestDrive != nil {
		i.TestDrive = *u.TestDrive
	}
	if u.TestDriveKilometers != nil {
		i.TestDriveKilometers = *u.TestDriveKilometers
	}
	if u.CustomerEmail != nil {
		i.CustomerEmail = *u.CustomerEmail
	}
	if u.SalesRepEmail != nil {
		i.SalesRepEmail = *u.SalesRepEmail
	}
	if u.RepresentativeName != nil {
		i.RepresentativeName = *u.RepresentativeName
	}
	if u.Language != nil {
		i.Language = *u.Language
	}
}

// ProgressUpdate builds the update that persists the full mutable state of i:
// item tree, phase records, and overall status.
func ProgressUpdate(i *Inspection) InspectionUpdate {
	c := i.Clone()
	return InspectionUpdate{
		Status:     &c.Status,
		Sections:   c.Sections,
		OnDelivery: &c.OnDelivery,
		TestDrive:  &c.TestDrive,
	}
}
