package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/dukerupert/handover"
	"github.com/go-playground/validator/v10"
)

// Validator validates request structs with go-playground/validator and
// reports failures as handover EINVALID errors with per-field messages.
//
// Usage in server.go:
//
//	e.Validator = validation.NewValidator()
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator that names fields by their JSON tag and
// knows the domain enums.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("itemstatus", func(fl validator.FieldLevel) bool {
		_, err := handover.ParseItemStatus(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("ordernumber", func(fl validator.FieldLevel) bool {
		return ValidOrderNumber(fl.Field().String())
	})

	return &Validator{validate: v}
}

// Validate implements echo.Validator.
//
// Usage in handlers:
//
//	var req ItemUpdateRequest
//	if err := c.Bind(&req); err != nil {
//	    return err
//	}
//	if err := c.Validate(&req); err != nil {
//	    return err
//	}
func (v *Validator) Validate(i any) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return handover.Invalid("Invalid request")
	}

	return handover.ErrorWithFields(FormatValidationErrors(verrs))
}

// ItemUpdateRequest patches one checklist item.
type ItemUpdateRequest struct {
	Status *string `json:"status" validate:"omitempty,itemstatus"`
	Notes  *string `json:"notes" validate:"omitempty,max=4000"`
}

// PhaseCompleteRequest signs a phase. The signature is usually a PNG data
// URI captured on the tablet.
type PhaseCompleteRequest struct {
	Signature string `json:"signature" validate:"required,max=2000000"`
}

// CreateInspectionRequest opens an inspection for an order. When VIN is
// empty the order details are looked up on the server; when Sections is
// empty the checklist is seeded from the catalog.
type CreateInspectionRequest struct {
	OrderNumber        string    `json:"orderNumber" validate:"required,max=64,ordernumber"`
	VIN                string    `json:"vin" validate:"max=32"`
	VehicleModel       string    `json:"vehicleModel" validate:"max=200"`
	VehicleColor       string    `json:"vehicleColor" validate:"max=200"`
	CustomerName       string    `json:"customerName" validate:"max=200"`
	CustomerEmail      string    `json:"customerEmail" validate:"omitempty,email,max=255"`
	SalesRepEmail      string    `json:"salesRepEmail" validate:"omitempty,email,max=255"`
	RepresentativeName string    `json:"representativeName" validate:"max=200"`
	DeliveryDate       time.Time `json:"deliveryDate"`
	Language           string    `json:"language" validate:"omitempty,bcp47_language_tag"`

	Sections []handover.Section `json:"sections"`
}

// Order returns the order details carried by the request.
func (r *CreateInspectionRequest) Order() *handover.Order {
	return &handover.Order{
		OrderNumber:   r.OrderNumber,
		VIN:           r.VIN,
		VehicleModel:  r.VehicleModel,
		VehicleColor:  r.VehicleColor,
		CustomerName:  r.CustomerName,
		CustomerEmail: r.CustomerEmail,
		SalesRepEmail: r.SalesRepEmail,
		DeliveryDate:  r.DeliveryDate,
	}
}

// UpdateInspectionRequest is the partial update accepted by PUT.
type UpdateInspectionRequest struct {
	Sections            []handover.Section `json:"sections"`
	TestDriveKilometers *int               `json:"testDriveKilometers" validate:"omitempty,gte=0,lte=10000"`
	CustomerEmail       *string            `json:"customerEmail" validate:"omitempty,email,max=255"`
	RepresentativeName  *string            `json:"representativeName" validate:"omitempty,max=200"`
	Language            *string            `json:"language" validate:"omitempty,bcp47_language_tag"`
}

// FormatValidationErrors converts validator errors to user-friendly messages
// keyed by JSON field name.
//
// Example output:
//
//	{
//	  "customerEmail": "must be a valid email address",
//	  "status": "must be one of: pending, passed, failed"
//	}
func FormatValidationErrors(err error) map[string]string {
	out := make(map[string]string)

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["_error"] = err.Error()
		return out
	}

	for _, fe := range verrs {
		field := fe.Field()
		isString := fe.Kind() == reflect.String

		switch fe.Tag() {
		case "required":
			out[field] = "is required"
		case "email":
			out[field] = "must be a valid email address"
		case "min":
			if isString {
				out[field] = fmt.Sprintf("must be at least %s characters", fe.Param())
			} else {
				out[field] = fmt.Sprintf("must be at least %s", fe.Param())
			}
		case "max":
			if isString {
				out[field] = fmt.Sprintf("must be no more than %s characters", fe.Param())
			} else {
				out[field] = fmt.Sprintf("must be no more than %s", fe.Param())
			}
		case "gte":
			out[field] = fmt.Sprintf("must be greater than or equal to %s", fe.Param())
		case "lte":
			out[field] = fmt.Sprintf("must be less than or equal to %s", fe.Param())
		case "oneof":
			out[field] = fmt.Sprintf("must be one of: %s", fe.Param())
		case "itemstatus":
			out[field] = "must be one of: pending, passed, failed"
		case "ordernumber":
			out[field] = "must contain only letters, digits, dashes, and underscores"
		case "bcp47_language_tag":
			out[field] = "must be a language tag such as en or zh"
		default:
			out[field] = fmt.Sprintf("failed validation: %s", fe.Tag())
		}
	}

	return out
}

// ValidOrderNumber reports whether s can be used as an order number in
// storage keys and draft file names.
func ValidOrderNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '-' || r == '_' || r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))) {
			return false
		}
	}
	return true
}

// SanitizeInput trims whitespace and drops control characters other than
// tab and newline.
//
// Usage:
//
//	notes := validation.SanitizeInput(*req.Notes)
func SanitizeInput(input string) string {
	input = strings.TrimSpace(input)

	var b strings.Builder
	for _, r := range input {
		if r == '\t' || r == '\n' || r == '\r' || !unicode.IsControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
