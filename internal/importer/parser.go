// Package importer turns a bulk import document into typed catalog items.
package importer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/erazemk/jedilnik/internal/model"
)

// ErrFormat marks a document that cannot be imported at all.
var ErrFormat = errors.New("invalid import document")

// Result is the outcome of parsing one document.
type Result struct {
	Items   []model.Item
	Skipped int
}

// Parse decodes data into items in source order. Elements with a missing
// or unknown type, or that fail to decode, are dropped silently.
func Parse(data []byte) ([]model.Item, error) {
	res, err := ParseReport(data)
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// ParseReport is Parse that also counts dropped elements.
func ParseReport(data []byte) (Result, error) {
	res := Result{Items: []model.Item{}}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return res, nil
	}

	var root json.RawMessage
	if err := json.Unmarshal(trimmed, &root); err != nil {
		return Result{}, fmt.Errorf("%w: could not parse content: %v", ErrFormat, err)
	}

	elements, err := rootElements(root)
	if err != nil {
		return Result{}, err
	}

	for _, raw := range elements {
		item, ok := decodeElement(raw)
		if !ok {
			res.Skipped++
			continue
		}
		res.Items = append(res.Items, item)
	}
	return res, nil
}

// rootElements accepts a bare array or an object wrapping it in "items".
func rootElements(root json.RawMessage) ([]json.RawMessage, error) {
	switch firstByte(root) {
	case '[':
		var elements []json.RawMessage
		if err := json.Unmarshal(root, &elements); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		return elements, nil
	case '{':
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(root, &wrapper); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		inner, ok := wrapper["items"]
		if ok && firstByte(inner) == '[' {
			var elements []json.RawMessage
			if err := json.Unmarshal(inner, &elements); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrFormat, err)
			}
			return elements, nil
		}
		return nil, fmt.Errorf("%w: expected a JSON array at the root or an \"items\" array, got object", ErrFormat)
	default:
		return nil, fmt.Errorf("%w: expected a JSON array at the root or an \"items\" array", ErrFormat)
	}
}

func firstByte(raw json.RawMessage) byte {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

// decodeElement returns false for anything that should be skipped.
func decodeElement(raw json.RawMessage) (model.Item, bool) {
	if firstByte(raw) != '{' {
		return nil, false
	}

	var head struct {
		Type json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil || head.Type == nil {
		return nil, false
	}
	var typ string
	if err := json.Unmarshal(head.Type, &typ); err != nil {
		return nil, false
	}

	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "restaurant":
		return decodeRestaurant(raw)
	case "menuitem", "menu_item", "menu-item":
		return decodeMenuItem(raw)
	default:
		return nil, false
	}
}

type restaurantDoc struct {
	ID                flexString `json:"id"`
	Name              string     `json:"name"`
	OwnerEmailAddress string     `json:"ownerEmailAddress"`
	OwnerEmail        string     `json:"ownerEmail"`
	Status            string     `json:"status"`
	Description       string     `json:"description"`
	Address           string     `json:"address"`
	Phone             string     `json:"phone"`
	ImageFileName     string     `json:"imageFileName"`
}

func decodeRestaurant(raw json.RawMessage) (model.Item, bool) {
	var doc restaurantDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false
	}

	status, ok := model.NormalizeStatus(doc.Status)
	if !ok {
		return nil, false
	}

	owner := doc.OwnerEmailAddress
	if owner == "" {
		owner = doc.OwnerEmail
	}

	return &model.Restaurant{
		ExternalID:  string(doc.ID),
		Name:        doc.Name,
		OwnerEmail:  strings.TrimSpace(owner),
		Status:      status,
		Description: doc.Description,
		Address:     doc.Address,
		Phone:       doc.Phone,
		ImageRef:    doc.ImageFileName,
	}, true
}

type menuItemDoc struct {
	ID            flexString      `json:"id"`
	Title         string          `json:"title"`
	Price         decimal.Decimal `json:"price"`
	Currency      *string         `json:"currency"`
	RestaurantID  flexString      `json:"restaurantId"`
	Status        string          `json:"status"`
	ImageFileName string          `json:"imageFileName"`
}

func decodeMenuItem(raw json.RawMessage) (model.Item, bool) {
	var doc menuItemDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false
	}

	if doc.Price.IsNegative() {
		return nil, false
	}
	status, ok := model.NormalizeStatus(doc.Status)
	if !ok {
		return nil, false
	}

	currency := model.DefaultCurrency
	if doc.Currency != nil && strings.TrimSpace(*doc.Currency) != "" {
		currency = strings.ToUpper(strings.TrimSpace(*doc.Currency))
		if !isCurrencyCode(currency) {
			return nil, false
		}
	}

	return &model.MenuItem{
		ExternalID:           string(doc.ID),
		Title:                doc.Title,
		Price:                doc.Price.Round(2),
		Currency:             currency,
		ExternalRestaurantID: string(doc.RestaurantID),
		Status:               status,
		ImageRef:             doc.ImageFileName,
	}, true
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, c := range s {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

// flexString accepts an external id written as a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}
