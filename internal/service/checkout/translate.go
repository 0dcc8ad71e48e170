package checkout

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	errPriceNegative = errors.New("must not be negative")
	errPriceTooLarge = errors.New("is too large")
)

var (
	currencyPattern = regexp.MustCompile(`^[A-Za-z]{3}$`)
	maxMinorUnits   = decimal.NewFromInt(math.MaxInt64)
)

// ToMinorUnits converts a major-unit price to minor units at two decimal places,
// rounding half away from zero.
func ToMinorUnits(price decimal.Decimal) (int64, error) {
	if price.IsNegative() {
		return 0, errPriceNegative
	}
	minor := price.Round(2).Shift(2)
	if minor.GreaterThan(maxMinorUnits) {
		return 0, errPriceTooLarge
	}
	return minor.IntPart(), nil
}

func (r Request) Validate() map[string]string {
	fields := make(map[string]string)

	if strings.TrimSpace(r.OrderID) == "" {
		fields["orderId"] = "is required"
	}
	if !currencyPattern.MatchString(r.Currency) {
		fields["currency"] = "must be a 3-letter ISO 4217 code"
	}
	if len(r.Items) == 0 {
		fields["items"] = "must contain at least one item"
	}

	for i, item := range r.Items {
		prefix := fmt.Sprintf("items[%d].", i)
		if strings.TrimSpace(item.Name) == "" {
			fields[prefix+"name"] = "is required"
		}
		if _, err := ToMinorUnits(item.Price); err != nil {
			fields[prefix+"price"] = err.Error()
		}
		if item.Quantity < 1 {
			fields[prefix+"quantity"] = "must be at least 1"
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

// Translate maps a checkout request to processor line items, one per request item
// in the same order.
func Translate(req Request) (LineItems, error) {
	if fields := req.Validate(); fields != nil {
		return LineItems{}, &ValidationError{Fields: fields}
	}

	items := make([]LineItem, len(req.Items))
	for i, item := range req.Items {
		// validated above
		amount, _ := ToMinorUnits(item.Price)
		items[i] = LineItem{
			Name:       item.Name,
			UnitAmount: amount,
			Quantity:   item.Quantity,
		}
	}

	return LineItems{
		OrderID:  req.OrderID,
		Currency: strings.ToLower(req.Currency),
		Items:    items,
		Metadata: map[string]string{MetadataOrderID: req.OrderID},
	}, nil
}
