package enums

import "fmt"

// Category classifies notifications by the domain that produced them.
type Category string

const (
	CategoryTransport   Category = "transport"
	CategoryDelivery    Category = "delivery"
	CategoryMarketplace Category = "marketplace"
	CategoryPayment     Category = "payment"
	CategoryChat        Category = "chat"
	CategoryLottery     Category = "lottery"
	CategorySystem      Category = "system"
)

var validCategories = []Category{
	CategoryTransport,
	CategoryDelivery,
	CategoryMarketplace,
	CategoryPayment,
	CategoryChat,
	CategoryLottery,
	CategorySystem,
}

// IsValid checks whether the given category matches the canonical enum.
func (c Category) IsValid() bool {
	for _, candidate := range validCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCategory converts raw strings into Category.
func ParseCategory(value string) (Category, error) {
	for _, candidate := range validCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid category %q", value)
}
