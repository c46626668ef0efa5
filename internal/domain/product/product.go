package product

import "errors"

var (
	ErrNotFound      = errors.New("product: not found")
	ErrNameRequired  = errors.New("product: name is required")
	ErrPriceRequired = errors.New("product: price is required")
	ErrInvalidPrice  = errors.New("product: price must be zero or greater")
	ErrInvalidID     = errors.New("product: malformed id")
)

type Product struct {
	ID          string
	Name        string
	Description string
	Price       float64
}

func New(id, name, description string, price float64) (*Product, error) {
	if name == "" {
		return nil, ErrNameRequired
	}
	if price < 0 {
		return nil, ErrInvalidPrice
	}
	return &Product{
		ID:          id,
		Name:        name,
		Description: description,
		Price:       price,
	}, nil
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
