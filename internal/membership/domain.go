// internal/membership/domain.go
package membership

import (
	"lendnexus/internal/domain"
	"lendnexus/internal/highlight"
)

// RegisterRequest describes a new customer. At least one of the names is
// required.
type RegisterRequest struct {
	Firstname      string `json:"firstname"`
	Lastname       string `json:"lastname"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Street         string `json:"street"`
	PostalCode     string `json:"postal_code"`
	City           string `json:"city"`
	HighlightColor string `json:"highlight_color"`
	Remark         string `json:"remark"`
}

// EditRequest changes the fields that are set.
type EditRequest struct {
	Firstname      *string `json:"firstname"`
	Lastname       *string `json:"lastname"`
	Email          *string `json:"email"`
	Phone          *string `json:"phone"`
	Street         *string `json:"street"`
	PostalCode     *string `json:"postal_code"`
	City           *string `json:"city"`
	HighlightColor *string `json:"highlight_color"`
	Remark         *string `json:"remark"`
}

// CustomerView is a customer with its resolved row color.
type CustomerView struct {
	*domain.Customer
	Name      string             `json:"name"`
	Highlight highlight.Resolved `json:"highlight"`
}
