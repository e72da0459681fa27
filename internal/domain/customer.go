// internal/domain/customer.go
package domain

import "time"

// Customer is a registered borrower. Customers are never hard deleted.
type Customer struct {
	Header
	Firstname      string     `json:"firstname"`
	Lastname       string     `json:"lastname"`
	Email          string     `json:"email,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	Street         string     `json:"street,omitempty"`
	PostalCode     string     `json:"postal_code,omitempty"`
	City           string     `json:"city,omitempty"`
	RegisteredOn   time.Time  `json:"registered_on"`
	RenewedOn      *time.Time `json:"renewed_on,omitempty"`
	HighlightColor string     `json:"highlight_color,omitempty"`
	Remark         string     `json:"remark,omitempty"`
}

func (*Customer) Kind() Kind { return KindCustomer }

// Name is the display name used in lists and error messages.
func (c *Customer) Name() string {
	switch {
	case c.Firstname == "":
		return c.Lastname
	case c.Lastname == "":
		return c.Firstname
	}
	return c.Firstname + " " + c.Lastname
}
