// internal/ledger/deposit.go
package ledger

import (
	"github.com/shopspring/decimal"

	"lendnexus/internal/domain"
)

// RecordDepositReturn books amount as handed back to the customer.
func RecordDepositReturn(r *domain.Rental, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return domain.Invalidf("deposit return %s is negative", amount.StringFixed(2))
	}
	if r.DepositBack.Add(amount).GreaterThan(r.Deposit) {
		return &domain.DepositOverpayError{
			Deposit:     r.Deposit,
			DepositBack: r.DepositBack,
			Amount:      amount,
		}
	}
	r.DepositBack = r.DepositBack.Add(amount)
	return nil
}

// DepositOutstanding is the part of the deposit not yet handed back.
func DepositOutstanding(r *domain.Rental) decimal.Decimal {
	return r.Deposit.Sub(r.DepositBack)
}

// DepositFullyReconciled is informational only; it never gates closing.
func DepositFullyReconciled(r *domain.Rental) bool {
	return r.DepositBack.Equal(r.Deposit)
}
