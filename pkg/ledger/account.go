package ledger

import "sync/atomic"

// Account holds one trader's funds in a single atomic cell. Settlements
// running on different goroutines debit the same account concurrently, so
// the debit path is a compare-and-retry loop instead of a mutex.
type Account struct {
	id      uint64
	balance atomic.Uint64
}

func NewAccount(id uint64) *Account {
	return &Account{id: id}
}

func (a *Account) ID() uint64 {
	return a.id
}

func (a *Account) Balance() uint64 {
	return a.balance.Load()
}

// Credit unconditionally adds amount to the balance.
func (a *Account) Credit(amount uint64) {
	a.balance.Add(amount)
}

// Debit subtracts amount if the balance covers it and reports whether the
// balance actually decreased. The read-compute-commit cycle restarts when
// another goroutine changed the balance in between, so concurrent debits
// can neither lose an update nor drive the balance negative.
func (a *Account) Debit(amount uint64) bool {
	for {
		current := a.balance.Load()
		next := current
		if current >= amount {
			next = current - amount
		}
		if a.balance.CompareAndSwap(current, next) {
			return next != current
		}
	}
}
