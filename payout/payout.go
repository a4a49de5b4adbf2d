// Package payout moves escrowed funds out of the court: pushed transfers to
// dispute parties, and a credit balance they can pull when a push fails.
package payout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sealedcourt/account"
)

var (
	ErrTransferRejected  = errors.New("payout: transfer rejected by recipient")
	ErrNothingToWithdraw = errors.New("payout: nothing to withdraw")
)

// Transferer sends native value. Implementations must honour ctx deadlines
// and treat a repeated non-empty ref as already paid.
type Transferer interface {
	Transfer(ctx context.Context, ref string, to account.Address, amount uint64) error
}

// Transfer is one completed payment.
type Transfer struct {
	Ref    string
	To     account.Address
	Amount uint64
	At     time.Time
}

// Vault is an in-memory Transferer that records every payment. Recipients
// can be configured to reject or stall, standing in for contracts that
// revert or exhaust their gas.
type Vault struct {
	mu        sync.Mutex
	transfers []Transfer
	paid      map[account.Address]uint64
	reject    map[account.Address]error
	stall     map[account.Address]bool
	refs      map[string]bool
	now       func() time.Time
}

func NewVault() *Vault {
	return &Vault{
		paid:   make(map[account.Address]uint64),
		reject: make(map[account.Address]error),
		stall:  make(map[account.Address]bool),
		refs:   make(map[string]bool),
		now:    time.Now,
	}
}

// Reject makes transfers to addr fail with err, or ErrTransferRejected when nil.
func (v *Vault) Reject(addr account.Address, err error) {
	if err == nil {
		err = ErrTransferRejected
	}
	v.mu.Lock()
	v.reject[addr] = err
	v.mu.Unlock()
}

// Stall makes transfers to addr block until their context ends.
func (v *Vault) Stall(addr account.Address) {
	v.mu.Lock()
	v.stall[addr] = true
	v.mu.Unlock()
}

// Accept clears any rejection or stall for addr.
func (v *Vault) Accept(addr account.Address) {
	v.mu.Lock()
	delete(v.reject, addr)
	delete(v.stall, addr)
	v.mu.Unlock()
}

func (v *Vault) Transfer(ctx context.Context, ref string, to account.Address, amount uint64) error {
	v.mu.Lock()
	if ref != "" && v.refs[ref] {
		v.mu.Unlock()
		return nil
	}
	rejectErr := v.reject[to]
	stall := v.stall[to]
	v.mu.Unlock()

	if stall {
		<-ctx.Done()
		return fmt.Errorf("payout: transfer to %s: %w", to, ctx.Err())
	}
	if rejectErr != nil {
		return fmt.Errorf("payout: transfer to %s: %w", to, rejectErr)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("payout: transfer to %s: %w", to, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if ref != "" {
		if v.refs[ref] {
			return nil
		}
		v.refs[ref] = true
	}
	v.transfers = append(v.transfers, Transfer{Ref: ref, To: to, Amount: amount, At: v.now()})
	v.paid[to] += amount
	return nil
}

// Paid returns the total successfully transferred to addr.
func (v *Vault) Paid(addr account.Address) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paid[addr]
}

// Transfers returns a copy of the payment log.
func (v *Vault) Transfers() []Transfer {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Transfer(nil), v.transfers...)
}

// TotalPaid sums every successful transfer.
func (v *Vault) TotalPaid() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	var total uint64
	for _, t := range v.transfers {
		total += t.Amount
	}
	return total
}
