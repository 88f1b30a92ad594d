package clmmengine

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Ledger is the external token-balance boundary a pool settles swaps
// and liquidity moves against. It mirrors an on-chain ERC-20 transfer
// surface without any of the networking.
type Ledger interface {
	BalanceOf(owner, token common.Address) (decimal.Decimal, error)
	TransferToken(from, to, token common.Address, amount decimal.Decimal) error
	ReceiveToken(to, token common.Address, amount decimal.Decimal) error
}

type account struct {
	balances map[common.Address]decimal.Decimal
}

// InMemoryLedger is a reference Ledger: one account per address, each
// holding a balance per token, with atomic transfer-or-fail semantics.
type InMemoryLedger struct {
	mu       sync.Mutex
	accounts map[common.Address]*account
}

// NewInMemoryLedger returns an empty ledger.
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{accounts: make(map[common.Address]*account)}
}

func (l *InMemoryLedger) getOrCreate(addr common.Address) *account {
	a, ok := l.accounts[addr]
	if !ok {
		a = &account{balances: make(map[common.Address]decimal.Decimal)}
		l.accounts[addr] = a
	}
	return a
}

// SetBalance forces an account's balance for a token, for test setup.
func (l *InMemoryLedger) SetBalance(owner, token common.Address, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.getOrCreate(owner).balances[token] = amount
}

// BalanceOf returns owner's balance of token.
func (l *InMemoryLedger) BalanceOf(owner, token common.Address) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[owner]
	if !ok {
		return decimal.Zero, nil
	}
	return a.balances[token], nil
}

// TransferToken moves amount of token from `from` to `to`, failing the
// whole operation (and changing nothing) if `from` is undercollateralized.
func (l *InMemoryLedger) TransferToken(from, to, token common.Address, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sender := l.getOrCreate(from)
	if sender.balances[token].LessThan(amount) {
		return ErrInsufficientBalance
	}
	sender.balances[token] = sender.balances[token].Sub(amount)

	recipient := l.getOrCreate(to)
	recipient.balances[token] = recipient.balances[token].Add(amount)
	return nil
}

// ReceiveToken credits amount of token to `to` without debiting any
// other account, modeling a deposit from outside the ledger.
func (l *InMemoryLedger) ReceiveToken(to, token common.Address, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	recipient := l.getOrCreate(to)
	recipient.balances[token] = recipient.balances[token].Add(amount)
	return nil
}
