package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process ledger. Accounts are created implicitly when credited;
// only opened accounts count as payout destinations.
type Memory struct {
	mu       sync.Mutex
	balances map[uuid.UUID]uint64
	opened   map[uuid.UUID]bool
	frozen   map[uuid.UUID]bool
}

// NewMemory returns an empty ledger.
func NewMemory() *Memory {
	return &Memory{
		balances: make(map[uuid.UUID]uint64),
		opened:   make(map[uuid.UUID]bool),
		frozen:   make(map[uuid.UUID]bool),
	}
}

// Open registers a payable account and credits it with an initial balance. Fixtures only; it does not check for overflow.
func (m *Memory) Open(account uuid.UUID, balance uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened[account] = true
	m.balances[account] += balance
}

// OpenAccount is Open with the checks a caller-supplied balance needs.
func (m *Memory) OpenAccount(ctx context.Context, account uuid.UUID, balance uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[account]+balance < m.balances[account] {
		return fmt.Errorf("%w: balance overflow on %s", ErrTransferRejected, account)
	}
	m.opened[account] = true
	m.balances[account] += balance
	return nil
}

// AccountBalance is Balance for callers that go through Accounts.
func (m *Memory) AccountBalance(ctx context.Context, account uuid.UUID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return m.Balance(account), nil
}

// Freeze makes every transfer touching the account fail with ErrTransferRejected.
func (m *Memory) Freeze(account uuid.UUID, frozen bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if frozen {
		m.frozen[account] = true
	} else {
		delete(m.frozen, account)
	}
}

// Balance returns the current balance of an account.
func (m *Memory) Balance(account uuid.UUID) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account]
}

// Total sums every balance; it never changes across transfers.
func (m *Memory) Total() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum uint64
	for _, b := range m.balances {
		sum += b
	}
	return sum
}

// Transfer atomically moves amount from one account to another.
func (m *Memory) Transfer(ctx context.Context, from, to uuid.UUID, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == 0 || from == to {
		return fmt.Errorf("%w: %d from %s to %s", ErrTransferRejected, amount, from, to)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen[from] || m.frozen[to] {
		return fmt.Errorf("%w: account frozen", ErrTransferRejected)
	}
	if m.balances[from] < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientFunds, from, m.balances[from], amount)
	}
	if m.balances[to]+amount < m.balances[to] {
		return fmt.Errorf("%w: balance overflow on %s", ErrTransferRejected, to)
	}
	m.balances[from] -= amount
	m.balances[to] += amount
	return nil
}

// Destination returns the payable account for a player, which is the player's own account once opened.
func (m *Memory) Destination(ctx context.Context, player uuid.UUID) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.opened[player] || m.frozen[player] {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrNoDestination, player)
	}
	return player, nil
}

var _ Accounts = (*Memory)(nil)
