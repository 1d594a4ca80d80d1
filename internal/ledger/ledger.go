package ledger

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/talgya/venturesim/internal/bus"
	"github.com/talgya/venturesim/internal/money"
)

// Line is one side of a transaction. Exactly one of Debit or Credit must
// be positive; the other must be zero.
type Line struct {
	Account AccountCode `json:"account"`
	Debit   money.Cents `json:"debit"`
	Credit  money.Cents `json:"credit"`
}

// Transaction is an ordered set of lines that nets to zero. Immutable once
// posted. IDs are sequence numbers so replayed runs produce identical
// histories.
type Transaction struct {
	ID    string      `json:"id"`
	Tick  uint64      `json:"tick"`
	Memo  string      `json:"memo"`
	Lines []Line      `json:"lines"`
	Total money.Cents `json:"total"` // sum of debit sides
}

// PostedPayload is the bus payload published after a successful post.
type PostedPayload struct {
	TxID  string
	Memo  string
	Total money.Cents
}

// EventType implements bus.Payload.
func (PostedPayload) EventType() bus.EventType { return bus.EventTransactionPosted }

// Ledger holds the chart of accounts, running balances, and the append-only
// transaction history. All mutation is serialized through one mutex so no
// reader ever observes a partially applied transaction.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[AccountCode]*Account
	order    []AccountCode
	history  []Transaction
	bus      *bus.Bus
}

// New creates a ledger with an initialized chart of accounts. Initialization
// is idempotent by construction: the fixed chart is created exactly once,
// with every balance at zero.
func New(b *bus.Bus) *Ledger {
	l := &Ledger{
		accounts: make(map[AccountCode]*Account, len(chart)),
		order:    make([]AccountCode, 0, len(chart)),
		bus:      b,
	}
	for _, c := range chart {
		if _, ok := l.accounts[c.code]; ok {
			continue
		}
		l.accounts[c.code] = &Account{Code: c.code, Name: c.name, Type: c.typ}
		l.order = append(l.order, c.code)
	}
	return l
}

// Balance returns the current natural-sign balance of one account.
func (l *Ledger) Balance(code AccountCode) money.Cents {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if a, ok := l.accounts[code]; ok {
		return a.Balance
	}
	return 0
}

// TxCount returns the number of posted transactions.
func (l *Ledger) TxCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.history)
}

// Post validates the transaction and applies every line atomically. A
// transaction that fails any check is discarded whole; balances are
// untouched and a *ValidationError describes the first violation.
func (l *Ledger) Post(tick uint64, memo string, lines []Line) (Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(lines) == 0 {
		return Transaction{}, &ValidationError{Memo: memo, Reason: "no lines"}
	}

	var debits, credits money.Cents
	for i, ln := range lines {
		if _, ok := l.accounts[ln.Account]; !ok {
			return Transaction{}, &ValidationError{Memo: memo,
				Reason: fmt.Sprintf("line %d: unknown account %q", i, ln.Account)}
		}
		if ln.Debit < 0 || ln.Credit < 0 {
			return Transaction{}, &ValidationError{Memo: memo,
				Reason: fmt.Sprintf("line %d: negative amount", i)}
		}
		if (ln.Debit > 0) == (ln.Credit > 0) {
			return Transaction{}, &ValidationError{Memo: memo,
				Reason: fmt.Sprintf("line %d: exactly one of debit or credit must be set", i)}
		}
		debits += ln.Debit
		credits += ln.Credit
	}
	if debits != credits {
		return Transaction{}, &ValidationError{Memo: memo,
			Reason: fmt.Sprintf("unbalanced: debits %s != credits %s", debits, credits)}
	}

	tx := Transaction{
		ID:    fmt.Sprintf("tx-%06d", len(l.history)+1),
		Tick:  tick,
		Memo:  memo,
		Lines: append([]Line(nil), lines...),
		Total: debits,
	}

	for _, ln := range tx.Lines {
		acct := l.accounts[ln.Account]
		switch acct.Type.NormalSide() {
		case DebitNormal:
			acct.Balance += ln.Debit - ln.Credit
		case CreditNormal:
			acct.Balance += ln.Credit - ln.Debit
		}
	}
	l.history = append(l.history, tx)

	if l.bus != nil {
		l.bus.Publish(bus.Event{
			Type:    bus.EventTransactionPosted,
			Tick:    tick,
			Origin:  "ledger",
			Payload: PostedPayload{TxID: tx.ID, Memo: memo, Total: debits},
		})
	}
	return tx, nil
}

// integrityContextTxs is how many recent transaction ids accompany an
// integrity failure report.
const integrityContextTxs = 10

// VerifyIntegrity recomputes the accounting equation from current balances
// with zero tolerance. Revenue and expenses fold into the equity side as
// undistributed earnings. A violation is logged with the full breakdown and
// returned as a fatal *IntegrityError.
func (l *Ledger) VerifyIntegrity() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var assets, liabilities, equity, revenue, expenses money.Cents
	for _, code := range l.order {
		a := l.accounts[code]
		switch a.Type {
		case Asset:
			assets += a.Balance
		case Liability:
			liabilities += a.Balance
		case Equity:
			equity += a.Balance
		case Revenue:
			revenue += a.Balance
		case Expense:
			expenses += a.Balance
		}
	}

	if assets == liabilities+equity+revenue-expenses {
		return nil
	}

	start := len(l.history) - integrityContextTxs
	if start < 0 {
		start = 0
	}
	ids := make([]string, 0, integrityContextTxs)
	for _, tx := range l.history[start:] {
		ids = append(ids, tx.ID)
	}

	err := &IntegrityError{
		Assets:      assets,
		Liabilities: liabilities,
		Equity:      equity,
		Revenue:     revenue,
		Expenses:    expenses,
		LastTxIDs:   ids,
	}
	slog.Error("ledger integrity check failed",
		"assets", assets,
		"liabilities", liabilities,
		"equity", equity,
		"revenue", revenue,
		"expenses", expenses,
		"tx_count", len(l.history),
		"last_tx_ids", ids,
	)
	return err
}

// Snapshot is a consistent, serializable copy of the ledger: balances in
// chart order plus the full transaction log.
type Snapshot struct {
	Accounts     []Account     `json:"accounts"`
	Transactions []Transaction `json:"transactions"`
}

// Snapshot returns a deep copy taken under the read lock.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := Snapshot{
		Accounts:     make([]Account, 0, len(l.order)),
		Transactions: make([]Transaction, len(l.history)),
	}
	for _, code := range l.order {
		snap.Accounts = append(snap.Accounts, *l.accounts[code])
	}
	copy(snap.Transactions, l.history)
	return snap
}

// Restore replaces the ledger's balances and history from a snapshot.
// Used when resuming a persisted run.
func (l *Ledger) Restore(snap Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, a := range snap.Accounts {
		acct, ok := l.accounts[a.Code]
		if !ok {
			return fmt.Errorf("restore: unknown account %q", a.Code)
		}
		acct.Balance = a.Balance
	}
	l.history = append([]Transaction(nil), snap.Transactions...)
	return nil
}
