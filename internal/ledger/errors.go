package ledger

import (
	"fmt"

	"github.com/talgya/venturesim/internal/money"
)

// ValidationError rejects a malformed or unbalanced transaction. The
// transaction is discarded whole; the run continues.
type ValidationError struct {
	Memo   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid transaction %q: %s", e.Memo, e.Reason)
}

// IntegrityError reports a violation of the accounting equation. Callers
// treat it as fatal: the run halts and no further postings are accepted.
type IntegrityError struct {
	Assets      money.Cents
	Liabilities money.Cents
	Equity      money.Cents
	Revenue     money.Cents
	Expenses    money.Cents
	LastTxIDs   []string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf(
		"accounting equation violated: assets %s != liabilities %s + equity %s + revenue %s - expenses %s",
		e.Assets, e.Liabilities, e.Equity, e.Revenue, e.Expenses,
	)
}
