// Package ledger implements the double-entry accounting core of the
// simulation. Every monetary movement in the world is a balanced
// transaction posted here; balances exist only as the sum of posted lines.
package ledger

import "github.com/talgya/venturesim/internal/money"

// AccountType classifies an account within the accounting equation.
type AccountType int

const (
	Asset AccountType = iota
	Liability
	Equity
	Revenue
	Expense
)

// String returns the lowercase name of the account type.
func (t AccountType) String() string {
	switch t {
	case Asset:
		return "asset"
	case Liability:
		return "liability"
	case Equity:
		return "equity"
	case Revenue:
		return "revenue"
	case Expense:
		return "expense"
	}
	return "unknown"
}

// Side is the normal-balance side of an account.
type Side int

const (
	DebitNormal Side = iota
	CreditNormal
)

// NormalSide returns the side that increases an account of this type.
func (t AccountType) NormalSide() Side {
	switch t {
	case Asset, Expense:
		return DebitNormal
	default:
		return CreditNormal
	}
}

// AccountCode identifies an account in the fixed chart of accounts.
type AccountCode string

const (
	Cash        AccountCode = "CASH"
	Inventory   AccountCode = "INVENTORY"
	Receivables AccountCode = "RECEIVABLES"
	Prepaid     AccountCode = "PREPAID"

	Payables AccountCode = "PAYABLES"
	Accrued  AccountCode = "ACCRUED"
	Unearned AccountCode = "UNEARNED"

	OwnerCapital     AccountCode = "OWNER_CAPITAL"
	RetainedEarnings AccountCode = "RETAINED_EARNINGS"

	Sales       AccountCode = "SALES"
	OtherIncome AccountCode = "OTHER_INCOME"

	COGS         AccountCode = "COGS"
	Fulfillment  AccountCode = "FULFILLMENT"
	Advertising  AccountCode = "ADVERTISING"
	StorageFees  AccountCode = "STORAGE_FEES"
	OtherExpense AccountCode = "OTHER_EXPENSE"
)

// Account is one entry in the chart of accounts. Balance is kept in the
// account's natural sign: debits minus credits for debit-normal accounts,
// credits minus debits for credit-normal ones.
type Account struct {
	Code    AccountCode `json:"code"`
	Name    string      `json:"name"`
	Type    AccountType `json:"type"`
	Balance money.Cents `json:"balance"`
}

// chart is the fixed account set, in deterministic snapshot order.
var chart = []struct {
	code AccountCode
	name string
	typ  AccountType
}{
	{Cash, "Cash", Asset},
	{Inventory, "Inventory", Asset},
	{Receivables, "Accounts Receivable", Asset},
	{Prepaid, "Prepaid Expenses", Asset},
	{Payables, "Accounts Payable", Liability},
	{Accrued, "Accrued Liabilities", Liability},
	{Unearned, "Unearned Revenue", Liability},
	{OwnerCapital, "Owner Capital", Equity},
	{RetainedEarnings, "Retained Earnings", Equity},
	{Sales, "Sales Revenue", Revenue},
	{OtherIncome, "Other Income", Revenue},
	{COGS, "Cost of Goods Sold", Expense},
	{Fulfillment, "Fulfillment Fees", Expense},
	{Advertising, "Advertising", Expense},
	{StorageFees, "Storage Fees", Expense},
	{OtherExpense, "Other Expenses", Expense},
}
