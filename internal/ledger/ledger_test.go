package ledger

import (
	"errors"
	"testing"

	"github.com/talgya/venturesim/internal/bus"
	"github.com/talgya/venturesim/internal/money"
)

func seedCapital(t *testing.T, l *Ledger, amount money.Cents) {
	t.Helper()
	_, err := l.Post(0, "initial capital", []Line{
		{Account: Cash, Debit: amount},
		{Account: OwnerCapital, Credit: amount},
	})
	if err != nil {
		t.Fatalf("seed capital: %v", err)
	}
}

func TestPurchaseThenSale(t *testing.T) {
	l := New(nil)
	seedCapital(t, l, money.FromDollars(25000))

	// Purchase: inventory up, cash down.
	_, err := l.Post(1, "inventory purchase", []Line{
		{Account: Inventory, Debit: money.FromDollars(5000)},
		{Account: Cash, Credit: money.FromDollars(5000)},
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if got := l.Balance(Cash); got != money.FromDollars(20000) {
		t.Fatalf("cash after purchase = %s, want $20,000.00", got)
	}
	if got := l.Balance(Inventory); got != money.FromDollars(5000) {
		t.Fatalf("inventory after purchase = %s, want $5,000.00", got)
	}
	if err := l.VerifyIntegrity(); err != nil {
		t.Fatalf("integrity after purchase: %v", err)
	}

	// Sale: revenue plus cost-of-goods relief.
	_, err = l.Post(2, "sale", []Line{
		{Account: Cash, Debit: money.FromDollars(1200)},
		{Account: Sales, Credit: money.FromDollars(1200)},
		{Account: COGS, Debit: money.FromDollars(800)},
		{Account: Inventory, Credit: money.FromDollars(800)},
	})
	if err != nil {
		t.Fatalf("sale: %v", err)
	}

	checks := []struct {
		account AccountCode
		want    money.Cents
	}{
		{Cash, money.FromDollars(21200)},
		{Inventory, money.FromDollars(4200)},
		{Sales, money.FromDollars(1200)},
		{COGS, money.FromDollars(800)},
	}
	for _, c := range checks {
		if got := l.Balance(c.account); got != c.want {
			t.Fatalf("%s = %s, want %s", c.account, got, c.want)
		}
	}
	if err := l.VerifyIntegrity(); err != nil {
		t.Fatalf("integrity after sale: %v", err)
	}
}

func TestPostRejectsInvalidTransactionsWhole(t *testing.T) {
	cases := []struct {
		name  string
		lines []Line
	}{
		{"empty", nil},
		{"unknown account", []Line{
			{Account: "GOODWILL", Debit: 100},
			{Account: Cash, Credit: 100},
		}},
		{"unbalanced", []Line{
			{Account: Cash, Debit: 100},
			{Account: Sales, Credit: 99},
		}},
		{"negative amount", []Line{
			{Account: Cash, Debit: -100},
			{Account: Sales, Credit: -100},
		}},
		{"both sides set", []Line{
			{Account: Cash, Debit: 100, Credit: 100},
			{Account: Sales, Credit: 0},
		}},
		{"neither side set", []Line{
			{Account: Cash},
			{Account: Sales},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := New(nil)
			seedCapital(t, l, money.FromDollars(1000))
			before := l.Snapshot()

			_, err := l.Post(1, tc.name, tc.lines)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}

			after := l.Snapshot()
			if len(after.Transactions) != len(before.Transactions) {
				t.Fatalf("history grew on rejected transaction")
			}
			for i := range before.Accounts {
				if after.Accounts[i].Balance != before.Accounts[i].Balance {
					t.Fatalf("balance of %s changed on rejected transaction",
						before.Accounts[i].Code)
				}
			}
		})
	}
}

func TestVerifyIntegrityDetectsCorruption(t *testing.T) {
	l := New(nil)
	seedCapital(t, l, money.FromDollars(500))

	// Corrupt a balance directly, bypassing Post.
	l.accounts[Cash].Balance += 1

	err := l.VerifyIntegrity()
	var ierr *IntegrityError
	if !errors.As(err, &ierr) {
		t.Fatalf("err = %v, want *IntegrityError", err)
	}
	if ierr.Assets != money.FromDollars(500)+1 {
		t.Fatalf("reported assets = %s, want %s", ierr.Assets, money.FromDollars(500)+1)
	}
	if len(ierr.LastTxIDs) != 1 || ierr.LastTxIDs[0] != "tx-000001" {
		t.Fatalf("LastTxIDs = %v, want [tx-000001]", ierr.LastTxIDs)
	}
}

func TestPostPublishesTransactionPosted(t *testing.T) {
	b := bus.New()
	var posted []string
	b.Subscribe(bus.EventTransactionPosted, func(e bus.Event) {
		p, ok := e.Payload.(PostedPayload)
		if !ok {
			t.Fatalf("payload type = %T, want PostedPayload", e.Payload)
		}
		posted = append(posted, p.TxID)
	})

	l := New(b)
	seedCapital(t, l, money.FromDollars(100))

	if len(posted) != 1 || posted[0] != "tx-000001" {
		t.Fatalf("posted = %v, want [tx-000001]", posted)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	l := New(nil)
	seedCapital(t, l, money.FromDollars(300))
	snap := l.Snapshot()

	l2 := New(nil)
	if err := l2.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := l2.Balance(Cash); got != money.FromDollars(300) {
		t.Fatalf("restored cash = %s, want $300.00", got)
	}
	if l2.TxCount() != 1 {
		t.Fatalf("restored tx count = %d, want 1", l2.TxCount())
	}
	if err := l2.VerifyIntegrity(); err != nil {
		t.Fatalf("integrity after restore: %v", err)
	}
}
