package ledger

import "github.com/shopspring/decimal"

// SeedBalance is a test helper that opens the account if needed and overwrites its balance.
func SeedBalance(l *InMemory, userID int64, amount string) {
	l.Open(userID)
	l.balances[userID] = decimal.RequireFromString(amount)
}
