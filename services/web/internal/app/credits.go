package app

import (
	"context"

	"waifugen/pkg/domain"
)

const ledgerPageSize = 50

// CreditsView is the response of GET /credits.
type CreditsView struct {
	RemainingCreations int                  `json:"remainingCreations"`
	Entries            []domain.LedgerEntry `json:"entries"`
}

// Balance returns the user's remaining creations.
func (a *App) Balance(ctx context.Context, userID string) (int, error) {
	return a.store.GetBalance(ctx, userID)
}

// HasSufficientBalance gates paid actions. A non-positive cost counts as one credit.
func (a *App) HasSufficientBalance(ctx context.Context, userID string, cost int) (bool, error) {
	if cost <= 0 {
		cost = 1
	}
	balance, err := a.store.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance >= cost, nil
}

// Credits returns the balance with the most recent ledger entries.
func (a *App) Credits(ctx context.Context, userID string) (CreditsView, error) {
	balance, err := a.store.GetBalance(ctx, userID)
	if err != nil {
		return CreditsView{}, err
	}
	entries, err := a.store.ListLedger(ctx, userID, ledgerPageSize)
	if err != nil {
		return CreditsView{}, err
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	return CreditsView{RemainingCreations: balance, Entries: entries}, nil
}
