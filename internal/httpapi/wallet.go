package httpapi

import (
	"net/http"
	"time"

	"payment-platform/internal/apperr"
	"payment-platform/internal/journal"
	"payment-platform/internal/money"
	"payment-platform/internal/wallet"

	"github.com/gin-gonic/gin"
)

// --- Wallet ---

// GetWallet returns the caller's wallet with every currency balance.
func (h Handlers) GetWallet(c *gin.Context) {
	who := callerOf(c)
	w, balances, err := h.Payments.GetWallet(c.Request.Context(), who.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	if balances == nil {
		balances = []wallet.Balance{}
	}
	c.JSON(http.StatusOK, gin.H{"wallet": w, "balances": balances})
}

// CheckBalance answers whether the caller could currently pay amount.
// The answer is advisory; the debit itself re-checks under lock.
func (h Handlers) CheckBalance(c *gin.Context) {
	who := callerOf(c)
	in := moneyInput{Amount: c.Query("amount"), Currency: c.Query("currency")}
	m, err := in.money()
	if err != nil {
		respondError(c, err)
		return
	}
	ok, err := wallet.HasSufficientBalance(c.Request.Context(), h.Payments, who.UserID, m)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sufficient": ok, "amount": m, "advisory": true})
}

// --- Journal ---

// accountParam resolves the account to report on. Only finance may look
// beyond the caller's own wallet account.
func accountParam(c *gin.Context) (string, string, error) {
	who := callerOf(c)
	account := c.Query("account")
	if account == "" {
		account = journal.WalletAccount(who.UserID)
	}
	if account != journal.WalletAccount(who.UserID) && !who.privileged() {
		return "", "", apperr.New(apperr.CodeNotFound, "account %s not found", account)
	}
	cur, err := money.NormalizeCurrency(c.Query("currency"))
	if err != nil {
		return "", "", apperr.Validation("%v", err)
	}
	return account, cur, nil
}

// JournalBalance derives a balance from journal entries, optionally as of a past instant.
func (h Handlers) JournalBalance(c *gin.Context) {
	account, cur, err := accountParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var asOf time.Time
	if raw := c.Query("as_of"); raw != "" {
		asOf, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(c, apperr.Validation("as_of must be RFC3339"))
			return
		}
	}
	b, err := h.Payments.JournalBalance(c.Request.Context(), account, cur, asOf)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// VerifyJournal recomputes entry signatures on an account.
func (h Handlers) VerifyJournal(c *gin.Context) {
	account, cur, err := accountParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	bad, err := h.Payments.VerifyAccount(c.Request.Context(), account, cur)
	if err != nil {
		respondError(c, err)
		return
	}
	if bad == nil {
		bad = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"account_id": account, "currency": cur, "valid": len(bad) == 0, "tampered_entry_ids": bad})
}
