package journal

import "payment-platform/internal/money"

// Transfer moves available funds from one account to another.
func Transfer(from, to string, m money.Money, paymentID string) []Line {
	return []Line{
		{Kind: KindDebit, Side: SideDebit, Amount: m.Amount, Currency: m.Currency, AccountID: from, PaymentID: paymentID},
		{Kind: KindCredit, Side: SideCredit, Amount: m.Amount, Currency: m.Currency, AccountID: to, PaymentID: paymentID},
	}
}

// Hold reserves funds on an account (available to held).
func Hold(account string, m money.Money, paymentID, holdID string) []Line {
	return []Line{
		{Kind: KindHold, Side: SideDebit, Amount: m.Amount, Currency: m.Currency, AccountID: account, PaymentID: paymentID, ReferenceID: holdID},
		{Kind: KindHold, Side: SideCredit, Amount: m.Amount, Currency: m.Currency, AccountID: account, PaymentID: paymentID, ReferenceID: holdID},
	}
}

// Release returns held funds to available on the same account.
func Release(account string, m money.Money, paymentID, holdID string) []Line {
	return []Line{
		{Kind: KindRelease, Side: SideDebit, Amount: m.Amount, Currency: m.Currency, AccountID: account, PaymentID: paymentID, ReferenceID: holdID},
		{Kind: KindRelease, Side: SideCredit, Amount: m.Amount, Currency: m.Currency, AccountID: account, PaymentID: paymentID, ReferenceID: holdID},
	}
}

// Capture settles held funds on from into available funds on to.
func Capture(from, to string, m money.Money, paymentID, holdID string) []Line {
	return []Line{
		{Kind: KindRelease, Side: SideDebit, Amount: m.Amount, Currency: m.Currency, AccountID: from, PaymentID: paymentID, ReferenceID: holdID},
		{Kind: KindCredit, Side: SideCredit, Amount: m.Amount, Currency: m.Currency, AccountID: to, PaymentID: paymentID, ReferenceID: holdID},
	}
}

// Reverse undoes a Transfer(from, to): to is debited, from is credited.
func Reverse(from, to string, m money.Money, paymentID, referenceID string) []Line {
	return []Line{
		{Kind: KindReversal, Side: SideDebit, Amount: m.Amount, Currency: m.Currency, AccountID: to, PaymentID: paymentID, ReferenceID: referenceID},
		{Kind: KindReversal, Side: SideCredit, Amount: m.Amount, Currency: m.Currency, AccountID: from, PaymentID: paymentID, ReferenceID: referenceID},
	}
}

// Adjust credits (credit=true) or debits an account against the adjustments account.
func Adjust(account string, m money.Money, credit bool, referenceID string) []Line {
	debitAcct, creditAcct := AccountAdjustments, account
	if !credit {
		debitAcct, creditAcct = account, AccountAdjustments
	}
	return []Line{
		{Kind: KindAdjustment, Side: SideDebit, Amount: m.Amount, Currency: m.Currency, AccountID: debitAcct, ReferenceID: referenceID},
		{Kind: KindAdjustment, Side: SideCredit, Amount: m.Amount, Currency: m.Currency, AccountID: creditAcct, ReferenceID: referenceID},
	}
}
