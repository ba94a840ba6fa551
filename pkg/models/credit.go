package models

import "time"

// CreditPack is a purchasable prepaid bundle, defined by the upstream
// credits API and passed through unmodified.
type CreditPack struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Credits  int    `json:"credits"`
	PriceUSD int    `json:"price_usd"`
	Blurb    string `json:"blurb"`
}

// CreditOperation is one ledger entry from the upstream credits API.
type CreditOperation struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Amount    int       `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// CheckoutSession is the upstream response to a checkout request. The
// CheckoutURL must pass the trusted-domain check before it is handed out.
type CheckoutSession struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}
