package domain

import (
	"time"
)

// EmailAddress is an address record split into local part and domain.
// Verification is proven by consuming an EmailVerificationToken.
type EmailAddress struct {
	// Idx is the unique identifier for the address record.
	Idx int64 `json:"idx"`

	// AddressLocal is the part before the "@".
	AddressLocal string `json:"address_local"`

	// AddressDomain is the part after the "@".
	AddressDomain string `json:"address_domain"`

	// OwnerIdx is the account the address belongs to, once claimed.
	OwnerIdx *int64 `json:"owner_idx"`

	// Verified indicates the address passed token verification.
	Verified bool `json:"verified"`

	// CreatedAt is the timestamp when the record was created.
	CreatedAt time.Time `json:"created_at"`
}

// String returns the full address.
func (e *EmailAddress) String() string {
	return e.AddressLocal + "@" + e.AddressDomain
}
