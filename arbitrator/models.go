package arbitrator

import (
	"time"

	"sealedcourt/account"
	"sealedcourt/ciphertext"
)

// Profile mirrors the arbitrators table. Profiles are never deleted; pausing
// only clears Active.
type Profile struct {
	Address            account.Address
	Active             bool
	Reputation         int64
	TotalDisputes      int64
	SuccessfulDisputes int64
	Identity           ciphertext.Handle
	Verified           bool
	RegisteredAt       time.Time
}
