// Package account holds the identity type shared by every ledger record.
package account

import "strings"

// Address identifies a caller, a dispute party or an arbitrator. The zero
// value is the null address.
type Address string

// Zero is the null address.
const Zero Address = ""

// Parse normalises user input into an Address.
func Parse(s string) Address {
	return Address(strings.ToLower(strings.TrimSpace(s)))
}

func (a Address) IsZero() bool {
	return strings.TrimSpace(string(a)) == ""
}

func (a Address) String() string {
	return string(a)
}
