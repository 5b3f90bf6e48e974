package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Address is the 20-byte identifier backing an account's main address,
// reusing go-ethereum's common.Address the way the teacher repo does for
// every account-keyed structure.
type Address = common.Address

// AccountID identifies an independent risk unit: a main address plus a
// sub-account index. The main address owns its sub-accounts, but each
// sub-account is margined and liquidated independently (§3).
type AccountID struct {
	Main Address
	Sub  uint32
}

func (a AccountID) String() string {
	if a.Sub == 0 {
		return a.Main.Hex()
	}
	return fmt.Sprintf("%s/%d", a.Main.Hex(), a.Sub)
}

// MainAccount returns the default (sub-account 0) identity for a main address.
func MainAccount(addr Address) AccountID {
	return AccountID{Main: addr}
}
