package shared

import "fmt"

// SettlementLockKey builds redis keys for the settlement critical section of one
// counterparty, period and bill kind.
func SettlementLockKey(counterpartyID, period, kind string) string {
	return fmt.Sprintf("settlement:%s:%s:%s:lock", kind, period, counterpartyID)
}
