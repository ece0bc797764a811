package ledger

const (
	// AccountStorageOverhead is the per-account size charged on top of its data.
	AccountStorageOverhead = 128

	// LamportsPerByteYear is the rent rate.
	LamportsPerByteYear = 3480

	// ExemptionYears is the number of years of rent an exempt balance covers.
	ExemptionYears = 2
)

// MinimumBalance returns the balance that makes an account of size bytes
// rent exempt.
func MinimumBalance(size int) uint64 {
	return uint64(AccountStorageOverhead+size) * LamportsPerByteYear * ExemptionYears
}
