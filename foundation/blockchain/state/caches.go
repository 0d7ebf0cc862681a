package state

// Cache budget bounds in MiB. The block tree and coins databases get small
// fixed ceilings; everything left over goes to the in-memory coins layer
// where it buys the most.
const (
	MinDBCacheMiB      = 4
	DefaultDBCacheMiB  = 450
	MaxBlockDBCacheMiB = 2
	MaxCoinsDBCacheMiB = 8
)

// CacheSizes is the division of the configured memory budget across the
// three consumers, in bytes.
type CacheSizes struct {
	BlockTreeDB int
	CoinsDB     int
	Coins       int
}

// CalculateCacheSizes splits a total byte budget. The block tree database
// takes at most an eighth up to its ceiling, the coins database at most half
// of the remainder up to its ceiling, and the coins layer takes the rest.
func CalculateCacheSizes(totalBytes int) CacheSizes {
	if totalBytes < MinDBCacheMiB<<20 {
		totalBytes = MinDBCacheMiB << 20
	}

	var sizes CacheSizes

	sizes.BlockTreeDB = min(totalBytes/8, MaxBlockDBCacheMiB<<20)
	totalBytes -= sizes.BlockTreeDB

	sizes.CoinsDB = min(totalBytes/2, MaxCoinsDBCacheMiB<<20)
	totalBytes -= sizes.CoinsDB

	sizes.Coins = totalBytes

	return sizes
}
