package cache

import "time"

// TTL constants for the series cache, by data class.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Daily bars: a full re-fetch per day is acceptable and keeps
	// backfills honest. The consolidated per-ticker snapshot uses this
	// class too, being bounded by its shortest-lived component.
	TTLDailyPrices = 24 * time.Hour

	// Quarterly statements update with filings; 45 days covers a filing
	// cycle with slack.
	TTLFundamentals = 45 * 24 * time.Hour
)
