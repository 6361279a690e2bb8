// Package model defines shared data types used across the trade feed relay.
//
// Conventions:
//   - Prices and quantities: decimal.Decimal (exact, no float drift)
//   - Timestamps: UTC time.Time, microsecond precision
//   - IDs: string trade IDs as delivered by the upstream feed
package model
