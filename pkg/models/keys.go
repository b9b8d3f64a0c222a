package models

import "time"

// KeyStatus shows usage of a single credential in a rotation pool.
// Only a fingerprint of the credential is exposed.
type KeyStatus struct {
	Index       int       `json:"index"`
	Fingerprint string    `json:"fingerprint"`
	UsageCount  int       `json:"usage_count"`
	LastUsedAt  time.Time `json:"last_used_at,omitzero"`
	Current     bool      `json:"current"`
	OverQuota   bool      `json:"over_quota"`
}
