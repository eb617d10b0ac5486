package models

// Verification is the outcome of checking a pilot against the payments platform.
type Verification struct {
	Verified bool
	Reason   string
}
