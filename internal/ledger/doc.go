// Package ledger reconciles platform fees that were not collected at the
// time of sale (cash and other out-of-band channels) against revenue
// collected later through digital payments.
//
// Every mutation flows through the Engine, which serializes concurrent
// writers per owner with a revision-checked compare-and-swap against the
// stored account and appends one immutable entry per financial event. After
// every operation the account satisfies
//
//	RemainingOwedCents == TotalAccruedCents - TotalSettledCents >= 0
//
// and the signed sum over the owner's entries reproduces the same value.
package ledger
