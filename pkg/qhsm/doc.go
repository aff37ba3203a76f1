// Package qhsm defines the contract an Active Object dispatches events
// into. The hierarchical state machine engine itself — UML-style nested
// states, entry/exit chains, history pseudostates — is out of scope: qhsm
// only describes the two calls qactive.Active needs (Init, Dispatch) and
// ships Flat, a minimal flat (non-hierarchical) reference implementation
// used by tests and the cmd/qfctl demo.
package qhsm
