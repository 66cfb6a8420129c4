// Package web3 houses blockchain connectivity utilities used by the
// agent's chain actions. It defines the common client interface, chain
// snapshot types, and multi-chain configuration helpers so the action
// layer can query different networks uniformly.
package web3
