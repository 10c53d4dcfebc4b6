// Package chain houses blockchain connectivity utilities: the delegation
// contract client interface, multi-chain configuration helpers, and the
// provider registry. Implementations perform live reads of contract state
// so higher layers never act on a cached pause flag or signer authority.
package chain
