// Package web3 defines the chain capability every wallet operation goes
// through: contract reads, simulation, signed writes, native transfers and
// receipt polling. Concrete clients live in subpackages; chain and token
// definitions are loaded from YAML with Story mainnet built in.
package web3
