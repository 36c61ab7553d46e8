// Package types holds the vocabulary shared by the execution engine, the
// versioned store, the aggregator engine and executor implementations:
// transaction indices and versions, state keys, transaction outputs, delta
// operations and the executor task contract.
package types
