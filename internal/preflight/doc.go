// Package preflight checks that the machine and project can host an index:
// the document directory is readable, the storage directory is writable
// with enough free space, no other process holds the index, and the
// configured embedder answers.
//
// Required checks block indexing when they fail. The embedder check is
// advisory because retrieval degrades to lexical search without it.
package preflight
