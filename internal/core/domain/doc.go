// Package domain contains the core entities of the retrieval pipeline:
// knowledge bases, chunks, search results and the errors shared across
// services and adapters. It has no dependencies on infrastructure.
package domain
