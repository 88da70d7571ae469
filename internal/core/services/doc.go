// Package services implements the core pipeline: ingestion (prepare,
// chunk, embed, persist), search (vector, hybrid, context expansion),
// query-intent gating and answer generation. Services depend only on the
// driven ports; infrastructure is injected.
package services
