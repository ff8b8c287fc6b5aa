// Package storage provides the optional delivery-stats persistence layer.
//
// It records one row per dispatched event (observability only; the relay
// core itself stays stateless) and can summarize the rows for the periodic
// digest. Two drivers exist: an append-only JSONL file and a sqlite
// database. An empty driver disables persistence entirely.
package storage
