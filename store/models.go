// Package store contains the GORM-backed SQLite models behind the object
// store.
//
// Every domain record (agents, backrooms, payment verifications, signature
// usage) is a JSON document addressed by a lowercase slash-delimited key,
// mirroring the bucket layout the frontend consumes:
//
//	agents/<id>.json
//	agents/<id>/messages/<ts>_<suffix>.json
//	backrooms/<id>.json
//	backrooms/<id>/summary.json
//	payments/agent-creation/<wallet>.json
//	payments/paid-agents/<wallet>/<agentId>.json
//	payments/signatures/<signature>.json
//	users/<publicKey>.json
package store

import (
	"gorm.io/gorm"
)

// Object is one stored JSON document. Keys are unique; writers either
// overwrite (Put) or insert-if-absent (PutIfAbsent, used by the replay
// guard's first-writer-wins reservation).
type Object struct {
	gorm.Model
	Key  string `gorm:"uniqueIndex;not null"`
	Data []byte `gorm:"not null"`
}

// TableName keeps the table name aligned with what the object store exposes.
func (Object) TableName() string {
	return "objects"
}
