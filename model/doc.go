// Package model defines stable boundary types for reporting retrieval
// outcomes as JSON.
//
// These structs are the only types intended for direct serialization by
// consumers. Field names and error codes are a compatibility surface.
package model
