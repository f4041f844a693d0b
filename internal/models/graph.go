// Package models defines the typed records exchanged between tutorcore stores
// and the engines built on top of them.
package models

import "time"

// Default values applied when a caller leaves a field empty.
const (
	DefaultNodeType   = "concept"
	DefaultRelation   = "links_to"
	DefaultConfidence = 0.5
)

// Provenance entity types.
const (
	EntityNode = "node"
	EntityEdge = "edge"
)

// KGNode is a concept in the knowledge graph. Name is globally unique and
// resolved case-insensitively by lookups.
type KGNode struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Definition string    `json:"definition,omitempty"`
	NodeType   string    `json:"node_type"`
	SourcePath string    `json:"source_path,omitempty"`
	LinkOnly   bool      `json:"link_only"`
	CreatedAt  time.Time `json:"created_at"`

	// IsSeed is set by retrieval for nodes resolved directly from the query.
	// It is never persisted.
	IsSeed bool `json:"is_seed"`
}

// KGEdge is a directed relation between two nodes.
type KGEdge struct {
	ID           int64     `json:"id"`
	SourceNodeID int64     `json:"source_node_id"`
	TargetNodeID int64     `json:"target_node_id"`
	Relation     string    `json:"relation"`
	Confidence   float64   `json:"confidence"`
	LinkOnly     bool      `json:"link_only"`
	CreatedAt    time.Time `json:"created_at"`
}

// Other returns the endpoint of e that is not id.
func (e KGEdge) Other(id int64) int64 {
	if e.SourceNodeID == id {
		return e.TargetNodeID
	}
	return e.SourceNodeID
}

// KGProvenance records where a graph fact came from. Append-only.
type KGProvenance struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id"`
	SourceType string    `json:"source_type"`
	SourceRef  string    `json:"source_ref"`
	CreatedAt  time.Time `json:"created_at"`
}

// NoteMetadata is a lightweight description of a vault file.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
