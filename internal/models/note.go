// Package models defines the domain types for roamorg.
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Link types recorded in the node index.
const (
	LinkTypeID   = "id"
	LinkTypeCite = "cite"
)

// Node is a uniquely identified unit of content. Level 0 nodes span a whole
// file; deeper levels are headlines inside one.
type Node struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	File  string   `json:"file"` // relative to the roam directory
	Level int      `json:"level"`
	Pos   int      `json:"pos"` // 1-based headline line, 0 for file nodes
	Tags  []string `json:"tags"`
}

// HasTag reports whether the node carries tag.
func (n *Node) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Link represents a directed edge between a node and a destination.
// Dest is a node id for "id" links and a citation key for "cite" links.
type Link struct {
	Source string `json:"source"`
	Dest   string `json:"dest"`
	Type   string `json:"type"`
}

// Ref associates a node with an external reference such as a citation key.
type Ref struct {
	NodeID string `json:"node_id"`
	Ref    string `json:"ref"`
	Type   string `json:"type"`
}

// Position identifies a line inside a file of the knowledge base.
type Position struct {
	File string `json:"file"`
	Line int    `json:"line"` // 1-based
}

// String renders the position as file:line.
func (p Position) String() string {
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}

// ParsePosition parses "file:line".
func ParsePosition(s string) (Position, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return Position{}, fmt.Errorf("position %q: want file:line", s)
	}
	line, err := strconv.Atoi(s[i+1:])
	if err != nil || line < 1 {
		return Position{}, fmt.Errorf("position %q: invalid line", s)
	}
	return Position{File: s[:i], Line: line}, nil
}
