// Package sombra is an embedded, single-file property-graph database.
//
// A Sombra database stores nodes and directed, typed edges, each
// carrying an arbitrary set of scalar properties, inside one on-disk
// file. Reads run under snapshot isolation against an MVCC version
// chain; writes run one at a time under a single-writer transaction
// manager that also takes a cross-process advisory lock on the file,
// so two processes can safely share the same database.
//
// # Basic usage
//
//	db, err := sombra.Open("graph.sombra", sombra.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	alice, _ := db.AddNode([]string{"Person"}, record.Properties{
//	    {Name: "name", Value: record.FromString("Alice")},
//	})
//	bob, _ := db.AddNode([]string{"Person"}, nil)
//	db.AddEdge(alice, bob, "KNOWS", nil)
//
//	friends, _ := db.GetNeighbors(alice, adjacency.Outgoing, "KNOWS", true)
//
// Package sombra itself is a thin re-export of internal/sombra/graphdb,
// internal/sombra/config, internal/sombra/record, and
// internal/sombra/adjacency — the types a caller needs to open a
// database and build requests against it, without reaching into the
// storage internals.
package sombra

import (
	"github.com/sombradb/sombra/internal/sombra/adjacency"
	"github.com/sombradb/sombra/internal/sombra/config"
	"github.com/sombradb/sombra/internal/sombra/graphdb"
	"github.com/sombradb/sombra/internal/sombra/record"
)

// DB is an open Sombra database file.
type DB = graphdb.DB

// Config holds every tunable Sombra recognizes; see config.Default
// for the built-in values.
type Config = config.Config

// Node is a graph node: an id, its label set, and its properties.
type Node = record.Node

// Edge is a directed, typed relationship between two nodes.
type Edge = record.Edge

// PropertyValue is Sombra's closed scalar property type.
type PropertyValue = record.PropertyValue

// Properties is an ordered name/value list carried by a node or edge.
type Properties = record.Properties

// Direction distinguishes outgoing from incoming edges at a node.
type Direction = adjacency.Direction

const (
	Outgoing = adjacency.Outgoing
	Incoming = adjacency.Incoming
)

// DefaultConfig returns Sombra's built-in configuration defaults.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads a YAML configuration file, merged over DefaultConfig.
// A missing file is not an error.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// Open opens or creates the database file at path.
func Open(path string, cfg Config) (*DB, error) { return graphdb.Open(path, cfg) }
