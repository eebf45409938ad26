package store

import "time"

// Role distinguishes the two kinds of registered root.
type Role string

const (
	RoleSource  Role = "source"
	RoleArchive Role = "archive"
)

// TargetKind distinguishes the two kinds of fact target.
type TargetKind string

const (
	TargetSource TargetKind = "source"
	TargetObject TargetKind = "object"
)

// Root is a tracked top-level directory.
type Root struct {
	ID   int64
	Path string
	Role Role
}

// Source is a file observed on disk, identified by (root, relative path).
type Source struct {
	ID       int64
	RootID   int64
	RelPath  string
	Filename string
	Ext      string
	Size     int64
	Mtime    int64 // seconds since epoch
	Device   uint64
	Inode    uint64
	BasisRev int64
	SeenRev  int64
	ObjectID *int64
}

// Object is unique content identified by its SHA-256 hash.
type Object struct {
	ID   int64
	Hash string
}

// Fact is a key/value pair attached to exactly one of (source, object).
type Fact struct {
	ID               int64
	TargetKind       TargetKind
	TargetID         int64
	Key              string
	Value            string // scalar value, stored as text; caller interprets
	ObservedBasisRev int64
	ObservedAt       time.Time
}
