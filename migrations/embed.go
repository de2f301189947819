package migrations

import "embed"

// Files exposes embedded SQL migration files, split per dialect and ordered
// lexicographically within each directory.
//
//go:embed postgres/*.sql sqlite/*.sql
var Files embed.FS
