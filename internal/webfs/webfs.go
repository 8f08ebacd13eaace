// Package webfs provides the embedded web assets: the index template and
// the static script and stylesheet it loads.
package webfs

import "embed"

//go:embed all:static all:templates
var FS embed.FS
