// Package migrations embeds the schema for the login counter and unlock token
// tables. Test containers apply the *.up.sql files in lexical order.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
