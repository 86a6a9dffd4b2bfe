// Package assets embeds the files shipped with the binaries: SQL migrations, email templates and the
// common passwords list.
package assets

import "embed"

// FS holds migrations/*.sql, templates/email/* and common-passwords.txt.
//go:embed migrations/*.sql templates/email/* common-passwords.txt
var FS embed.FS

// MigrationsDir is the directory of FS holding the goose migrations.
const MigrationsDir = "migrations"

// CommonPasswords is the path of the common passwords list in FS.
const CommonPasswords = "common-passwords.txt"
