// Package migrations embeds the notification-service schema. File names are
// prefixed so the versions never collide with booking-service in a shared database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
