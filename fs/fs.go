package appfs

import "embed"

// FS embeds the files the app needs at runtime regardless of working directory.
//go:embed migrations
var FS embed.FS
