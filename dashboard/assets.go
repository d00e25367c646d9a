// Package dashboard embeds the loopback status UI and implements C7, the
// dashboard server (spec §4.7).
package dashboard

import "embed"

//go:embed assets
var Assets embed.FS

// AssetsRoot is the subdirectory inside Assets that static routes are
// served relative to.
const AssetsRoot = "assets"
