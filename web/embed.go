// Package web embeds the HTML templates rendered into documents.
package web

import "embed"

// Templates embeds HTML templates.
//
//go:embed templates/invoices/*.html
var Templates embed.FS
