package pages

import (
	"embed"
	"io/fs"
)

//go:embed static
var embeddedStatic embed.FS

// StaticFS returns the stylesheet and client scripts served under /static/.
func StaticFS() fs.FS {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
