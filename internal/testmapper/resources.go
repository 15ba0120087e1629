package testmapper

import (
	"embed"
	"io/fs"
)

//go:embed resources
var embedded embed.FS

// Resources serves the YAML resources with resources/ as root.
var Resources = mustSub(embedded, "resources")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
