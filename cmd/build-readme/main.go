// cmd/build-readme/main.go
package main

import (
	"log"

	"github.com/keshon/server-otaku/internal/docs"
)

func main() {
	if err := docs.UpdateReadme("README.md.tmpl", "README.md"); err != nil {
		log.Fatalf("[ERR] Failed to build README: %v", err)
	}
}
