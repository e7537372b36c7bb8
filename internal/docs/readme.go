// Package docs renders the command reference into README.md.
package docs

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"strings"
	"text/template"

	"github.com/keshon/server-otaku/internal/command"
)

// CommandSections renders one markdown section per command group.
func CommandSections() string {
	var buf bytes.Buffer
	for i, g := range command.Groups() {
		if i > 0 {
			buf.WriteString("\n")
		}
		fmt.Fprintf(&buf, "### /%s\n\n%s.\n\n", g, g.Description())
		for _, k := range command.InGroup(g) {
			fmt.Fprintf(&buf, "- **`%s`**%s: %s\n", k.FullName(), optionSummary(k.Options()), k.Description())
		}
	}
	return buf.String()
}

// optionSummary renders " `input` `[reason]`" with optional options in brackets.
func optionSummary(opts []command.Option) string {
	var sb strings.Builder
	for _, o := range opts {
		if o.Required {
			fmt.Fprintf(&sb, " `%s`", o.Name)
		} else {
			fmt.Fprintf(&sb, " `[%s]`", o.Name)
		}
	}
	return sb.String()
}

// UpdateReadme executes the template at tmplPath with the command
// reference and writes the result to outPath.
func UpdateReadme(tmplPath, outPath string) error {
	tmpl, err := template.ParseFiles(tmplPath)
	if err != nil {
		return err
	}

	data := struct {
		CommandSections string
	}{
		CommandSections: CommandSections(),
	}

	var out bytes.Buffer
	if err := tmpl.Execute(&out, data); err != nil {
		return err
	}
	if err := os.WriteFile(outPath, out.Bytes(), 0o644); err != nil {
		return err
	}

	log.Printf("[INFO] %s updated with current commands", outPath)
	return nil
}
