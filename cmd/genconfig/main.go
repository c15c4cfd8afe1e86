// Package main implements the genconfig tool that writes config.default.toml
// from config.DefaultConfig().
//
// It is invoked by go generate via the directive in the root configdata.go.
package main

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/sekaibake/internal/config"
)

// fieldDoc documents one section or key of the generated file.
type fieldDoc struct {
	// Comment is emitted above the line, one "# " line per newline.
	Comment string
	// Alternatives are commented-out example lines. For keys the encoder
	// omits, they are the only trace of the key in the file.
	Alternatives []string
}

// docs is keyed by TOML path: "section" or "section.key".
var docs = map[string]fieldDoc{
	"data": {
		Comment: "Master-data mirrors. EN records win on id collisions; JP-only records are\nappended.",
	},
	"database": {
		Comment: "SQLite honor catalog.",
	},
	"assets": {
		Comment: "Mirrored asset tree and the storage it is downloaded from.",
	},
	"assets.repository": {
		Comment:      "Optional git repository holding a prebuilt asset tree.",
		Alternatives: []string{`repository = "https://github.com/yhsanave/prsk-sheet-assets.git"`},
	},
	"bake": {
		Comment: "Baked badge output. The output directory is rebuilt on every run.",
	},
	"bake.locked_source_level": {
		Comment: "Character badges at this rank are greyed into the locked variant.",
	},
	"bake.exclude": {
		Comment: `Glob patterns over "<type>/<group folder>" to skip.`,
	},
	"log": {
		Comment: "Log file settings. The log lives in the data directory.",
	},
}

func main() {
	out, err := render(config.DefaultConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "render: %v\n", err)
		os.Exit(1)
	}
	// go generate runs from the root package directory, where configdata.go
	// embeds config.default.toml.
	const outPath = "config.default.toml"
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", outPath)
}

// render encodes cfg as TOML, strips the encoder's indentation and spacing,
// and injects section banners and [docs] comments.
func render(cfg *config.Config) ([]byte, error) {
	var raw bytes.Buffer
	if err := toml.NewEncoder(&raw).Encode(cfg); err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	out := []string{
		"# ///////////////////////////////////////////////",
		"# sekaibake Configuration",
		"# ///////////////////////////////////////////////",
		"#",
		"# Relative paths are resolved against the data directory.",
	}

	var sectionStack []string
	emitted := map[string]bool{}

	for _, line := range strings.Split(raw.String(), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		// Array-of-tables header: [[foo.bar]]
		if strings.HasPrefix(trimmed, "[[") {
			path := parseSectionPath(strings.Trim(trimmed, "[] "))
			if strings.Join(path, ".") != strings.Join(sectionStack, ".") {
				injectOmitted(&out, sectionStack, emitted)
				sectionStack = path
			}
			out = append(out, "", trimmed)
			continue
		}

		// Table header: [foo]
		if strings.HasPrefix(trimmed, "[") {
			injectOmitted(&out, sectionStack, emitted)
			section := strings.Trim(trimmed, "[] ")
			sectionStack = parseSectionPath(section)

			out = append(out, "", fmt.Sprintf("# ///// %s /////", sectionName(section)), "")
			out = appendComment(out, docs[section].Comment)
			out = append(out, trimmed)
			continue
		}

		key := strings.TrimSpace(strings.SplitN(trimmed, "=", 2)[0])
		fullPath := strings.Join(append(append([]string{}, sectionStack...), key), ".")
		emitted[fullPath] = true

		doc := docs[fullPath]
		out = appendComment(out, doc.Comment)
		out = append(out, trimmed)
		for _, alt := range doc.Alternatives {
			out = append(out, "# "+alt)
		}
	}
	injectOmitted(&out, sectionStack, emitted)

	return []byte(strings.Join(out, "\n") + "\n"), nil
}

func appendComment(out []string, comment string) []string {
	if comment == "" {
		return out
	}
	for _, cl := range strings.Split(comment, "\n") {
		out = append(out, "# "+cl)
	}
	return out
}

// injectOmitted appends commented-out entries for documented keys of the
// current section that the encoder did not emit, typically omitempty fields
// at their zero value. Keys are sorted for deterministic output.
func injectOmitted(out *[]string, sectionStack []string, emitted map[string]bool) {
	if len(sectionStack) == 0 {
		return
	}
	prefix := strings.Join(sectionStack, ".") + "."

	var omitted []string
	for path := range docs {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || strings.Contains(rest, ".") || emitted[path] {
			continue
		}
		omitted = append(omitted, path)
	}
	sort.Strings(omitted)

	for _, path := range omitted {
		doc := docs[path]
		*out = appendComment(*out, doc.Comment)
		for _, alt := range doc.Alternatives {
			*out = append(*out, "# "+alt)
		}
		emitted[path] = true
	}
}

// parseSectionPath splits a dotted TOML section header into its segments.
func parseSectionPath(section string) []string {
	return strings.Split(section, ".")
}

// sectionName returns the last dotted segment of a section header with its
// first letter capitalized: "assets.prefixes" yields "Prefixes".
func sectionName(section string) string {
	parts := strings.Split(section, ".")
	last := parts[len(parts)-1]
	if len(last) == 0 {
		return ""
	}
	return strings.ToUpper(last[:1]) + last[1:]
}
