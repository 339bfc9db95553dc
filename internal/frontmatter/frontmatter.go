// Package frontmatter splits a document into its metadata block and
// body. YAML fences (---), TOML fences (+++) and a leading balanced
// JSON object are recognised; anything else is all body.
package frontmatter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
)

// Distinct parse failures so callers can report the offending format.
var (
	ErrYaml = errors.New("invalid yaml front matter")
	ErrToml = errors.New("invalid toml front matter")
	ErrJson = errors.New("invalid json front matter")
)

// Parsed is the result of splitting a document.
type Parsed struct {
	// Format is empty when the document has no front matter.
	Format domain.FmKind

	// FrontMatter is the decoded metadata, nil when absent.
	FrontMatter map[string]any

	// Body is everything after the front matter block.
	Body string
}

const bom = "\uFEFF"

// Parse splits a complete UTF-8 document. An unterminated fence is not
// an error: the document is treated as having no front matter.
func Parse(doc string) (Parsed, error) {
	doc = strings.TrimPrefix(doc, bom)

	if rest, ok := fenceOpen(doc, "---"); ok {
		block, body, ok := fenceClose(rest, "---")
		if !ok {
			return Parsed{Body: doc}, nil
		}
		var fm map[string]any
		if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
			return Parsed{}, fmt.Errorf("%w: %v", ErrYaml, err)
		}
		return Parsed{Format: domain.FmYaml, FrontMatter: fm, Body: body}, nil
	}

	if rest, ok := fenceOpen(doc, "+++"); ok {
		block, body, ok := fenceClose(rest, "+++")
		if !ok {
			return Parsed{Body: doc}, nil
		}
		var fm map[string]any
		if err := toml.Unmarshal([]byte(block), &fm); err != nil {
			return Parsed{}, fmt.Errorf("%w: %v", ErrToml, err)
		}
		return Parsed{Format: domain.FmToml, FrontMatter: fm, Body: body}, nil
	}

	if i := firstNonSpace(doc); i >= 0 && doc[i] == '{' {
		end, ok := balancedObjectEnd(doc, i)
		if !ok {
			return Parsed{Body: doc}, nil
		}
		var fm map[string]any
		if err := json.Unmarshal([]byte(doc[i:end]), &fm); err != nil {
			return Parsed{}, fmt.Errorf("%w: %v", ErrJson, err)
		}
		body := doc[end:]
		// at most one terminating newline is swallowed
		if strings.HasPrefix(body, "\r\n") {
			body = body[2:]
		} else if strings.HasPrefix(body, "\n") {
			body = body[1:]
		}
		return Parsed{Format: domain.FmJson, FrontMatter: fm, Body: body}, nil
	}

	return Parsed{Body: doc}, nil
}

// fenceOpen reports whether doc starts with fence followed by a line
// break, returning the text after that break.
func fenceOpen(doc, fence string) (string, bool) {
	if strings.HasPrefix(doc, fence+"\n") {
		return doc[len(fence)+1:], true
	}
	if strings.HasPrefix(doc, fence+"\r\n") {
		return doc[len(fence)+2:], true
	}
	return "", false
}

// fenceClose finds the next line that is exactly the fence, returning
// the block before it and the body after it.
func fenceClose(rest, fence string) (block, body string, ok bool) {
	var offset int
	for {
		idx := strings.Index(rest[offset:], "\n")
		if idx < 0 {
			// the final unterminated line may still be the fence
			if trimCR(rest[offset:]) == fence {
				return rest[:offset], "", true
			}
			return "", "", false
		}
		lineStart := offset
		lineEnd := offset + idx
		if trimCR(rest[lineStart:lineEnd]) == fence {
			return rest[:lineStart], rest[lineEnd+1:], true
		}
		offset = lineEnd + 1
	}
}

func trimCR(s string) string {
	return strings.TrimSuffix(s, "\r")
}

func firstNonSpace(doc string) int {
	for i := 0; i < len(doc); i++ {
		switch doc[i] {
		case ' ', '\t', '\n', '\r':
		default:
			return i
		}
	}
	return -1
}

// balancedObjectEnd scans from the opening brace to the matching close,
// honouring string and escape state. Returns the index one past the
// closing brace.
func balancedObjectEnd(doc string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(doc); i++ {
		c := doc[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}
