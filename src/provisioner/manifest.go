package provisioner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tradeforge/strategy-engine/src/utils"
)

// A manifest's identity is the content hash of its text plus the interpreter
// version it resolves to. Two manifests with identical dependency lines but
// different pinned interpreters get separate environments.
type Manifest struct {
	Text               string
	InterpreterVersion string
}

// Convention: a comment line of the form `# python >= 3.11` pins the
// interpreter version for the whole manifest.
var interpreterPinRe = regexp.MustCompile(`^#\s*python\s*(==|>=|<=|~=|>|<)\s*([0-9]+(?:\.[0-9]+)*)\s*$`)

// ParseInterpreterPin extracts the pinned interpreter version from the
// manifest text, if any.
func ParseInterpreterPin(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		matches := interpreterPinRe.FindStringSubmatch(strings.TrimSpace(line))
		if matches != nil {
			return matches[2], true
		}
	}

	return "", false
}

func NewManifest(text string, defaultInterpreterVersion string) Manifest {
	version, pinned := ParseInterpreterPin(text)
	if !pinned {
		version = defaultInterpreterVersion
	}

	return Manifest{
		Text:               text,
		InterpreterVersion: version,
	}
}

func (m Manifest) Hash() (string, error) {
	hash, err := utils.HashStruct(m)
	if err != nil {
		return "", fmt.Errorf("failed to hash manifest: %w", err)
	}

	return hash, nil
}
