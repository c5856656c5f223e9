// Package shaders loads compiled SPIR-V bytecode from disk. The GLSL sources
// live next to this file, run `go generate` to compile them again.
package shaders

import (
	"fmt"
	"os"
)

//go:generate ./compile.sh

// Load reads a SPIR-V module from disk and checks it is plausible bytecode.
func Load(path string) ([]byte, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shader bytecode: %w", err)
	}

	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("shader %s is not valid SPIR-V: %d bytes", path, len(code))
	}

	return code, nil
}
