// CUE schema validation of job files
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	"adam-batch/internal/apierr"
)

//go:embed job.cue
var embeddedSchema []byte

// ValidateWithCue validates YAML job data against the #Job definition of a CUE
// schema. An empty cueFile selects the embedded schema. A job the schema
// rejects yields an apierr.ValidationError.
func ValidateWithCue(data []byte, cueFile string) error {
	schemaBytes := embeddedSchema
	if cueFile != "" {
		var err error
		if schemaBytes, err = os.ReadFile(cueFile); err != nil {
			return fmt.Errorf("cannot read CUE schema: %w", err)
		}
	}
	ctx := cuecontext.New()
	schemaVal := ctx.CompileBytes(schemaBytes)
	if err := schemaVal.Err(); err != nil {
		return fmt.Errorf("cannot compile CUE schema: %w", err)
	}
	job := schemaVal.LookupPath(cue.ParsePath("#Job"))
	if !job.Exists() {
		return fmt.Errorf("CUE schema has no #Job definition")
	}
	if err := yaml.Validate(data, job); err != nil {
		return &apierr.ValidationError{Subject: "job", Reason: "schema validation failed: " + err.Error()}
	}
	return nil
}
