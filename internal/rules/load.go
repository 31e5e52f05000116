package rules

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

// Load reads a CUE override file and applies it over Defaults. An empty
// path returns the defaults.
func Load(path string) (Rules, error) {
	r := Defaults()
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(path, data)
}

// Parse unifies src with the embedded #Rules definition and overlays the
// concrete result on Defaults. Unknown fields and out-of-range weights are
// rejected with the CUE position of the offending value.
func Parse(filename string, src []byte) (Rules, error) {
	r := Defaults()

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return r, fmt.Errorf("compile rules schema: %w", err)
	}
	override := ctx.CompileBytes(src, cue.Filename(filename))
	if err := override.Err(); err != nil {
		return r, formatCUEError(err)
	}

	v := schema.LookupPath(cue.ParsePath("#Rules")).Unify(override)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return r, formatCUEError(err)
	}

	data, err := v.MarshalJSON()
	if err != nil {
		return r, formatCUEError(err)
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("decode rules: %w", err)
	}
	if err := r.Validate(); err != nil {
		return r, err
	}
	return r, nil
}

// formatCUEError flattens a CUE error list into one message with positions.
func formatCUEError(err error) error {
	msg := errors.Details(err, nil)
	return fmt.Errorf("invalid rules file: %s", msg)
}
