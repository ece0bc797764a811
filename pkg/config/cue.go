package config

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// schema closes the top-level sections so a misspelt key fails instead of
// being ignored. Telemetry is checked by its own Validate.
const schema = `
#Key: =~"^[1-9A-HJ-NP-Za-km-z]{32,44}$"

#Config: {
	ledger?: {
		path?:           string & !=""
		max_open_conns?: int & >=0
	}
	program?: {
		id?:            #Key
		token_program?: #Key
	}
	policy?: {
		paths?: [...string]
		disabled?: [...string & !=""]
		watch?: bool
	}
	telemetry?: {...}
}
`

// decodeCUE evaluates a CUE document against the schema and returns it as a
// generic tree.
func decodeCUE(data []byte, filename string) (map[string]interface{}, error) {
	if filename == "" {
		filename = "config.cue"
	}

	ctx := cuecontext.New()

	def := ctx.CompileString(schema, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile config schema: %w", err)
	}

	val := ctx.CompileBytes(data, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err, filename)
	}

	unified := def.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, convertCUEErrors(err, filename)
	}

	var tree map[string]interface{}
	if err := unified.Decode(&tree); err != nil {
		return nil, fmt.Errorf("failed to decode CUE config: %w", err)
	}
	return tree, nil
}

// convertCUEErrors reports each error at its config field path, positioned
// in the config file when CUE knows a position there.
func convertCUEErrors(err error, filename string) ValidationErrors {
	var errs ValidationErrors

	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		ve := ValidationError{
			Path:    fieldPath(e.Path()),
			Message: fmt.Sprintf(format, args...),
		}
		positions := cueerrors.Positions(e)
		for _, pos := range positions {
			if pos.Filename() == filename {
				ve.File, ve.Line, ve.Column = pos.Filename(), pos.Line(), pos.Column()
				break
			}
		}
		if ve.File == "" && len(positions) > 0 {
			ve.File, ve.Line, ve.Column = positions[0].Filename(), positions[0].Line(), positions[0].Column()
		}
		errs = append(errs, ve)
	}

	if len(errs) == 0 {
		errs = append(errs, ValidationError{Message: err.Error()})
	}
	return errs
}

// fieldPath joins a CUE error path, dropping the schema definition the
// config was unified with.
func fieldPath(path []string) string {
	if len(path) > 0 && strings.HasPrefix(path[0], "#") {
		path = path[1:]
	}
	return strings.Join(path, ".")
}
