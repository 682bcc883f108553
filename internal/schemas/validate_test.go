package schemas

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"
)

const personSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string"},
		"age": {"type": "integer"}
	}
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantError bool
	}{
		{"valid", `{"name": "Acme"}`, false},
		{"missing required field", `{"age": 3}`, true},
		{"wrong type", `{"name": "Acme", "age": "three"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate("person", gojsonschema.NewStringLoader(personSchema), gojsonschema.NewStringLoader(tt.doc))
			if !tt.wantError {
				assert.NoError(t, err)
				return
			}
			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr), "got %T: %v", err, err)
			assert.NotEmpty(t, validationErr.Errors)
		})
	}
}

func TestValidate_BadSchema(t *testing.T) {
	err := validate("bad", gojsonschema.NewStringLoader(`{"type": 12}`), gojsonschema.NewStringLoader(`{}`))
	var loadErr *SchemaLoadError
	assert.True(t, errors.As(err, &loadErr), "got %T: %v", err, err)
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()

	err := ValidateFile(UsageReportSchema, filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	malformed := writeFile(t, dir, "malformed.json", "{ invalid json }")
	assert.Error(t, ValidateFile(UsageReportSchema, malformed))

	incomplete := writeFile(t, dir, "incomplete.json", `{"run_id": "r1"}`)
	var validationErr *ValidationError
	assert.True(t, errors.As(ValidateFile(UsageReportSchema, incomplete), &validationErr))
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Errors: []FieldError{
			{Field: "name", Message: "is required"},
			{Field: "age", Message: "must be a number"},
		},
	}

	errorMsg := err.Error()
	assert.Contains(t, errorMsg, "validation failed")
	assert.Contains(t, errorMsg, "name")
	assert.Contains(t, errorMsg, "age")
}

func TestEmbeddedSchemas_ValidJSON(t *testing.T) {
	names := Names()
	require.Contains(t, names, UsageReportSchema)
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			data, err := Embedded(name)
			require.NoError(t, err)
			var obj map[string]any
			require.NoError(t, json.Unmarshal(data, &obj))
			assert.Contains(t, obj, "$schema")
			assert.Contains(t, obj, "properties")
		})
	}
}

func TestEmbedded_Unknown(t *testing.T) {
	_, err := Embedded("nope.schema.json")
	var loadErr *SchemaLoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestValidateUsageReport(t *testing.T) {
	valid := `{
		"run_id": "r1",
		"company": "Acme Corp",
		"language": "English",
		"model": "gemini-2.5-pro",
		"sections": [
			{"id": "basic", "status": "Success", "input_tokens": 10, "output_tokens": 20, "elapsed_seconds": 1.5, "attempts": 1},
			{"id": "vision", "status": "Failed", "input_tokens": 0, "output_tokens": 0, "elapsed_seconds": 300, "attempts": 1, "error": "Timeout"}
		],
		"summary": {
			"total_input_tokens": 10, "total_output_tokens": 20, "total_tokens": 30,
			"successful": 1, "failed": 1, "interrupted": false,
			"overall_status": "PartialFailure", "wall_clock_seconds": 300.2
		}
	}`
	assert.NoError(t, ValidateUsageReport([]byte(valid)))

	badStatus := `{
		"run_id": "r1", "company": "Acme", "language": "English", "model": "m",
		"sections": [{"id": "basic", "status": "Maybe", "input_tokens": 0, "output_tokens": 0, "elapsed_seconds": 0, "attempts": 1}],
		"summary": {"total_input_tokens": 0, "total_output_tokens": 0, "total_tokens": 0, "successful": 0, "failed": 0, "overall_status": "AllFailed", "wall_clock_seconds": 0}
	}`
	var validationErr *ValidationError
	require.True(t, errors.As(ValidateUsageReport([]byte(badStatus)), &validationErr))
}
