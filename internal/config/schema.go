// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

package config

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the config file schema.
const SchemaID = "https://bodo.run/schemas/bridge.schema.json"

var (
	schemaOnce  sync.Once
	schemaCache *jschema.Schema
	schemaErr   error
)

// GenerateSchema generates a JSON Schema from the Config struct.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:             true,
		FieldNameTag:               "koanf",
		RequiredFromJSONSchemaTags: true,
	}
	schema := r.Reflect(&Config{})

	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "bodo plugin bridge configuration"
	schema.Description = "Schema for bridge.yaml"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.In("config").Wrapf(err, "failed to marshal schema")
	}
	return data, nil
}

// ValidateSchema validates YAML data against the config JSON Schema. An
// empty document is valid.
func ValidateSchema(data []byte) error {
	var yamlData any
	if err := yaml.Unmarshal(data, &yamlData); err != nil {
		return oops.In("config").Code(CodeInvalid).Wrapf(err, "invalid YAML")
	}
	if yamlData == nil {
		return nil
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}

	// Round-trip through JSON so YAML ints and nested maps take the shapes
	// the validator expects.
	raw, err := json.Marshal(yamlData)
	if err != nil {
		return oops.In("config").Code(CodeInvalid).Wrapf(err, "config is not representable as JSON")
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return oops.In("config").Code(CodeInvalid).Wrapf(err, "config is not representable as JSON")
	}

	if err := sch.Validate(doc); err != nil {
		return oops.In("config").Code(CodeInvalid).Wrapf(err, "schema validation failed")
	}
	return nil
}

func compiledSchema() (*jschema.Schema, error) {
	schemaOnce.Do(func() {
		schemaBytes, err := GenerateSchema()
		if err != nil {
			schemaErr = err
			return
		}
		schemaData, err := jschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
		if err != nil {
			schemaErr = oops.In("config").Wrapf(err, "failed to parse schema JSON")
			return
		}

		c := jschema.NewCompiler()
		if err := c.AddResource("schema.json", schemaData); err != nil {
			schemaErr = oops.In("config").Wrapf(err, "failed to add schema resource")
			return
		}
		schemaCache, schemaErr = c.Compile("schema.json")
		if schemaErr != nil {
			schemaErr = oops.In("config").Wrapf(schemaErr, "failed to compile schema")
		}
	})
	return schemaCache, schemaErr
}
