package police

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const forceSchema = `{
  "type": "object",
  "required": ["id", "name"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "name": {"type": "string"}
  }
}`

const availableDateSchema = `{
  "type": "object",
  "required": ["date", "stop-and-search"],
  "properties": {
    "date": {"type": "string", "pattern": "^[0-9]{4}-(0[1-9]|1[0-2])$"},
    "stop-and-search": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    }
  }
}`

const stopAndSearchSchema = `{
  "type": "object",
  "required": ["force_id", "type", "involved_person", "datetime", "outcome_object"],
  "properties": {
    "force_id": {"type": "string", "minLength": 1},
    "type": {"type": "string"},
    "involved_person": {"type": "boolean"},
    "datetime": {"type": "string", "minLength": 1},
    "operation": {"type": ["boolean", "null"]},
    "operation_name": {"type": ["string", "null"]},
    "location": {
      "type": ["object", "null"],
      "properties": {
        "latitude": {"$ref": "#/$defs/coordinate"},
        "longitude": {"$ref": "#/$defs/coordinate"},
        "street": {
          "type": ["object", "null"],
          "properties": {
            "id": {"type": ["integer", "null"]},
            "name": {"type": ["string", "null"]}
          }
        }
      }
    },
    "gender": {"type": ["string", "null"]},
    "age_range": {"type": ["string", "null"]},
    "self_defined_ethnicity": {"type": ["string", "null"]},
    "officer_defined_ethnicity": {"type": ["string", "null"]},
    "legislation": {"type": ["string", "null"]},
    "object_of_search": {"type": ["string", "null"]},
    "outcome_object": {
      "type": "object",
      "required": ["id", "name"],
      "properties": {
        "id": {"type": "string"},
        "name": {"type": "string"}
      }
    },
    "outcome_linked_to_object_of_search": {"type": ["boolean", "null"]},
    "removal_of_more_than_outer_clothing": {"type": ["boolean", "null"]}
  },
  "$defs": {
    "coordinate": {
      "oneOf": [
        {"type": "null"},
        {"type": "number", "minimum": -180, "maximum": 180},
        {"type": "string", "pattern": "^-?[0-9]{1,3}(\\.[0-9]+)?$"}
      ]
    }
  }
}`

var (
	forceValidator         = mustCompile("force", forceSchema)
	availableDateValidator = mustCompile("available-date", availableDateSchema)
	stopAndSearchValidator = mustCompile("stop-and-search", stopAndSearchSchema)
)

func mustCompile(name, schema string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	schemaURL := fmt.Sprintf("https://data.police.uk/schemas/%s.schema.json", name)
	if err := c.AddResource(schemaURL, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("police: load %s schema: %v", name, err))
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("police: compile %s schema: %v", name, err))
	}
	return compiled
}
