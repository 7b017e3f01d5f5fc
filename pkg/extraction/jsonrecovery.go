package extraction

import "encoding/json"

// parseOracleResponse attempts a strict parse of the oracle's raw completion
// text, falling back to a structured partial recovery (§4.3 "JSON recovery")
// when strict parsing fails: scan for balanced JSON objects at depths 1 and
// 2, parse each independently, and accept any that match the entity or
// relationship shape. recovered is true only when the partial-recovery path
// produced at least one usable object.
func parseOracleResponse(raw string) (*oracleResponse, bool, error) {
	var resp oracleResponse
	if err := json.Unmarshal([]byte(raw), &resp); err == nil {
		return &resp, false, nil
	}

	entities, relationships, ok := recoverEntitiesAndRelationships(raw)
	if !ok {
		return nil, false, errNoRecoverableJSON
	}
	return &oracleResponse{Entities: entities, Relationships: relationships}, true, nil
}

var errNoRecoverableJSON = jsonRecoveryError("oracle response was not valid JSON and no object could be recovered")

type jsonRecoveryError string

func (e jsonRecoveryError) Error() string { return string(e) }

// recoverPartialJSON scans raw for the first balanced top-level JSON object
// and returns it verbatim if found; top-level arrays are not returned. Used by the two-pass
// fallback, which expects a single top-level object per call.
func recoverPartialJSON(raw string) ([]byte, bool) {
	objs := scanBalancedObjects(raw, 0)
	if len(objs) == 0 {
		return nil, false
	}
	return []byte(objs[0]), true
}

// recoverEntitiesAndRelationships scans raw for balanced JSON objects at
// nesting depths 1 and 2 (objects directly inside a top-level array or
// object, and objects one container deeper such as the entries of
// {"entities":[...]}, which is where individual entity/relationship records
// land when the enclosing array or object is itself malformed), parsing each
// independently and keeping any that match the entity or relationship shape.
func recoverEntitiesAndRelationships(raw string) ([]oracleEntity, []oracleRelationship, bool) {
	var entities []oracleEntity
	var relationships []oracleRelationship

	for _, depth := range []int{1, 2} {
		for _, candidate := range scanBalancedObjects(raw, depth) {
			var asEntity oracleEntity
			if err := json.Unmarshal([]byte(candidate), &asEntity); err == nil && asEntity.CanonicalName != "" {
				entities = append(entities, asEntity)
				continue
			}
			var asRel oracleRelationship
			if err := json.Unmarshal([]byte(candidate), &asRel); err == nil && asRel.SourceID != "" && asRel.TargetID != "" {
				relationships = append(relationships, asRel)
			}
		}
	}

	return entities, relationships, len(entities) > 0 || len(relationships) > 0
}

// scanBalancedObjects walks raw tracking object/array nesting depth and
// string/escape state, collecting the text of every object ({...}) whose opening brace
// sits at the requested nesting depth (0 = top-level object spans the whole
// input; 1 = objects directly inside a top-level array/object; 2 = one
// level deeper still, e.g. entries of a nested array).
func scanBalancedObjects(raw string, targetDepth int) []string {
	var out []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(raw); i++ {
		c := raw[i]

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
			if depth == targetDepth {
				start = i
			}
			depth++
		case '}':
			depth--
			if depth == targetDepth && start >= 0 {
				out = append(out, raw[start:i+1])
				start = -1
			}
		case '[':
			depth++
		case ']':
			depth--
		}
	}

	return out
}
