package kvdoc

// ValidateValue checks a normalized value against a schema. Root schemas are
// flattened to their record shape first. The walk stops at the first
// mismatch and reports it as *ValidationError.
func ValidateValue(n Node, v any) error {
	if r, ok := n.(Root); ok {
		n = r.Flatten()
	}
	return validateValue("", n, v)
}

// ValidatePartial checks only the fields present in v, as used by partial
// updates. The schema must describe a record.
func ValidatePartial(n Node, v map[string]any) error {
	var rec Record
	switch n := n.(type) {
	case Root:
		rec = n.Flatten()
	case Record:
		rec = n
	default:
		return &ValidationError{Expected: n.String(), Received: "partial object"}
	}
	for _, k := range sortedKeys(v) {
		sch, ok := rec[k]
		if !ok {
			continue
		}
		if err := validateValue(k, sch, v[k]); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(path string, n Node, v any) error {
	switch n := n.(type) {
	case Primitive:
		return validatePrimitive(path, n, v)
	case Record:
		obj, ok := v.(map[string]any)
		if !ok {
			return &ValidationError{path, n.String(), describeValue(v)}
		}
		for _, k := range sortedKeys(n) {
			if err := validateValue(fieldPath(path, k), n[k], obj[k]); err != nil {
				return err
			}
		}
		return nil
	case Array:
		arr, ok := v.([]any)
		if !ok {
			return &ValidationError{path, n.String(), describeValue(v)}
		}
		return validateArray(path, n, arr)
	case Root:
		return validateValue(path, n.Flatten(), v)
	case rawNode:
		parsed, err := parseNode(path, n.raw, false)
		if err != nil {
			return err
		}
		return validateValue(path, parsed, v)
	default:
		return &ValidationError{path, describeNode(n), describeValue(v)}
	}
}

func validatePrimitive(path string, p Primitive, v any) error {
	if p.Type == TypeAny {
		return nil
	}
	if v == nil {
		if p.Optional {
			return nil
		}
		return &ValidationError{path, p.String(), "nothing"}
	}
	t, ok := ResolveType(v)
	if !ok {
		return &ValidationError{path, p.String(), describeValue(v)}
	}
	if t == p.Type || (t == TypeInt && p.Type == TypeFloat) {
		return nil
	}
	return &ValidationError{path, p.String(), describeValue(v)}
}

// validateArray checks uniform arrays element by element and tuple arrays
// position by position. A tuple must have exactly as many elements as its
// schema; trailing extras are rejected, not ignored.
func validateArray(path string, n Array, arr []any) error {
	if len(n) == 0 {
		return nil
	}
	if el, ok := uniformElement(n); ok {
		for i, v := range arr {
			if err := validateValue(indexPath(path, i), el, v); err != nil {
				return err
			}
		}
		return nil
	}
	if len(arr) != len(n) {
		return &ValidationError{path, n.String(), describeValue(arr)}
	}
	for i, el := range n {
		if err := validateValue(indexPath(path, i), el, arr[i]); err != nil {
			return err
		}
	}
	return nil
}

// uniformElement reports the element schema of a homogeneous array.
func uniformElement(n Array) (Node, bool) {
	if len(n) == 1 {
		return n[0], true
	}
	first, ok := n[0].(Primitive)
	if !ok {
		return nil, false
	}
	for _, el := range n[1:] {
		if p, ok := el.(Primitive); !ok || p != first {
			return nil, false
		}
	}
	return first, true
}
