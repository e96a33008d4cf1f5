package kvdoc

// ValidateSchema checks that a schema tree is well-formed: every primitive
// has a known type, pointer fields are required primitives of a concrete
// type, and Root only appears at the top level.
func ValidateSchema(n Node) error {
	return validateSchemaNode("", n, true)
}

func validateSchemaNode(path string, n Node, top bool) error {
	switch n := n.(type) {
	case nil:
		return schemaErrf(path, nil, "missing schema")
	case rawNode:
		parsed, err := parseNode(path, n.raw, top)
		if err != nil {
			return err
		}
		return validateSchemaNode(path, parsed, top)
	case Primitive:
		if !n.Type.valid() {
			return schemaErrf(path, n.Type.String(), "unknown primitive type, expected one of str, int, float, bool, any (optionally suffixed with ?)")
		}
		return nil
	case Array:
		for i, el := range n {
			if err := validateSchemaNode(indexPath(path, i), el, false); err != nil {
				return err
			}
		}
		return nil
	case Record:
		for _, k := range sortedKeys(n) {
			if err := validateSchemaNode(fieldPath(path, k), n[k], false); err != nil {
				return err
			}
		}
		return nil
	case Root:
		if !top {
			return schemaErrf(path, n.String(), "pointer fields are only allowed at the top level")
		}
		for _, k := range sortedKeys(n) {
			f := n[k]
			fp := fieldPath(path, k)
			if f.Pointer {
				p, ok := f.Type.(Primitive)
				if !ok || p.Optional || p.Type == TypeAny || !p.Type.valid() {
					return schemaErrf(fp, describeNode(f.Type), "pointer field must be a required primitive (one of str, int, float, bool)")
				}
				continue
			}
			if err := validateSchemaNode(fp, f.Type, false); err != nil {
				return err
			}
		}
		return nil
	default:
		return schemaErrf(path, n.String(), "unsupported schema node %T", n)
	}
}

func describeNode(n Node) string {
	if n == nil {
		return "<nil>"
	}
	return n.String()
}
