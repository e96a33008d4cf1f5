package kvdoc

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	tableKeyPrefix = "TBL:"
	pointerMarker  = "PTR"
	fieldKeyMarker = pointerMarker + ":"
	keySep         = "-"
	recordIDSep    = "/"
)

// BuildKey derives a store key. Master keys look like TBL:<table>-<query>,
// field partition keys like TBL:<table>-PTR:<field>-<query>. The field form
// is used only for non-master keys with a non-empty field.
func BuildKey(table string, master bool, field, query string) string {
	if master || field == "" {
		return tableKeyPrefix + table + keySep + query
	}
	return tableKeyPrefix + table + keySep + fieldKeyMarker + field + keySep + query
}

// IsPointerKey reports whether a stored string carries the legacy pointer
// marker. Such detection misfires on ordinary strings that happen to contain
// the marker, so it is only used for tables opened with LegacyPointers.
func IsPointerKey(s string) bool {
	return strings.Contains(s, pointerMarker)
}

func fieldPartitionPrefix(table string) string {
	return tableKeyPrefix + table + keySep + fieldKeyMarker
}

type pointerValue struct {
	IsPointer bool   `json:"isPointer"`
	Target    string `json:"target"`
}

const pointerValuePrefix = `{"isPointer":true,`

// EncodePointer returns the stored form of a pointer to the given key.
func EncodePointer(target string) string {
	return string(must(json.Marshal(pointerValue{true, target})))
}

// ParsePointer recognizes a stored pointer and returns its target key. This
// works on the raw stored string, before any decoding or decryption.
func ParsePointer(raw string) (string, bool) {
	if !strings.HasPrefix(raw, pointerValuePrefix) {
		return "", false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &m); err != nil || len(m) != 2 {
		return "", false
	}
	var target string
	if err := json.Unmarshal(m["target"], &target); err != nil || target == "" {
		return "", false
	}
	return target, true
}

// validateName checks a table or field name. Names become key components,
// so separators would let the partitions of different names overlap.
func validateName(what, name string) error {
	if name == "" {
		return fmt.Errorf("%s name must not be empty", what)
	}
	if strings.ContainsAny(name, keySep+":") {
		return fmt.Errorf("%s name %q must not contain %q or %q", what, name, keySep, ":")
	}
	return nil
}
