package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/stagehand/internal/ir"
)

// marshalRefs converts a reference list to canonical JSON TEXT for storage.
// nil is stored as an empty list.
func marshalRefs(refs []string) (string, error) {
	if refs == nil {
		refs = []string{}
	}
	data, err := ir.MarshalCanonical(refs)
	if err != nil {
		return "", fmt.Errorf("marshal refs: %w", err)
	}
	return string(data), nil
}

// marshalRules converts rule descriptions to canonical JSON TEXT.
func marshalRules(rules [][]string) (string, error) {
	arr := make([]any, len(rules))
	for i, keys := range rules {
		elems := make([]any, len(keys))
		for j, k := range keys {
			elems[j] = k
		}
		arr[i] = elems
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal rules: %w", err)
	}
	return string(data), nil
}

// unmarshalRefs parses a stored reference list. Always returns a non-nil
// slice.
func unmarshalRefs(data string) ([]string, error) {
	refs := []string{}
	if data == "" {
		return refs, nil
	}
	if err := json.Unmarshal([]byte(data), &refs); err != nil {
		return nil, fmt.Errorf("unmarshal refs: %w", err)
	}
	return refs, nil
}

// unmarshalRules parses stored rule descriptions. Always returns a non-nil
// slice.
func unmarshalRules(data string) ([][]string, error) {
	rules := [][]string{}
	if data == "" {
		return rules, nil
	}
	if err := json.Unmarshal([]byte(data), &rules); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}
	return rules, nil
}
