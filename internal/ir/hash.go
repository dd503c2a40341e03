package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows a future algorithm migration.
const (
	DomainConditionSet = "stagehand/condition-set/v1"
	DomainTransition   = "stagehand/transition/v1"
	DomainSource       = "stagehand/source/v1"
)

// hashWithDomain computes SHA-256(domain || 0x00 || data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ConditionSetKey computes the identity of a condition set. Two sets have
// the same key exactly when they are deeply equal: same attribute names,
// same condition variants, same values. Inline functions compare by
// identity (their code pointer).
func ConditionSetKey(cs ConditionSet) (string, error) {
	obj := make(IRObject, len(cs))
	for name, cond := range cs {
		v, err := conditionValue(cond)
		if err != nil {
			return "", fmt.Errorf("ConditionSetKey: %q: %w", name, err)
		}
		obj[name] = v
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ConditionSetKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainConditionSet, canonical), nil
}

// MustConditionSetKey is like ConditionSetKey but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustConditionSetKey(cs ConditionSet) string {
	key, err := ConditionSetKey(cs)
	if err != nil {
		panic(err)
	}
	return key
}

// conditionValue maps a condition onto a tagged IRValue so that each
// variant hashes distinctly.
func conditionValue(c Condition) (IRValue, error) {
	switch cond := c.(type) {
	case Equals:
		return IRObject{"eq": orNull(cond.Value)}, nil
	case OneOf:
		arr := make(IRArray, len(cond))
		for i, v := range cond {
			arr[i] = orNull(v)
		}
		return IRObject{"one_of": arr}, nil
	case Assertions:
		arr := make(IRArray, len(cond))
		for i, chk := range cond {
			entry := IRObject{"name": IRString(chk.Name), "operand": orNull(chk.Operand)}
			if chk.Dynamic != nil {
				entry["dynamic"] = funcIdentity(chk.Dynamic)
			}
			arr[i] = entry
		}
		return IRObject{"assert": arr}, nil
	case Predicate:
		return IRObject{"predicate": IRString(cond)}, nil
	case Func:
		return IRObject{"func": funcIdentity(cond)}, nil
	case nil:
		return nil, fmt.Errorf("nil condition")
	default:
		return nil, fmt.Errorf("unknown condition type %T", c)
	}
}

func funcIdentity(fn any) IRString {
	return IRString(fmt.Sprintf("%x", reflect.ValueOf(fn).Pointer()))
}

func orNull(v IRValue) IRValue {
	if v == nil {
		return Null
	}
	return v
}

// TransitionKey fingerprints a transition's reference lists, used by the
// display manager to skip re-enqueuing an identical desired state.
func TransitionKey(refs []string) string {
	canonical, err := MarshalCanonical(refs)
	if err != nil {
		// []string always marshals
		panic(err)
	}
	return hashWithDomain(DomainTransition, canonical)
}

// SourceHash fingerprints configuration source text, recorded with every
// journal run so traces can be matched to the configuration that produced
// them.
func SourceHash(src []byte) string {
	return hashWithDomain(DomainSource, src)
}
