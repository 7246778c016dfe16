package command

import (
	"fmt"
	"strings"

	"unitmap/internal/unit"
)

// Filter is the closed set of find_units predicates. Every provided
// predicate must hold (AND semantics); unrecognized keys are rejected
// rather than silently ignored.
type Filter struct {
	ID                  *string
	NameContains        *string
	CodeContains        *string
	DescriptionContains *string
	OfType              *string
	MemberOfCluster     *string
	DependsOn           *string
	DependencyOf        *string
	HasTests            *bool
	OriginalSource      *string
}

// FilterFromParams decodes the structured filter form.
func FilterFromParams(m map[string]any) (*Filter, error) {
	f := &Filter{}
	for key, raw := range m {
		if key == "hasTests" {
			b, ok := raw.(bool)
			if !ok {
				return nil, &unit.ValidationError{Field: "hasTests", Reason: "expected bool"}
			}
			f.HasTests = &b
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return nil, &unit.ValidationError{Field: key, Reason: "expected string"}
		}
		switch key {
		case "id":
			f.ID = &s
		case "nameContains":
			f.NameContains = &s
		case "codeContains":
			f.CodeContains = &s
		case "descriptionContains":
			f.DescriptionContains = &s
		case "ofType":
			f.OfType = &s
		case "memberOfCluster":
			f.MemberOfCluster = &s
		case "dependsOn":
			f.DependsOn = &s
		case "dependencyOf":
			f.DependencyOf = &s
		case "originalSource":
			f.OriginalSource = &s
		default:
			return nil, &unit.ValidationError{
				Field:  "filter",
				Reason: fmt.Sprintf("unrecognized key %q", key),
			}
		}
	}
	return f, nil
}

// Matches evaluates every provided predicate against one unit. The
// dependsOn/dependencyOf id sets are precomputed by the dispatcher from the
// edge collection.
func (f *Filter) Matches(u *unit.Unit, dependsOn, dependencyOf map[string]bool) bool {
	if f.ID != nil && u.ID != *f.ID {
		return false
	}
	if f.NameContains != nil && !containsFold(u.Name, *f.NameContains) {
		return false
	}
	if f.CodeContains != nil && !containsFold(u.Code, *f.CodeContains) {
		return false
	}
	if f.DescriptionContains != nil && !containsFold(u.Metadata.Description, *f.DescriptionContains) {
		return false
	}
	if f.OfType != nil && string(u.Kind) != *f.OfType {
		return false
	}
	if f.MemberOfCluster != nil && u.ClusterID != *f.MemberOfCluster {
		return false
	}
	if f.DependsOn != nil && !dependsOn[u.ID] {
		return false
	}
	if f.DependencyOf != nil && !dependencyOf[u.ID] {
		return false
	}
	if f.HasTests != nil && (len(u.Metadata.Tests) > 0) != *f.HasTests {
		return false
	}
	if f.OriginalSource != nil && u.OriginalSource != *f.OriginalSource {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
