/*
 *	Copyright 2024 Cale Lewis
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package vars defines VariableList, the ordered axis labels of a tensor
// expression ("m,k"). Two lists that are permutations of each other induce a
// unique permutation mapping one onto the other, and the product of two lists
// is their order-preserved symmetric difference — the annotation of a
// contraction, with the shared (contracted) labels removed.
package vars

import (
	"strings"

	"github.com/gomlx/exceptions"

	"github.com/calewis/tiledarray/types/perm"
)

// VariableList is an immutable ordered sequence of index labels.
//
// Use Parse to build one from the "i, j, k" string surface. The zero value is
// an empty list.
type VariableList struct {
	labels []string
}

// Parse splits a comma-separated annotation into trimmed identifier labels.
//
// Labels must match [A-Za-z_][A-Za-z0-9_]*; whitespace around commas is
// ignored. Empty or duplicate labels panic.
func Parse(annotation string) VariableList {
	parts := strings.Split(annotation, ",")
	labels := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		label := strings.TrimSpace(part)
		if label == "" {
			exceptions.Panicf("vars.Parse(%q): empty index label", annotation)
		}
		if !validLabel(label) {
			exceptions.Panicf("vars.Parse(%q): invalid index label %q", annotation, label)
		}
		if _, dup := seen[label]; dup {
			exceptions.Panicf("vars.Parse(%q): duplicate index label %q", annotation, label)
		}
		seen[label] = struct{}{}
		labels = append(labels, label)
	}
	return VariableList{labels: labels}
}

// FromLabels builds a list from already-split labels, applying the same
// validation as Parse.
func FromLabels(labels ...string) VariableList {
	return Parse(strings.Join(labels, ","))
}

func validLabel(label string) bool {
	for i, r := range label {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Count returns the number of labels.
func (v VariableList) Count() int { return len(v.labels) }

// At returns the label of the given axis.
func (v VariableList) At(i int) string { return v.labels[i] }

// Labels returns a copy of the label sequence.
func (v VariableList) Labels() []string {
	out := make([]string, len(v.labels))
	copy(out, v.labels)
	return out
}

// Index returns the position of label, or -1 if absent.
func (v VariableList) Index(label string) int {
	for i, l := range v.labels {
		if l == label {
			return i
		}
	}
	return -1
}

// Contains reports whether label appears in the list.
func (v VariableList) Contains(label string) bool { return v.Index(label) >= 0 }

// Equal reports whether both lists hold the same labels in the same order.
func (v VariableList) Equal(other VariableList) bool {
	if len(v.labels) != len(other.labels) {
		return false
	}
	for i, l := range v.labels {
		if other.labels[i] != l {
			return false
		}
	}
	return true
}

// PermutationEquivalent reports whether other holds the same label set,
// possibly in a different order.
func (v VariableList) PermutationEquivalent(other VariableList) bool {
	if len(v.labels) != len(other.labels) {
		return false
	}
	for _, l := range v.labels {
		if !other.Contains(l) {
			return false
		}
	}
	return true
}

// PermutationTo returns the permutation P with P(v) == target. The identity
// permutation is returned when the lists are already equal. Panics when the
// lists are not permutation-equivalent.
func (v VariableList) PermutationTo(target VariableList) perm.Permutation {
	if v.Equal(target) {
		return perm.Identity()
	}
	if !v.PermutationEquivalent(target) {
		exceptions.Panicf("vars: %s and %s are not permutation equivalent", v, target)
	}
	image := make([]int, len(v.labels))
	for i, l := range v.labels {
		image[i] = target.Index(l)
	}
	return perm.New(image...)
}

// Mul returns the contraction product of the two lists: the labels of v that
// do not appear in other, followed by the labels of other that do not appear
// in v. Shared labels are the contracted indices and are dropped.
//
// When the lists are permutation-equivalent there is nothing to contract and
// the product is v itself (an element-wise product annotation).
func (v VariableList) Mul(other VariableList) VariableList {
	if v.PermutationEquivalent(other) {
		return v
	}
	labels := make([]string, 0, len(v.labels)+len(other.labels))
	for _, l := range v.labels {
		if !other.Contains(l) {
			labels = append(labels, l)
		}
	}
	for _, l := range other.labels {
		if !v.Contains(l) {
			labels = append(labels, l)
		}
	}
	return VariableList{labels: labels}
}

// Common reports whether the two lists share at least one label.
func (v VariableList) Common(other VariableList) bool {
	for _, l := range v.labels {
		if other.Contains(l) {
			return true
		}
	}
	return false
}

// ContractedWith returns the labels shared between v and other, in v's order.
func (v VariableList) ContractedWith(other VariableList) []string {
	var shared []string
	for _, l := range v.labels {
		if other.Contains(l) {
			shared = append(shared, l)
		}
	}
	return shared
}

// String renders the annotation surface form, e.g. "m,n".
func (v VariableList) String() string { return strings.Join(v.labels, ",") }
