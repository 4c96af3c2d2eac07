//go:build property
// +build property

package formstate

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestStoreProperties checks the store's contract over generated input.
func TestStoreProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	records := gen.MapOf(gen.AlphaString(), gen.AlphaString())

	properties.Property("saved data reads back equal", prop.ForAll(
		func(formID string, fields map[string]string) bool {
			store := New(NewMemoryStorage(), "k", nil)
			data := toRecord(fields)

			store.SaveFormData(formID, data)
			got, ok := store.GetSavedFormData(formID)

			return ok && reflect.DeepEqual(got, data)
		},
		gen.AlphaString(),
		records,
	))

	properties.Property("clearing one form leaves others intact", prop.ForAll(
		func(a, b string, fields map[string]string) bool {
			if a == b {
				return true
			}
			store := New(NewMemoryStorage(), "k", nil)
			store.SaveFormData(a, toRecord(fields))
			store.SaveFormData(b, toRecord(fields))

			store.ClearFormData(a)

			_, okA := store.GetSavedFormData(a)
			gotB, okB := store.GetSavedFormData(b)
			return !okA && okB && reflect.DeepEqual(gotB, toRecord(fields))
		},
		gen.AlphaString(),
		gen.AlphaString(),
		records,
	))

	properties.Property("marking is idempotent for membership", prop.ForAll(
		func(formID string, times int) bool {
			store := New(NewMemoryStorage(), "k", nil)
			for range times {
				store.MarkFormAsSubmitted(formID)
			}

			return store.IsFormSubmitted(formID) && len(store.Snapshot().SubmittedForms) == 1
		},
		gen.AlphaString(),
		gen.IntRange(1, 5),
	))

	properties.Property("state survives a restart", prop.ForAll(
		func(formIDs []string, fields map[string]string, submitted []string) bool {
			storage := NewMemoryStorage()
			before := New(storage, "form-state:s", nil)
			for _, id := range formIDs {
				before.SaveFormData(id, toRecord(fields))
			}
			for _, id := range submitted {
				before.MarkFormAsSubmitted(id)
			}

			after := New(storage, "form-state:s", nil)
			return reflect.DeepEqual(before.Snapshot(), after.Snapshot())
		},
		gen.SliceOf(gen.AlphaString()),
		records,
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("clear all empties everything", prop.ForAll(
		func(formIDs []string) bool {
			store := New(NewMemoryStorage(), "k", nil)
			for _, id := range formIDs {
				store.SaveFormData(id, map[string]any{"x": id})
				store.MarkFormAsSubmitted(id)
			}

			store.ClearAllFormData()
			snap := store.Snapshot()
			return len(snap.FormData) == 0 && len(snap.SubmittedForms) == 0
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

func toRecord(fields map[string]string) map[string]any {
	record := make(map[string]any, len(fields))
	for k, v := range fields {
		record[k] = v
	}
	return record
}
