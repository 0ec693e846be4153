package libcontainer

import (
	"errors"
	"testing"
)

func TestValidateID(t *testing.T) {
	for _, tc := range []struct {
		id    string
		valid bool
	}{
		{id: "abcd", valid: true},
		{id: "a-b_c.d+e", valid: true},
		{id: "0123", valid: true},
		{id: "", valid: false},
		{id: "..", valid: false},
		{id: "../escape", valid: false},
		{id: "a/b", valid: false},
		{id: "a b", valid: false},
		{id: "a*b", valid: false},
	} {
		err := validateID(tc.id)
		if tc.valid && err != nil {
			t.Errorf("validateID(%q): %v", tc.id, err)
		}
		if !tc.valid && !errors.Is(err, ErrInvalidID) {
			t.Errorf("validateID(%q): expected ErrInvalidID, got %v", tc.id, err)
		}
	}
}

func TestCreateEmptyRoot(t *testing.T) {
	if _, err := Create("", "abcd", nil); err == nil {
		t.Error("expected error for empty root")
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir(), "nosuch"); !errors.Is(err, ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}
