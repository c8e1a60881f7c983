package voice

import "testing"

func TestParseVoiceName(t *testing.T) {
	cases := []struct {
		in string
		id string
		ok bool
	}{
		{"Supertonic Sam (M4)", "M4", true},
		{"Supertonic Lily (F2)", "F2", true},
		{"f5", "F5", true},
		{"", DefaultID, false},
		{"Some Other Voice", DefaultID, false},
	}
	for _, tc := range cases {
		id, ok := ParseVoiceName(tc.in)
		if id != tc.id || ok != tc.ok {
			t.Fatalf("ParseVoiceName(%q) = %q,%v want %q,%v", tc.in, id, ok, tc.id, tc.ok)
		}
	}
}

func TestCatalog(t *testing.T) {
	voices := Catalog()
	if len(voices) != 10 {
		t.Fatalf("expected 10 voices, got %d", len(voices))
	}
	def, ok := Lookup(DefaultID)
	if !ok || def.Name != "Robert" {
		t.Fatalf("default voice missing: %+v", def)
	}
	if got := def.DisplayName(); got != "Supertonic Robert (M3)" {
		t.Fatalf("unexpected display name %q", got)
	}
	for _, v := range voices {
		if id, ok := ParseVoiceName(v.DisplayName()); !ok || id != v.ID {
			t.Fatalf("display name %q does not round trip", v.DisplayName())
		}
	}
}
