package cover

import (
	"errors"
	"testing"
)

func testMappings() []Mapping {
	return []Mapping{
		{ID: "1584296123", Name: "kitchen"},
		{ID: "1584296124", Name: "living"},
		{ID: "bedroom-01", Name: "bedroom"},
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(testMappings())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return r
}

func TestRegistry_RoundTrip(t *testing.T) {
	r := newTestRegistry(t)

	for _, m := range testMappings() {
		id, err := r.NameToID(m.Name)
		if err != nil {
			t.Fatalf("NameToID(%q) error = %v", m.Name, err)
		}
		name, err := r.IDToName(id)
		if err != nil {
			t.Fatalf("IDToName(%q) error = %v", id, err)
		}
		if name != m.Name {
			t.Errorf("IDToName(NameToID(%q)) = %q", m.Name, name)
		}

		back, err := r.NameToID(name)
		if err != nil {
			t.Fatalf("NameToID(%q) error = %v", name, err)
		}
		if back != m.ID {
			t.Errorf("NameToID(IDToName(%q)) = %q", m.ID, back)
		}
	}
}

func TestNewRegistry_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		mappings []Mapping
	}{
		{
			name:     "duplicate id",
			mappings: []Mapping{{ID: "1", Name: "a"}, {ID: "1", Name: "b"}},
		},
		{
			name:     "duplicate id after normalization",
			mappings: []Mapping{{ID: "1", Name: "a"}, {ID: "001", Name: "b"}},
		},
		{
			name:     "duplicate name",
			mappings: []Mapping{{ID: "1", Name: "a"}, {ID: "2", Name: "a"}},
		},
		{
			name:     "empty id",
			mappings: []Mapping{{ID: " ", Name: "a"}},
		},
		{
			name:     "empty name",
			mappings: []Mapping{{ID: "1", Name: ""}},
		},
		{
			name:     "name with level separator",
			mappings: []Mapping{{ID: "1", Name: "ground/kitchen"}},
		},
		{
			name:     "name with single-level wildcard",
			mappings: []Mapping{{ID: "1", Name: "kitchen+"}},
		},
		{
			name:     "name with multi-level wildcard",
			mappings: []Mapping{{ID: "1", Name: "a"}, {ID: "2", Name: "#"}},
		},
		{
			name:     "name with NUL",
			mappings: []Mapping{{ID: "1", Name: "kit\x00chen"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.mappings)
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("NewRegistry() error = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestName_ValidTopicLevel(t *testing.T) {
	tests := []struct {
		name Name
		want bool
	}{
		{"kitchen", true},
		{"living_room", true},
		{"étage", true},
		{"salle de bain", true},
		{"", false},
		{"ground/kitchen", false},
		{"+", false},
		{"#", false},
	}

	for _, tt := range tests {
		if got := tt.name.ValidTopicLevel(); got != tt.want {
			t.Errorf("Name(%q).ValidTopicLevel() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRegistry_UnknownDevice(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.NameToID("garage"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("NameToID(garage) error = %v, want ErrUnknownDevice", err)
	}
	if _, err := r.IDToName("999"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("IDToName(999) error = %v, want ErrUnknownDevice", err)
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name    string
		raw     string
		want    Name
		wantErr bool
	}{
		{name: "numeric id", raw: "1584296123", want: "kitchen"},
		{name: "numeric id with padding", raw: " 01584296124", want: "living"},
		{name: "string id", raw: "bedroom-01", want: "bedroom"},
		{name: "known name passes through", raw: "kitchen", want: "kitchen"},
		{name: "unknown numeric id", raw: "42", wantErr: true},
		{name: "unknown string", raw: "garage", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownDevice) {
					t.Errorf("Resolve(%q) error = %v, want ErrUnknownDevice", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestRegistry_Names(t *testing.T) {
	r := newTestRegistry(t)

	names := r.Names()
	want := []Name{"bedroom", "kitchen", "living"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	names[0] = "mutated"
	if r.Names()[0] != "bedroom" {
		t.Error("Names() exposed internal slice")
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}
	if !r.Has("kitchen") || r.Has("garage") {
		t.Error("Has() returned unexpected result")
	}
}

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		raw  string
		want DeviceID
	}{
		{"42", "42"},
		{"0042", "42"},
		{" 42 ", "42"},
		{"abc", "abc"},
		{"-1", "-1"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeID(tt.raw); got != tt.want {
			t.Errorf("NormalizeID(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestCommand_Target(t *testing.T) {
	tests := []struct {
		cmd    Command
		want   Position
		wantOK bool
	}{
		{CommandOpen, 100, true},
		{CommandClose, 0, true},
		{CommandStop, 0, false},
		{"open", 0, false},
		{"FOO", 0, false},
	}

	for _, tt := range tests {
		got, ok := tt.cmd.Target()
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Command(%q).Target() = %d, %v, want %d, %v", tt.cmd, got, ok, tt.want, tt.wantOK)
		}
	}
}
