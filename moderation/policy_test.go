package moderation

import "testing"

type fakeStore struct {
	banned      map[int64]bool
	maintenance bool
}

func (f *fakeStore) IsBanned(id int64) bool { return f.banned[id] }
func (f *fakeStore) MaintenanceMode() bool  { return f.maintenance }

func TestPolicyCheck(t *testing.T) {
	st := &fakeStore{banned: map[int64]bool{13: true}}
	p := NewPolicy(st, []int64{100})

	tests := []struct {
		name        string
		id          int64
		maintenance bool
		want        Verdict
	}{
		{"ordinary sender accepted", 42, false, VerdictAccept},
		{"banned sender dropped silently", 13, false, VerdictDrop},
		{"non-admin blocked during maintenance", 42, true, VerdictMaintenanceNotice},
		{"admin bypasses maintenance", 100, true, VerdictAccept},
		{"banned wins over maintenance", 13, true, VerdictDrop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st.maintenance = tt.maintenance
			if got := p.Check(tt.id); got != tt.want {
				t.Fatalf("Check(%d) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestIsAdminIsStatic(t *testing.T) {
	p := NewPolicy(&fakeStore{}, []int64{1, 2})
	if !p.IsAdmin(1) || !p.IsAdmin(2) {
		t.Fatalf("configured admins not recognized")
	}
	if p.IsAdmin(3) {
		t.Fatalf("unconfigured id recognized as admin")
	}
}
