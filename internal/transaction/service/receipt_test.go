package service

import "testing"

func TestTenantPrefix(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Helping Hands", "HEL"},
		{"al-noor trust", "ALN"},
		{"Ön Çare", "ONC"},
		{"ab", "AB"},
		{"", "ORG"},
		{"!!!", "ORG"},
	}
	for _, tc := range cases {
		if got := tenantPrefix(tc.name); got != tc.want {
			t.Errorf("tenantPrefix(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}
