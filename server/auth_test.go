package server

import "testing"

func TestStaticAuthenticator(t *testing.T) {
	auth := StaticAuthenticator{"tok-a": 1, "tok-b": 2}

	userID, err := auth.Authenticate("tok-b")
	if err != nil || userID != 2 {
		t.Errorf("Known token should resolve, got %d %v", userID, err)
	}
	if _, err := auth.Authenticate("tok-c"); err == nil {
		t.Error("Unknown token should be rejected")
	}
}

func TestDevAuthenticator(t *testing.T) {
	auth := DevAuthenticator{}

	cases := []struct {
		token  string
		userID int64
		ok     bool
	}{
		{"user:42", 42, true},
		{"user:1", 1, true},
		{"user:0", 0, false},
		{"user:-3", 0, false},
		{"user:abc", 0, false},
		{"42", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		userID, err := auth.Authenticate(tc.token)
		if tc.ok && (err != nil || userID != tc.userID) {
			t.Errorf("Authenticate(%q) = %d, %v; want %d", tc.token, userID, err, tc.userID)
		}
		if !tc.ok && err == nil {
			t.Errorf("Authenticate(%q) should fail", tc.token)
		}
	}
}
