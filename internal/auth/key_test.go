package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/maruel/bibdb/internal/library"
)

var testSecret = []byte("test-secret-key-32-bytes-long!!!")

func TestIssueParse(t *testing.T) {
	want := &Key{UserID: 7, Name: "sync", Groups: []int64{3, 9}, Write: true}
	token, err := Issue(testSecret, want, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if want.ID.IsZero() {
		t.Error("Issue() did not assign an ID")
	}
	got, err := Parse(testSecret, token)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse() (-want +got):\n%s", diff)
	}
}

func TestParseInvalid(t *testing.T) {
	valid, err := Issue(testSecret, &Key{UserID: 1}, 0)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := Issue(testSecret, &Key{UserID: 1}, time.Nanosecond)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"write": true}).SignedString(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		secret []byte
		token  string
	}{
		{"garbage", testSecret, "not-a-token"},
		{"wrong secret", []byte("another-secret-key-32-bytes-long"), valid},
		{"expired", testSecret, expired},
		{"unsigned", testSecret, none},
		{"no subject", testSecret, noSub},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.secret, tt.token); err == nil {
				t.Error("Parse() succeeded")
			}
		})
	}
	if _, err := Issue(testSecret, &Key{}, 0); err == nil {
		t.Error("Issue() accepted a key without user")
	}
}

func TestAccess(t *testing.T) {
	k := &Key{UserID: 1, Groups: []int64{5}}
	if !k.CanRead(library.UserRef(1)) || !k.CanRead(library.GroupRef(5)) {
		t.Error("key cannot read its libraries")
	}
	if k.CanRead(library.UserRef(2)) || k.CanRead(library.GroupRef(6)) {
		t.Error("key can read foreign libraries")
	}
	if k.CanWrite(library.UserRef(1)) {
		t.Error("read-only key can write")
	}
	k.Write = true
	if !k.CanWrite(library.GroupRef(5)) || k.CanWrite(library.GroupRef(6)) {
		t.Error("write access mismatch")
	}
}

func TestFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		headers map[string]string
		want    string
	}{
		{"none", "/users/1/items", nil, ""},
		{"header", "/users/1/items", map[string]string{"Zotero-API-Key": "abc"}, "abc"},
		{"bearer", "/users/1/items", map[string]string{"Authorization": "Bearer xyz"}, "xyz"},
		{"basic ignored", "/users/1/items", map[string]string{"Authorization": "Basic xyz"}, ""},
		{"query", "/users/1/items?key=q", nil, "q"},
		{"header first", "/users/1/items?key=q", map[string]string{"Zotero-API-Key": "abc"}, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := FromRequest(r); got != tt.want {
				t.Errorf("FromRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}
