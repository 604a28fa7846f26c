// Package auth issues and verifies API keys.
//
// An API key is an HS256 JWT signed with the server secret. Its subject is
// the user ID; it grants access to that user's library and to the libraries
// of the listed groups, read-only unless the write claim is set.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maruel/ksid"

	"github.com/maruel/bibdb/internal/library"
)

var (
	// ErrInvalidKey is returned for keys that are malformed, expired or not
	// signed with the server secret.
	ErrInvalidKey = errors.New("invalid key")
	errNoSubject  = errors.New("key has no valid subject")
)

// Key is the decoded content of an API key.
type Key struct {
	// ID uniquely identifies the key.
	ID     ksid.ID
	UserID int64
	Name   string
	Groups []int64
	Write  bool
}

type claims struct {
	jwt.RegisteredClaims
	Name   string  `json:"name,omitempty"`
	Groups []int64 `json:"groups,omitempty"`
	Write  bool    `json:"write,omitempty"`
}

// Issue signs a key. A zero ttl issues a key that never expires.
func Issue(secret []byte, k *Key, ttl time.Duration) (string, error) {
	if k.UserID <= 0 {
		return "", errNoSubject
	}
	if k.ID.IsZero() {
		k.ID = ksid.NewID()
	}
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       k.ID.String(),
			Subject:  strconv.FormatInt(k.UserID, 10),
			IssuedAt: jwt.NewNumericDate(now),
		},
		Name:   k.Name,
		Groups: k.Groups,
		Write:  k.Write,
	}
	if ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
}

// Parse verifies a key and returns its content.
func Parse(secret []byte, token string) (*Key, error) {
	var c claims
	t, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !t.Valid {
		return nil, ErrInvalidKey
	}
	uid, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || uid <= 0 {
		return nil, ErrInvalidKey
	}
	k := &Key{UserID: uid, Name: c.Name, Groups: c.Groups, Write: c.Write}
	if c.ID != "" {
		if k.ID, err = ksid.Parse(c.ID); err != nil {
			return nil, ErrInvalidKey
		}
	}
	return k, nil
}

// FromRequest returns the API key presented by the request, or "".
//
// The key is taken from the Zotero-API-Key header, an Authorization: Bearer
// header or the key query parameter, in that order.
func FromRequest(r *http.Request) string {
	if k := r.Header.Get("Zotero-API-Key"); k != "" {
		return k
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("key")
}

// CanRead reports whether the key grants read access to the library.
func (k *Key) CanRead(ref library.Ref) bool {
	switch ref.Type {
	case library.UserLibrary:
		return ref.ID == k.UserID
	case library.GroupLibrary:
		return slices.Contains(k.Groups, ref.ID)
	}
	return false
}

// CanWrite reports whether the key grants write access to the library.
func (k *Key) CanWrite(ref library.Ref) bool {
	return k.Write && k.CanRead(ref)
}
