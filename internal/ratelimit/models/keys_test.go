package models

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

// =============================================================================
// Rate Limit Key Security Test Suite
// =============================================================================
// Justification: identities embed client-controlled headers. A crafted value
// containing the delimiter must never address another identity's bucket.

type KeySecuritySuite struct {
	suite.Suite
}

func TestKeySecuritySuite(t *testing.T) {
	suite.Run(t, new(KeySecuritySuite))
}

func (s *KeySecuritySuite) TestKeyFormat() {
	s.Equal("ratelimit:10.0.0.1_cMozilla:read", NewKey("10.0.0.1:Mozilla", CategoryRead).String())
	s.Equal("ratelimit:unknown_cunknown:auth", NewKey("unknown:unknown", CategoryAuth).String())
}

func (s *KeySecuritySuite) TestKeyCollisionAttack() {
	s.Run("category cannot be forged through the identity", func() {
		forged := NewKey("1.2.3.4:ua:read", CategoryAuth).String()
		s.NotEqual(NewKey("1.2.3.4:ua", CategoryRead).String(), forged)
		s.Equal("ratelimit:1.2.3.4_cua_cread:auth", forged)
	})

	s.Run("escape character cannot collide", func() {
		cases := []string{"a_:b", "a:_b", "a__b", "a_cb", "a:b"}
		seen := map[string]string{}
		for _, identity := range cases {
			key := NewKey(identity, CategoryWrite).String()
			prev, dup := seen[key]
			s.False(dup, "identities %q and %q collide", prev, identity)
			seen[key] = identity
		}
	})
}

func (s *KeySecuritySuite) TestParseKey() {
	s.Run("round trip", func() {
		for _, identity := range []string{"1.2.3.4:Mozilla/5.0", "a_:b__c", "unknown:unknown"} {
			key, ok := ParseKey(NewKey(identity, CategoryFinancial).String())
			s.Require().True(ok)
			s.Equal(identity, key.Identity())
			s.Equal(CategoryFinancial, key.Category())
		}
	})

	s.Run("foreign keys are rejected", func() {
		for _, raw := range []string{
			"session:abc",
			"ratelimit:abc",
			"ratelimit::read",
			"ratelimit:abc:bogus",
			"ratelimit:a_xb:read",
			"ratelimit:ab_:read",
		} {
			_, ok := ParseKey(raw)
			s.False(ok, raw)
		}
	})
}
