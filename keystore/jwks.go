package keystore

import "github.com/go-jose/go-jose/v4"

// PublicKeySet exports every currently admitted verification key as a JWKS
// document, suitable for serving on a /.well-known/jwks.json endpoint.
// During a rotation overlap window the set contains both keys so relying
// parties can verify tokens signed before the rotation.
func (s *Store) PublicKeySet() jose.JSONWebKeySet {
	verifiers := s.Verifiers()

	set := jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(verifiers))}
	for _, v := range verifiers {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       v.Key,
			KeyID:     v.KID,
			Use:       "sig",
			Algorithm: "RS256",
		})
	}
	return set
}
