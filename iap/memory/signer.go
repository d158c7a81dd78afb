package memory

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"
)

// signer signs purchase records with an ed25519 key, standing in for the
// vendor's signing key. Signatures travel base64 encoded.
type signer struct {
	publicKey  ed25519.PublicKey
	privateKey ed25519.PrivateKey
}

func newSigner() (*signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate signing key")
	}
	return &signer{publicKey: pub, privateKey: priv}, nil
}

func (s *signer) sign(data string) string {
	signature := ed25519.Sign(s.privateKey, []byte(data))
	return base64.StdEncoding.EncodeToString(signature)
}

func (s *signer) verify(data, signature string) bool {
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(s.publicKey, []byte(data), decoded)
}
