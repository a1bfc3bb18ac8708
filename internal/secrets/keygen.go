package secrets

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// BootstrapKey is an ephemeral SSH key pair injected into a node at
// creation so the bootstrap channel works before the node joins. The
// private half lives only in this process.
type BootstrapKey struct {
	PrivateKeyPEM []byte
	AuthorizedKey []byte
}

// GenerateBootstrapKey creates a fresh ed25519 key pair.
func GenerateBootstrapKey() (*BootstrapKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	pemBlock, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}

	return &BootstrapKey{
		PrivateKeyPEM: pem.EncodeToMemory(pemBlock),
		AuthorizedKey: ssh.MarshalAuthorizedKey(sshPub),
	}, nil
}
