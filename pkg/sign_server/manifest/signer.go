package manifest

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/openc2pa/openc2pa/pkg/pkix"
	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
)

// Signer describes the key material handed to the manifest engine. The
// sign server loads it from a fixed pair of PEM files on every signing
// request; the files are deployment configuration, not per-caller input.
type Signer struct {
	Algorithm     string // Signature algorithm name, e.g. "es256".
	CertChainPEM  []byte
	PrivateKeyPEM []byte
	TSAURL        string // Optional timestamp authority URL.
}

type SignRequest struct {
	ManifestJSON string
	Format       string // MIME type of the asset, e.g. "image/jpeg".
	Signer       Signer
	Source       io.Reader
	Dest         io.Writer
}

// Engine embeds a signed C2PA manifest into an asset. The manifest format
// and embedding algorithm are entirely the engine's concern; the server
// only marshals inputs and outputs across this boundary.
type Engine interface {
	SignManifest(ctx context.Context, req SignRequest) error
}

// LoadSignerFromFiles reads and sanity-checks the static test certificate
// chain and private key. Failures indicate deployment misconfiguration and
// map to a server fault, not a client error.
func LoadSignerFromFiles(certFile, keyFile, algorithm, tsaURL string) (Signer, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return Signer{}, fmt.Errorf("read certificate chain %s: %s: %w", certFile, err.Error(), model.ErrSignerMaterial)
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return Signer{}, fmt.Errorf("read private key %s: %s: %w", keyFile, err.Error(), model.ErrSignerMaterial)
	}

	if _, err := pkix.ParseCertificate(certPEM); err != nil {
		return Signer{}, fmt.Errorf("parse certificate chain %s: %s: %w", certFile, err.Error(), model.ErrSignerMaterial)
	}
	if _, err := pkix.ParsePrivateKey(keyPEM); err != nil {
		return Signer{}, fmt.Errorf("parse private key %s: %s: %w", keyFile, err.Error(), model.ErrSignerMaterial)
	}

	return Signer{
		Algorithm:     algorithm,
		CertChainPEM:  certPEM,
		PrivateKeyPEM: keyPEM,
		TSAURL:        tsaURL,
	}, nil
}
