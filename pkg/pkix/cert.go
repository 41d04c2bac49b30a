package pkix

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"time"
)

type PrivateKeyType string
type ECDSACurveType string

const (
	PrivateKeyTypeRSA   PrivateKeyType = "RSA"
	PrivateKeyTypeECDSA PrivateKeyType = "ECDSA"

	ECDSACurveTypeP256 ECDSACurveType = "P-256"
	ECDSACurveTypeP384 ECDSACurveType = "P-384"
	ECDSACurveTypeP521 ECDSACurveType = "P-521"
)

var ErrInvalidParameter = errors.New("invalid parameter")

type PrivateKeyOption struct {
	KeyType   PrivateKeyType `json:"key_type" yaml:"key_type"`
	BitLength int            `json:"bit_length" yaml:"bit_length"` // Only used when KeyType is RSA.
	CurveType ECDSACurveType `json:"curve_type" yaml:"curve_type"` // Only used when KeyType is ECDSA.
}

func CreatePrivateKey(option PrivateKeyOption) (crypto.Signer, error) {
	switch option.KeyType {
	case PrivateKeyTypeRSA:
		if option.BitLength < 2048 {
			return nil, fmt.Errorf("bit length %d is too short: %w", option.BitLength, ErrInvalidParameter)
		}
		return rsa.GenerateKey(rand.Reader, option.BitLength)
	case PrivateKeyTypeECDSA:
		var curve elliptic.Curve
		switch option.CurveType {
		case ECDSACurveTypeP256:
			curve = elliptic.P256()
		case ECDSACurveTypeP384:
			curve = elliptic.P384()
		case ECDSACurveTypeP521:
			curve = elliptic.P521()
		default:
			return nil, fmt.Errorf("unknown curve type %q: %w", option.CurveType, ErrInvalidParameter)
		}
		return ecdsa.GenerateKey(curve, rand.Reader)
	}

	return nil, fmt.Errorf("unknown key type %q: %w", option.KeyType, ErrInvalidParameter)
}

func MarshalPrivateKey(key crypto.Signer) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", err
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	return string(pemBytes), nil
}

func ParsePrivateKey(key []byte) (interface{}, error) {
	pemBlock, _ := pem.Decode(key)
	if pemBlock == nil {
		return nil, errors.New("invalid private key")
	}

	ecPrivateKey, ecErr := x509.ParseECPrivateKey(pemBlock.Bytes)
	if ecErr == nil {
		return ecPrivateKey, nil
	}

	privKey, pkcs8Err := x509.ParsePKCS8PrivateKey(pemBlock.Bytes)
	if pkcs8Err == nil {
		return privKey, nil
	}

	// Fallback to PKCS1
	privKey, pkcs1Err := x509.ParsePKCS1PrivateKey(pemBlock.Bytes)
	if pkcs1Err == nil {
		return privKey, nil
	}

	return nil, pkcs8Err
}

func ParseCertificate(certRaw []byte) ([]*x509.Certificate, error) {
	certs := make([]*x509.Certificate, 0, 4)
	for {
		pemBlock, remains := pem.Decode(certRaw)
		if pemBlock == nil {
			return nil, errors.New("invalid certificate")
		}

		cert, err := x509.ParseCertificate(pemBlock.Bytes)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)

		if len(remains) == 0 {
			break
		}
		certRaw = remains
	}

	return certs, nil
}

func MarshalCertificates(certs ...*x509.Certificate) ([]byte, error) {
	if len(certs) == 0 {
		return nil, errors.New("no certificate provided")
	}

	result := make([]byte, 0, 4096)
	for _, cert := range certs {
		pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
		if pemBytes == nil {
			return nil, errors.New("fail to encode certificate")
		}
		result = append(result, pemBytes...)
	}

	return result, nil
}

func ParseCertificateRequest(certRequest []byte) (*x509.CertificateRequest, error) {
	pemBlock, _ := pem.Decode(certRequest)
	if pemBlock == nil {
		return nil, errors.New("invalid certificate request")
	}

	return x509.ParseCertificateRequest(pemBlock.Bytes)
}

func CreateCertificateSigningRequest(key crypto.Signer, country, org, unit []string, commonName string) ([]byte, error) {
	template := x509.CertificateRequest{
		Subject: pkix.Name{
			Country:            country,
			Organization:       org,
			OrganizationalUnit: unit,
			CommonName:         commonName,
		},
	}

	der, err := x509.CreateCertificateRequest(rand.Reader, &template, key)
	if err != nil {
		return nil, err
	}

	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}), nil
}

// PublicKeyID derives the key identifier used for the SubjectKeyId and
// AuthorityKeyId extensions. For ECDSA keys the digest input is the
// uncompressed point representation of the key. The same digest is applied
// to every certificate of a chain so identifier matching works for
// chain-building tools.
func PublicKeyID(pubKey interface{}) ([]byte, error) {
	switch key := pubKey.(type) {
	case *ecdsa.PublicKey:
		ecdhKey, err := key.ECDH()
		if err != nil {
			return nil, err
		}
		digest := sha256.Sum256(ecdhKey.Bytes())
		return digest[:], nil
	default:
		der, err := x509.MarshalPKIXPublicKey(pubKey)
		if err != nil {
			return nil, err
		}
		digest := sha256.Sum256(der)
		return digest[:], nil
	}
}

func GetSubjectKeyIDFromCertificate(cert *x509.Certificate) string {
	return hex.EncodeToString(cert.SubjectKeyId)
}

func GetAuthorityKeyIDFromCertificate(cert *x509.Certificate) string {
	return hex.EncodeToString(cert.AuthorityKeyId)
}

func IsPublicKeyOf(privKey interface{}, pubKey interface{}) bool {
	signer, ok := privKey.(crypto.Signer)
	if !ok {
		return false
	}

	type equaler interface {
		Equal(crypto.PublicKey) bool
	}

	pub, ok := signer.Public().(equaler)
	if !ok {
		return false
	}
	return pub.Equal(pubKey)
}

// Verify verifies the certificate chain of trust at the given unix time.
//
// The first certificate in the chain is the end-entity certificate.
// The rest of the certificates are intermediate certificates.
//
// The rootCerts parameter is the trust anchor set. System preinstalled
// certificates are intentionally not consulted so that only the supplied
// roots establish trust.
func Verify(certs []*x509.Certificate, rootCerts []*x509.Certificate, ts int64) error {
	if len(certs) == 0 {
		return errors.New("no certificate provided")
	}
	if len(rootCerts) == 0 {
		return errors.New("no root certificate provided")
	}

	rootPool := x509.NewCertPool()
	for _, rootCert := range rootCerts {
		rootPool.AddCert(rootCert)
	}
	intermediatePool := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediatePool.AddCert(cert)
	}

	options := x509.VerifyOptions{
		Roots:         rootPool,
		Intermediates: intermediatePool,
		CurrentTime:   time.Unix(ts, 0),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}

	if _, err := certs[0].Verify(options); err != nil {
		return err
	}

	return nil
}
