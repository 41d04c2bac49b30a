package cert_authority

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	gopkix "crypto/x509/pkix"
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/openc2pa/openc2pa/pkg/pkix"
	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
	"github.com/openc2pa/openc2pa/pkg/sign_server/storage"
	"github.com/openc2pa/openc2pa/pkg/util"
	"github.com/sirupsen/logrus"
)

const (
	csrPEMMarker = "-----BEGIN CERTIFICATE REQUEST-----"

	// Validity windows start slightly in the past to tolerate clock skew
	// between the caller and the server.
	caValiditySkew   = 5 * time.Minute
	leafValiditySkew = time.Minute

	rootValidity         = 10 * 365 * 24 * time.Hour
	intermediateValidity = 5 * 365 * 24 * time.Hour
	leafValidity         = 365 * 24 * time.Hour
)

type CertAuthority interface {
	// IssueCertificate signs a client supplied CSR with the intermediate CA
	// and returns the full chain (leaf, intermediate, root).
	IssueCertificate(ctx context.Context, ts int64, req IssueCertificateRequest) (model.IssuedCert, error)

	// ListIssuedCerts returns issuance audit records. Only available when the
	// cert authority is configured with an issuance storage.
	ListIssuedCerts(ctx context.Context, req storage.ListIssuedCertsRequest) (storage.ListIssuedCertsResponse, error)

	// CACertificates returns the PEM encoded CA chain (intermediate, root).
	CACertificates() string
}

type IssueCertificateRequest struct {
	Requester string                 `json:"requester"` // Who makes the request.
	CSR       string                 `json:"csr"`       // PEM encoded certificate signing request.
	Metadata  model.IssuanceMetadata `json:"metadata"`  // Advisory caller metadata. Logged, never bound into the certificate.
}

type Option func(ca *_CertAuthority)

// WithIssuanceStorage attaches an audit log for issued certificates. Without
// it issuances are only logged through logrus.
func WithIssuanceStorage(s storage.IssuanceStorage) Option {
	return func(ca *_CertAuthority) {
		ca.storage = s
	}
}

// WithSubjectOrganization overrides the organization used in the root and
// intermediate subject names.
func WithSubjectOrganization(org string) Option {
	return func(ca *_CertAuthority) {
		ca.organization = org
	}
}

type _CertAuthority struct {
	organization string

	rootKey          crypto.Signer
	rootCert         *x509.Certificate
	intermediateKey  crypto.Signer
	intermediateCert *x509.Certificate
	caChainPEM       string

	storage storage.IssuanceStorage
}

// NewCertAuthority generates a fresh two-level CA hierarchy. The key material
// lives in process memory only; every construction yields a new, incompatible
// hierarchy. All fields are immutable after construction, so one instance is
// safe for unbounded concurrent issuance.
func NewCertAuthority(opts ...Option) (*_CertAuthority, error) {
	ca := &_CertAuthority{
		organization: "OpenC2PA Test PKI",
	}
	for _, opt := range opts {
		opt(ca)
	}

	if err := ca.bootstrap(time.Now()); err != nil {
		return nil, fmt.Errorf("bootstrap CA hierarchy: %w", err)
	}
	return ca, nil
}

func (ca *_CertAuthority) bootstrap(now time.Time) error {
	rootKey, err := pkix.CreatePrivateKey(pkix.PrivateKeyOption{KeyType: pkix.PrivateKeyTypeECDSA, CurveType: pkix.ECDSACurveTypeP256})
	if err != nil {
		return fmt.Errorf("generate root key: %w", err)
	}
	intermediateKey, err := pkix.CreatePrivateKey(pkix.PrivateKeyOption{KeyType: pkix.PrivateKeyTypeECDSA, CurveType: pkix.ECDSACurveTypeP256})
	if err != nil {
		return fmt.Errorf("generate intermediate key: %w", err)
	}

	rootSerial, err := newSerialNumber()
	if err != nil {
		return err
	}
	rootKeyID, err := pkix.PublicKeyID(rootKey.Public())
	if err != nil {
		return fmt.Errorf("derive root key ID: %w", err)
	}

	rootTemplate := x509.Certificate{
		SerialNumber: rootSerial,
		Subject: gopkix.Name{
			Country:            []string{"US"},
			Organization:       []string{ca.organization},
			CommonName:         fmt.Sprintf("%s Root CA", ca.organization),
			OrganizationalUnit: []string{"FOR TESTING_ONLY"},
		},
		NotBefore:             now.Add(-caValiditySkew),
		NotAfter:              now.Add(rootValidity),
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLen:            1,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		SubjectKeyId:          rootKeyID,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, &rootTemplate, &rootTemplate, rootKey.Public(), rootKey)
	if err != nil {
		return fmt.Errorf("create root certificate: %w", err)
	}
	rootCert, err := x509.ParseCertificate(rootDER)
	if err != nil {
		return fmt.Errorf("parse root certificate: %w", err)
	}

	intermediateSerial, err := newSerialNumber()
	if err != nil {
		return err
	}
	intermediateKeyID, err := pkix.PublicKeyID(intermediateKey.Public())
	if err != nil {
		return fmt.Errorf("derive intermediate key ID: %w", err)
	}

	intermediateTemplate := x509.Certificate{
		SerialNumber: intermediateSerial,
		Subject: gopkix.Name{
			Country:            []string{"US"},
			Organization:       []string{ca.organization},
			CommonName:         fmt.Sprintf("%s Intermediate CA", ca.organization),
			OrganizationalUnit: []string{"FOR TESTING_ONLY"},
		},
		NotBefore:             now.Add(-caValiditySkew),
		NotAfter:              now.Add(intermediateValidity),
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLen:            0,
		MaxPathLenZero:        true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		SubjectKeyId:          intermediateKeyID,
	}
	intermediateDER, err := x509.CreateCertificate(rand.Reader, &intermediateTemplate, rootCert, intermediateKey.Public(), rootKey)
	if err != nil {
		return fmt.Errorf("create intermediate certificate: %w", err)
	}
	intermediateCert, err := x509.ParseCertificate(intermediateDER)
	if err != nil {
		return fmt.Errorf("parse intermediate certificate: %w", err)
	}

	caChainPEM, err := pkix.MarshalCertificates(intermediateCert, rootCert)
	if err != nil {
		return fmt.Errorf("marshal CA chain: %w", err)
	}

	ca.rootKey = rootKey
	ca.rootCert = rootCert
	ca.intermediateKey = intermediateKey
	ca.intermediateCert = intermediateCert
	ca.caChainPEM = string(caChainPEM)
	return nil
}

func (ca *_CertAuthority) IssueCertificate(ctx context.Context, ts int64, req IssueCertificateRequest) (model.IssuedCert, error) {
	if err := ValidateIssueCertificateRequest(req); err != nil {
		return model.IssuedCert{}, err
	}

	// Structural PEM check before any cryptographic parsing.
	if !strings.Contains(req.CSR, csrPEMMarker) {
		return model.IssuedCert{}, fmt.Errorf("CSR PEM marker is missing: %w", model.ErrMalformedCSR)
	}

	csr, err := pkix.ParseCertificateRequest([]byte(req.CSR))
	if err != nil {
		return model.IssuedCert{}, fmt.Errorf("%s: %w", err.Error(), model.ErrMalformedCSR)
	}
	if csr.PublicKey == nil {
		return model.IssuedCert{}, fmt.Errorf("CSR has no public key: %w", model.ErrMalformedCSR)
	}

	serialNumber, err := newSerialNumber()
	if err != nil {
		return model.IssuedCert{}, err
	}
	leafKeyID, err := pkix.PublicKeyID(csr.PublicKey)
	if err != nil {
		return model.IssuedCert{}, fmt.Errorf("derive key ID from CSR public key: %s: %w", err.Error(), model.ErrMalformedCSR)
	}

	notBefore := time.Unix(ts, 0).Add(-leafValiditySkew)
	notAfter := time.Unix(ts, 0).Add(leafValidity)

	// The CSR's subject and public key are taken as-is. Proof of possession
	// of the private key is not verified; acceptable for a test CA only.
	template := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               csr.Subject,
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageEmailProtection},
		SubjectKeyId:          leafKeyID,
	}

	leafDER, err := x509.CreateCertificate(rand.Reader, &template, ca.intermediateCert, csr.PublicKey, ca.intermediateKey)
	if err != nil {
		return model.IssuedCert{}, fmt.Errorf("fail to CreateCertificate: %w", err)
	}
	leafCert, err := x509.ParseCertificate(leafDER)
	if err != nil {
		return model.IssuedCert{}, fmt.Errorf("fail to ParseCertificate: %w", err)
	}

	chainPEM, err := pkix.MarshalCertificates(leafCert, ca.intermediateCert, ca.rootCert)
	if err != nil {
		return model.IssuedCert{}, fmt.Errorf("fail to MarshalCertificates: %w", err)
	}

	cert := model.IssuedCert{
		ID:               util.NewUUID(),
		Type:             model.LeafCert,
		CreatedAt:        ts,
		CreatedBy:        req.Requester,
		NotBefore:        leafCert.NotBefore.Unix(),
		ExpiresAt:        leafCert.NotAfter.Unix(),
		SerialNumber:     leafCert.SerialNumber.String(),
		CertificateChain: string(chainPEM),
		PublicKeyID:      pkix.GetSubjectKeyIDFromCertificate(leafCert),
		IssuerKeyID:      pkix.GetAuthorityKeyIDFromCertificate(leafCert),
		CertFingerPrint:  fmt.Sprintf("sha256:%x", sha256.Sum256(leafCert.Raw)),
		Metadata:         req.Metadata,
	}

	if err := ca.recordIssuance(ctx, cert); err != nil {
		return model.IssuedCert{}, err
	}

	return cert, nil
}

func (ca *_CertAuthority) recordIssuance(ctx context.Context, cert model.IssuedCert) error {
	if ca.storage == nil {
		logrus.Infof("Issued certificate %s (serial %s) for %q, device_id=%q purpose=%q",
			cert.ID, cert.SerialNumber, cert.CreatedBy, cert.Metadata.DeviceID, cert.Metadata.Purpose)
		return nil
	}

	tx, ctx, err := ca.storage.CreateTx(ctx, storage.TxOptionWithWrite(true), storage.TxOptionWithIsolationLevel(sql.LevelSerializable))
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := ca.storage.AddIssuedCert(ctx, tx, cert); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (ca *_CertAuthority) ListIssuedCerts(ctx context.Context, req storage.ListIssuedCertsRequest) (storage.ListIssuedCertsResponse, error) {
	if err := ValidateListIssuedCertsRequest(req); err != nil {
		return storage.ListIssuedCertsResponse{}, err
	}
	if ca.storage == nil {
		return storage.ListIssuedCertsResponse{}, fmt.Errorf("issuance storage is not configured: %w", model.ErrInvalidParameter)
	}

	tx, ctx, err := ca.storage.CreateTx(ctx)
	if err != nil {
		return storage.ListIssuedCertsResponse{}, err
	}
	defer tx.Rollback(ctx)

	return ca.storage.ListIssuedCerts(ctx, tx, req)
}

func (ca *_CertAuthority) CACertificates() string {
	return ca.caChainPEM
}

// newSerialNumber returns a random 128-bit serial. The space is wide enough
// that repetition within a CA lifetime is not a practical concern.
func newSerialNumber() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, fmt.Errorf("generate serial number: %w", err)
	}
	return serial, nil
}
