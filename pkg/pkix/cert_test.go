package pkix_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	gopkix "crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/openc2pa/openc2pa/pkg/pkix"
	"github.com/stretchr/testify/suite"
)

type CertVerifyTestSuite struct {
	suite.Suite
	rootCert         *x509.Certificate // Cert of Root CA. Self-signed in this test suite.
	intermediateCert *x509.Certificate // Cert of Intermediate CA. Signed by Root CA.
	cert             *x509.Certificate // Cert of End Entity. Signed by Intermediate CA.

	otherRootCert *x509.Certificate // Self-signed root of an unrelated hierarchy.
}

func TestCertVerifyTestSuite(t *testing.T) {
	suite.Run(t, new(CertVerifyTestSuite))
}

func (s *CertVerifyTestSuite) SetupSuite() {
	rootPrivKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	intermediatePrivKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	leafPrivKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	otherRootPrivKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)

	rootTemplate := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: gopkix.Name{
			Country:            []string{"US"},
			Organization:       []string{"OpenC2PA"},
			OrganizationalUnit: []string{"OpenC2PA Test PKI"},
			CommonName:         "OpenC2PA Test Root CA",
		},
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(10, 0, 0),
	}

	intermediateTemplate := rootTemplate
	intermediateTemplate.SerialNumber = big.NewInt(2)
	intermediateTemplate.Subject.CommonName = "OpenC2PA Test Intermediate CA"

	leafTemplate := rootTemplate
	leafTemplate.SerialNumber = big.NewInt(3)
	leafTemplate.Subject.CommonName = "OpenC2PA Test Leaf"
	leafTemplate.IsCA = false
	leafTemplate.KeyUsage = x509.KeyUsageDigitalSignature

	otherRootTemplate := rootTemplate
	otherRootTemplate.Subject.CommonName = "Unrelated Root CA"

	rootCertBytes, _ := x509.CreateCertificate(rand.Reader, &rootTemplate, &rootTemplate, &rootPrivKey.PublicKey, rootPrivKey)
	rootCert, _ := x509.ParseCertificate(rootCertBytes)

	intermediateCertBytes, _ := x509.CreateCertificate(rand.Reader, &intermediateTemplate, rootCert, &intermediatePrivKey.PublicKey, rootPrivKey)
	intermediateCert, _ := x509.ParseCertificate(intermediateCertBytes)

	leafCertBytes, _ := x509.CreateCertificate(rand.Reader, &leafTemplate, intermediateCert, &leafPrivKey.PublicKey, intermediatePrivKey)
	leafCert, _ := x509.ParseCertificate(leafCertBytes)

	otherRootCertBytes, _ := x509.CreateCertificate(rand.Reader, &otherRootTemplate, &otherRootTemplate, &otherRootPrivKey.PublicKey, otherRootPrivKey)
	otherRootCert, _ := x509.ParseCertificate(otherRootCertBytes)

	s.rootCert = rootCert
	s.intermediateCert = intermediateCert
	s.cert = leafCert
	s.otherRootCert = otherRootCert
}

func (s *CertVerifyTestSuite) TestVerify() {
	ts := time.Now().Unix()

	err := pkix.Verify([]*x509.Certificate{s.cert, s.intermediateCert}, []*x509.Certificate{s.rootCert}, ts)
	s.NoError(err)

	err = pkix.Verify([]*x509.Certificate{s.intermediateCert}, []*x509.Certificate{s.rootCert}, ts)
	s.NoError(err)

	err = pkix.Verify([]*x509.Certificate{s.rootCert}, []*x509.Certificate{s.rootCert}, ts)
	s.NoError(err)
}

func (s *CertVerifyTestSuite) TestVerifyWithWrongRoot() {
	ts := time.Now().Unix()

	err := pkix.Verify([]*x509.Certificate{s.cert, s.intermediateCert}, []*x509.Certificate{s.otherRootCert}, ts)
	s.Error(err)
}

func (s *CertVerifyTestSuite) TestVerifyWithExpiredTime() {
	ts := time.Now().AddDate(20, 0, 0).Unix()

	err := pkix.Verify([]*x509.Certificate{s.cert, s.intermediateCert}, []*x509.Certificate{s.rootCert}, ts)
	s.Error(err)
}

func (s *CertVerifyTestSuite) TestVerifyWithEmptyInput() {
	ts := time.Now().Unix()

	s.Error(pkix.Verify(nil, []*x509.Certificate{s.rootCert}, ts))
	s.Error(pkix.Verify([]*x509.Certificate{s.cert}, nil, ts))
}

func (s *CertVerifyTestSuite) TestMarshalAndParseCertificates() {
	pemBytes, err := pkix.MarshalCertificates(s.cert, s.intermediateCert, s.rootCert)
	s.Require().NoError(err)

	certs, err := pkix.ParseCertificate(pemBytes)
	s.Require().NoError(err)
	s.Require().Len(certs, 3)
	s.Equal(s.cert.Raw, certs[0].Raw)
	s.Equal(s.intermediateCert.Raw, certs[1].Raw)
	s.Equal(s.rootCert.Raw, certs[2].Raw)
}

func TestCreatePrivateKey(t *testing.T) {
	key, err := pkix.CreatePrivateKey(pkix.PrivateKeyOption{KeyType: pkix.PrivateKeyTypeECDSA, CurveType: pkix.ECDSACurveTypeP256})
	if err != nil {
		t.Fatalf("CreatePrivateKey ECDSA: %v", err)
	}
	if _, ok := key.(*ecdsa.PrivateKey); !ok {
		t.Fatalf("expected *ecdsa.PrivateKey, got %T", key)
	}

	if _, err := pkix.CreatePrivateKey(pkix.PrivateKeyOption{KeyType: "DSA"}); err == nil {
		t.Fatal("expected error for unknown key type")
	}
	if _, err := pkix.CreatePrivateKey(pkix.PrivateKeyOption{KeyType: pkix.PrivateKeyTypeRSA, BitLength: 512}); err == nil {
		t.Fatal("expected error for short RSA key")
	}
}

func TestPrivateKeyRoundTrip(t *testing.T) {
	key, err := pkix.CreatePrivateKey(pkix.PrivateKeyOption{KeyType: pkix.PrivateKeyTypeECDSA, CurveType: pkix.ECDSACurveTypeP256})
	if err != nil {
		t.Fatal(err)
	}

	pemStr, err := pkix.MarshalPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := pkix.ParsePrivateKey([]byte(pemStr))
	if err != nil {
		t.Fatal(err)
	}
	if !pkix.IsPublicKeyOf(parsed, key.Public()) {
		t.Fatal("parsed key does not match the original key")
	}
}

func TestCreateCertificateSigningRequest(t *testing.T) {
	key, err := pkix.CreatePrivateKey(pkix.PrivateKeyOption{KeyType: pkix.PrivateKeyTypeECDSA, CurveType: pkix.ECDSACurveTypeP256})
	if err != nil {
		t.Fatal(err)
	}

	csrPEM, err := pkix.CreateCertificateSigningRequest(key, []string{"US"}, []string{"OpenC2PA"}, []string{"Dev"}, "csr test")
	if err != nil {
		t.Fatal(err)
	}

	csr, err := pkix.ParseCertificateRequest(csrPEM)
	if err != nil {
		t.Fatal(err)
	}
	if csr.Subject.CommonName != "csr test" {
		t.Fatalf("unexpected common name %q", csr.Subject.CommonName)
	}
	if !pkix.IsPublicKeyOf(key, csr.PublicKey) {
		t.Fatal("CSR public key does not match the generated key")
	}
}

func TestPublicKeyID(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	id1, err := pkix.PublicKeyID(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := pkix.PublicKeyID(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	if len(id1) != 32 {
		t.Fatalf("unexpected key ID length %d", len(id1))
	}
	if string(id1) != string(id2) {
		t.Fatal("key ID derivation is not deterministic")
	}

	otherKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	otherID, err := pkix.PublicKeyID(&otherKey.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	if string(id1) == string(otherID) {
		t.Fatal("distinct keys yielded the same key ID")
	}
}
