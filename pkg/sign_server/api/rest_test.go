package api_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	ocpkix "github.com/openc2pa/openc2pa/pkg/pkix"
	"github.com/openc2pa/openc2pa/pkg/sign_server/api"
	"github.com/openc2pa/openc2pa/pkg/sign_server/cert_authority"
	"github.com/openc2pa/openc2pa/pkg/sign_server/manifest"
	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
	"github.com/openc2pa/openc2pa/pkg/sign_server/storage"
	mock_cert_authority "github.com/openc2pa/openc2pa/test/mock/sign_server/cert_authority"
	mock_manifest "github.com/openc2pa/openc2pa/test/mock/sign_server/manifest"
	"github.com/stretchr/testify/suite"
)

type RestServerTestSuite struct {
	suite.Suite

	ctx            context.Context
	basePortNumber int32
	localAddress   string

	certFile string
	keyFile  string

	ctrl       *gomock.Controller
	ca         *mock_cert_authority.MockCertAuthority
	engine     *mock_manifest.MockEngine
	restServer *api.RestServer
}

func TestRestServerTestSuite(t *testing.T) {
	suite.Run(t, new(RestServerTestSuite))
}

func (s *RestServerTestSuite) SetupSuite() {
	s.basePortNumber = 11000

	key, err := ocpkix.CreatePrivateKey(ocpkix.PrivateKeyOption{KeyType: ocpkix.PrivateKeyTypeECDSA, CurveType: ocpkix.ECDSACurveTypeP256})
	s.Require().NoError(err)
	keyPEM, err := ocpkix.MarshalPrivateKey(key)
	s.Require().NoError(err)

	ca, err := cert_authority.NewCertAuthority()
	s.Require().NoError(err)
	csrPEM, err := ocpkix.CreateCertificateSigningRequest(key, []string{"US"}, []string{"Example App"}, []string{"Mobile"}, "signer")
	s.Require().NoError(err)
	cert, err := ca.IssueCertificate(context.Background(), time.Now().Unix(), cert_authority.IssueCertificateRequest{
		Requester: "test",
		CSR:       string(csrPEM),
	})
	s.Require().NoError(err)

	dir := s.T().TempDir()
	s.certFile = filepath.Join(dir, "chain.pem")
	s.keyFile = filepath.Join(dir, "private.key")
	s.Require().NoError(os.WriteFile(s.certFile, []byte(cert.CertificateChain), 0600))
	s.Require().NoError(os.WriteFile(s.keyFile, []byte(keyPEM), 0600))
}

func (s *RestServerTestSuite) setupServer(authToken string) {
	portNum := atomic.AddInt32(&s.basePortNumber, 1)
	s.localAddress = fmt.Sprintf("localhost:%d", portNum)

	config := api.RestServerConfig{
		ServerAddress: s.localAddress,
		AuthToken:     authToken,
		Signer: api.SignerConfig{
			CertFile:  s.certFile,
			KeyFile:   s.keyFile,
			Algorithm: "es256",
		},
	}
	s.restServer = api.NewRestServerWithController(s.ca, s.engine, config, true)

	go func() {
		s.restServer.Run()
	}()
	time.Sleep(100 * time.Millisecond)
}

func (s *RestServerTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.ca = mock_cert_authority.NewMockCertAuthority(s.ctrl)
	s.engine = mock_manifest.NewMockEngine(s.ctrl)
	s.setupServer("")
}

func (s *RestServerTestSuite) TearDownTest() {
	s.ctrl.Finish()
	s.restServer.Close(s.ctx)
}

func (s *RestServerTestSuite) TestHealthCheck() {
	endPoint := fmt.Sprintf("http://%s/health", s.localAddress)
	resp, err := http.Get(endPoint)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *RestServerTestSuite) TestSignCertificate() {
	ts := time.Now().Unix()
	expectedRequest := cert_authority.IssueCertificateRequest{
		Requester: "app-1",
		CSR:       "-----BEGIN CERTIFICATE REQUEST-----\n...\n-----END CERTIFICATE REQUEST-----\n",
		Metadata: model.IssuanceMetadata{
			DeviceID: "device-42",
			Purpose:  "c2pa-signing",
		},
	}

	result := model.IssuedCert{
		ID:               "cert_id",
		Type:             model.LeafCert,
		CreatedAt:        ts,
		CreatedBy:        "app-1",
		ExpiresAt:        ts + 365*24*3600,
		SerialNumber:     "12345",
		CertificateChain: "chain pem",
	}

	s.ca.EXPECT().IssueCertificate(gomock.Any(), gomock.Any(), expectedRequest).Return(result, nil)

	body, _ := json.Marshal(api.SignCertificateRequest{
		CSR:      expectedRequest.CSR,
		Metadata: expectedRequest.Metadata,
	})
	endPoint := fmt.Sprintf("http://%s/api/v1/certificates/sign", s.localAddress)
	httpRequest, _ := http.NewRequest(http.MethodPost, endPoint, bytes.NewReader(body))
	httpRequest.Header.Set("X-Requester", "app-1")

	resp, err := http.DefaultClient.Do(httpRequest)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	returnedCert := model.IssuedCert{}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&returnedCert))
	s.Equal(result, returnedCert)
}

func (s *RestServerTestSuite) TestSignCertificateEndToEnd() {
	s.restServer.Close(s.ctx)
	ca, err := cert_authority.NewCertAuthority()
	s.Require().NoError(err)

	portNum := atomic.AddInt32(&s.basePortNumber, 1)
	s.localAddress = fmt.Sprintf("localhost:%d", portNum)
	s.restServer = api.NewRestServerWithController(ca, s.engine, api.RestServerConfig{ServerAddress: s.localAddress}, false)
	go func() {
		s.restServer.Run()
	}()
	time.Sleep(100 * time.Millisecond)

	key, err := ocpkix.CreatePrivateKey(ocpkix.PrivateKeyOption{KeyType: ocpkix.PrivateKeyTypeECDSA, CurveType: ocpkix.ECDSACurveTypeP256})
	s.Require().NoError(err)
	csrPEM, err := ocpkix.CreateCertificateSigningRequest(key, []string{"US"}, []string{"Example App"}, []string{"Mobile"}, "device-42")
	s.Require().NoError(err)

	body, _ := json.Marshal(api.SignCertificateRequest{CSR: string(csrPEM)})
	endPoint := fmt.Sprintf("http://%s/api/v1/certificates/sign", s.localAddress)
	resp, err := http.Post(endPoint, "application/json", bytes.NewReader(body))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	cert := model.IssuedCert{}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&cert))
	s.Assert().NotEmpty(cert.ID)
	s.Assert().NotEmpty(cert.SerialNumber)
	s.Assert().Equal(cert.CreatedAt+365*24*3600, cert.ExpiresAt)

	chain, err := ocpkix.ParseCertificate([]byte(cert.CertificateChain))
	s.Require().NoError(err)
	s.Require().Len(chain, 3)
	s.Assert().Equal("device-42", chain[0].Subject.CommonName)
	s.Assert().Equal(chain[1].Subject.String(), chain[0].Issuer.String())
	s.Assert().Equal(chain[2].Subject.String(), chain[1].Issuer.String())
}

func (s *RestServerTestSuite) TestSignCertificateWithMalformedCSR() {
	s.ca.EXPECT().IssueCertificate(gomock.Any(), gomock.Any(), gomock.Any()).Return(
		model.IssuedCert{},
		fmt.Errorf("CSR PEM marker is missing: %w", model.ErrMalformedCSR),
	)

	body := `{"csr": "not a pem"}`
	endPoint := fmt.Sprintf("http://%s/api/v1/certificates/sign", s.localAddress)
	resp, err := http.Post(endPoint, "application/json", strings.NewReader(body))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *RestServerTestSuite) TestGetCAChain() {
	s.ca.EXPECT().CACertificates().Return("ca chain pem")

	endPoint := fmt.Sprintf("http://%s/api/v1/certificates/ca_chain", s.localAddress)
	resp, err := http.Get(endPoint)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Equal("ca chain pem", string(body))
}

func (s *RestServerTestSuite) TestListCertificates() {
	expectedRequest := storage.ListIssuedCertsRequest{
		Offset:        3,
		Limit:         10,
		IDs:           []string{},
		SerialNumbers: []string{"102"},
	}

	result := storage.ListIssuedCertsResponse{
		Total: 1,
		Certs: []model.IssuedCert{
			{
				ID:           "cert_id",
				Type:         model.LeafCert,
				SerialNumber: "12345",
			},
		},
	}

	s.ca.EXPECT().ListIssuedCerts(gomock.Any(), expectedRequest).Return(result, nil)

	endPoint := fmt.Sprintf("http://%s/api/v1/certificates?offset=3&limit=10&serial_number=102", s.localAddress)
	resp, err := http.Get(endPoint)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	returnedCerts := storage.ListIssuedCertsResponse{}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&returnedCerts))
	s.Equal(result, returnedCerts)
}

func (s *RestServerTestSuite) newSignManifestRequest(authToken string) *http.Request {
	body := bytes.Buffer{}
	writer := multipart.NewWriter(&body)

	reqJSON, _ := json.Marshal(api.SignManifestRequest{
		ManifestJSON: `{"claim_generator": "test/1.0"}`,
		Format:       "image/jpeg",
	})
	s.Require().NoError(writer.WriteField("request", string(reqJSON)))

	part, err := writer.CreateFormFile("asset", "photo.jpg")
	s.Require().NoError(err)
	_, err = part.Write([]byte("jpeg bytes"))
	s.Require().NoError(err)
	s.Require().NoError(writer.Close())

	endPoint := fmt.Sprintf("http://%s/api/v1/c2pa/sign", s.localAddress)
	httpRequest, _ := http.NewRequest(http.MethodPost, endPoint, &body)
	httpRequest.Header.Set("Content-Type", writer.FormDataContentType())
	if authToken != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+authToken)
	}
	return httpRequest
}

func (s *RestServerTestSuite) TestSignManifest() {
	s.engine.EXPECT().SignManifest(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, req manifest.SignRequest) error {
		s.Require().Equal(`{"claim_generator": "test/1.0"}`, req.ManifestJSON)
		s.Require().Equal("image/jpeg", req.Format)
		s.Require().Equal("es256", req.Signer.Algorithm)
		s.Require().NotEmpty(req.Signer.CertChainPEM)

		asset, err := io.ReadAll(req.Source)
		s.Require().NoError(err)
		s.Require().Equal("jpeg bytes", string(asset))

		_, err = req.Dest.Write([]byte("signed jpeg bytes"))
		return err
	})

	resp, err := http.DefaultClient.Do(s.newSignManifestRequest(""))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	result := api.SignManifestResponse{}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&result))
	signedAsset, err := base64.StdEncoding.DecodeString(result.SignedAsset)
	s.Require().NoError(err)
	s.Equal("signed jpeg bytes", string(signedAsset))
	s.Equal("es256", result.Algorithm)
	s.NotEmpty(result.CertificateChain)
	s.NotZero(result.SignedAt)
}

func (s *RestServerTestSuite) TestSignManifestWithMissingManifest() {
	body := bytes.Buffer{}
	writer := multipart.NewWriter(&body)
	s.Require().NoError(writer.WriteField("request", `{"format": "image/jpeg"}`))
	s.Require().NoError(writer.Close())

	endPoint := fmt.Sprintf("http://%s/api/v1/c2pa/sign", s.localAddress)
	resp, err := http.Post(endPoint, writer.FormDataContentType(), &body)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *RestServerTestSuite) TestSignManifestAuth() {
	s.restServer.Close(s.ctx)
	s.setupServer("secret-token")

	resp, err := http.DefaultClient.Do(s.newSignManifestRequest(""))
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.DefaultClient.Do(s.newSignManifestRequest("wrong-token"))
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	s.engine.EXPECT().SignManifest(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, req manifest.SignRequest) error {
		_, err := io.Copy(req.Dest, req.Source)
		return err
	})

	resp, err = http.DefaultClient.Do(s.newSignManifestRequest("secret-token"))
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}
