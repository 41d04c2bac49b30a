package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	otlp_util "github.com/bluexlab/otlp-util-go"
	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/openc2pa/openc2pa/pkg/sign_server/cert_authority"
	"github.com/openc2pa/openc2pa/pkg/sign_server/manifest"
	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
	"github.com/openc2pa/openc2pa/pkg/sign_server/storage"
	"github.com/openc2pa/openc2pa/pkg/sign_server/storage/postgres"
	"github.com/openc2pa/openc2pa/pkg/util"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/metric"
)

type ContextKey string

const (
	REQUESTER_HEADER      = "X-Requester"
	REQUESTER_CONTEXT_KEY = ContextKey("requester")

	maxAssetSize = 64 << 20 // 64 MiB multipart memory budget for asset uploads.
)

type SignerConfig struct {
	CertFile  string `yaml:"cert_file"`  // PEM certificate chain used for manifest signing.
	KeyFile   string `yaml:"key_file"`   // PEM private key used for manifest signing.
	Algorithm string `yaml:"algorithm"`  // Signature algorithm name, e.g. "es256".
	TSAURL    string `yaml:"tsa_url"`    // Optional timestamp authority URL.
	C2PATool  string `yaml:"c2pa_tool"`  // Path to the c2patool binary.
}

type RestServerConfig struct {
	Database      util.PostgresDatabaseConfig `yaml:"database"` // Optional issuance audit log.
	ServerAddress string                      `yaml:"server_address"`
	AuthToken     string                      `yaml:"auth_token"` // Optional bearer token for the C2PA endpoints.
	OTLPEndpoint  string                      `yaml:"otlp_endpoint"`
	Signer        SignerConfig                `yaml:"signer"`
}

type RestServer struct {
	ca         cert_authority.CertAuthority
	engine     manifest.Engine
	signerCfg  SignerConfig
	listEnable bool
	httpServer *http.Server

	issueCount metric.Int64Counter
	signCount  metric.Int64Counter
}

func ExtractRequester(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requester := r.Header.Get(REQUESTER_HEADER)
		ctx = context.WithValue(ctx, REQUESTER_CONTEXT_KEY, requester)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func NewRestServerWithConfig(config RestServerConfig) (*RestServer, error) {
	caOptions := []cert_authority.Option{}
	listEnable := false
	if config.Database.Host != "" {
		issuanceStorage, err := postgres.NewStorageWithConfig(config.Database)
		if err != nil {
			return nil, err
		}
		caOptions = append(caOptions, cert_authority.WithIssuanceStorage(issuanceStorage))
		listEnable = true
	}

	ca, err := cert_authority.NewCertAuthority(caOptions...)
	if err != nil {
		return nil, err
	}

	engine := manifest.NewC2PAToolEngine(config.Signer.C2PATool)
	return NewRestServerWithController(ca, engine, config, listEnable), nil
}

func NewRestServerWithController(ca cert_authority.CertAuthority, engine manifest.Engine, config RestServerConfig, listEnable bool) *RestServer {
	restServer := &RestServer{
		ca:         ca,
		engine:     engine,
		signerCfg:  config.Signer,
		listEnable: listEnable,
		issueCount: otlp_util.NewInt64Counter("sign_server.certificate.issue.count", metric.WithDescription("The total number of certificates issued from CSRs")),
		signCount:  otlp_util.NewInt64Counter("sign_server.manifest.sign.count", metric.WithDescription("The total number of C2PA manifest signing requests")),
	}

	router := mux.NewRouter()
	router.Use(Log, ExtractRequester)
	router.HandleFunc("/health", restServer.healthCheck).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/certificates/sign", restServer.signCertificate).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/certificates/ca_chain", restServer.getCAChain).Methods(http.MethodGet)
	if listEnable {
		router.HandleFunc("/api/v1/certificates", restServer.listCertificates).Methods(http.MethodGet)
	}

	c2paRouter := router.PathPrefix("/api/v1/c2pa").Subrouter()
	c2paRouter.Use(BearerAuth(config.AuthToken))
	c2paRouter.HandleFunc("/sign", restServer.signManifest).Methods(http.MethodPost)

	restServer.httpServer = &http.Server{
		Addr:    config.ServerAddress,
		Handler: router,
	}

	return restServer
}

func (s *RestServer) Run() error {
	if s.httpServer.Addr == "" {
		return errors.New("no server address to listen on")
	}

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *RestServer) Close(ctx context.Context) error {
	s.httpServer.SetKeepAlivesEnabled(false)
	return s.httpServer.Shutdown(ctx)
}

func (s *RestServer) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type SignCertificateRequest struct {
	CSR      string                 `json:"csr"`
	Metadata model.IssuanceMetadata `json:"metadata"`
}

func (s *RestServer) signCertificate(w http.ResponseWriter, r *http.Request) {
	ts := time.Now().Unix()
	ctx := r.Context()
	requester, _ := ctx.Value(REQUESTER_CONTEXT_KEY).(string)

	req := SignCertificateRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %s", err.Error()), http.StatusBadRequest)
		return
	}

	cert, err := s.ca.IssueCertificate(ctx, ts, cert_authority.IssueCertificateRequest{
		Requester: requester,
		CSR:       req.CSR,
		Metadata:  req.Metadata,
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to sign certificate request: %s", err.Error()), model.ErrToHttpStatus(err))
		return
	}
	s.issueCount.Add(ctx, 1)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(cert)
}

func (s *RestServer) getCAChain(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-pem-file")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(s.ca.CACertificates()))
}

func (s *RestServer) listCertificates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 10
	}
	notEmpty := func(v string, _ int) bool { return v != "" }
	req := storage.ListIssuedCertsRequest{
		Offset:        offset,
		Limit:         limit,
		IDs:           lo.Filter(r.URL.Query()["id"], notEmpty),
		SerialNumbers: lo.Filter(r.URL.Query()["serial_number"], notEmpty),
	}

	result, err := s.ca.ListIssuedCerts(ctx, req)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list issued certificates: %s", err.Error()), model.ErrToHttpStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

type SignManifestRequest struct {
	ManifestJSON string `json:"manifest_json"`
	Format       string `json:"format"` // MIME type of the asset, e.g. "image/jpeg".
}

type SignManifestResponse struct {
	SignedAsset      string `json:"signed_asset"` // Base64 encoded signed asset bytes.
	Algorithm        string `json:"algorithm"`
	CertificateChain string `json:"certificate_chain"`
	SignedAt         int64  `json:"signed_at"`
}

func (s *RestServer) signManifest(w http.ResponseWriter, r *http.Request) {
	ts := time.Now().Unix()
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxAssetSize); err != nil {
		http.Error(w, fmt.Sprintf("Invalid multipart request: %s", err.Error()), http.StatusBadRequest)
		return
	}

	req := SignManifestRequest{}
	if err := json.Unmarshal([]byte(r.FormValue("request")), &req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %s", err.Error()), http.StatusBadRequest)
		return
	}
	if req.ManifestJSON == "" || req.Format == "" {
		http.Error(w, "manifest_json and format are required", http.StatusBadRequest)
		return
	}

	asset, _, err := r.FormFile("asset")
	if err != nil {
		http.Error(w, fmt.Sprintf("Missing asset: %s", err.Error()), http.StatusBadRequest)
		return
	}
	defer asset.Close()

	// The static test signer material is read per request so a redeployment
	// of the PEM files takes effect without a restart.
	signer, err := manifest.LoadSignerFromFiles(s.signerCfg.CertFile, s.signerCfg.KeyFile, s.signerCfg.Algorithm, s.signerCfg.TSAURL)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load signer material: %s", err.Error()), model.ErrToHttpStatus(err))
		return
	}

	signedAsset := bytes.Buffer{}
	err = s.engine.SignManifest(ctx, manifest.SignRequest{
		ManifestJSON: req.ManifestJSON,
		Format:       req.Format,
		Signer:       signer,
		Source:       asset,
		Dest:         &signedAsset,
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to sign manifest: %s", err.Error()), model.ErrToHttpStatus(err))
		return
	}
	s.signCount.Add(ctx, 1)

	resp := SignManifestResponse{
		SignedAsset:      base64.StdEncoding.EncodeToString(signedAsset.Bytes()),
		Algorithm:        signer.Algorithm,
		CertificateChain: string(signer.CertChainPEM),
		SignedAt:         ts,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
