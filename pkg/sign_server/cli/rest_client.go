package cli

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/avast/retry-go/v4"
	"github.com/openc2pa/openc2pa/pkg/sign_server/api"
	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
	"github.com/openc2pa/openc2pa/pkg/sign_server/storage"
	"github.com/openc2pa/openc2pa/pkg/util"
	"github.com/sirupsen/logrus"
)

const clientRetryAttempts = 3

type RestClient struct {
	requester string
	server    string // http://server/
	authToken string
}

func NewRestClient(server, requester, authToken string) *RestClient {
	return &RestClient{
		requester: requester,
		server:    server,
		authToken: authToken,
	}
}

func (r *RestClient) SignCertificate(csr string, metadata model.IssuanceMetadata) (model.IssuedCert, error) {
	path := "/api/v1/certificates/sign"
	req := api.SignCertificateRequest{
		CSR:      csr,
		Metadata: metadata,
	}

	cert := model.IssuedCert{}
	if err := r.execute(http.MethodPost, path, "application/json", []byte(util.StructToJSON(req)), &cert); err != nil {
		return model.IssuedCert{}, err
	}
	return cert, nil
}

func (r *RestClient) ListCertificates(offset, limit int) (storage.ListIssuedCertsResponse, error) {
	path := fmt.Sprintf("/api/v1/certificates?offset=%d&limit=%d", offset, limit)
	certs := storage.ListIssuedCertsResponse{}
	if err := r.execute(http.MethodGet, path, "", nil, &certs); err != nil {
		return storage.ListIssuedCertsResponse{}, err
	}
	return certs, nil
}

func (r *RestClient) GetCAChain() (string, error) {
	path := "/api/v1/certificates/ca_chain"
	chain := bytes.Buffer{}
	if err := r.execute(http.MethodGet, path, "", nil, &chain); err != nil {
		return "", err
	}
	return chain.String(), nil
}

func (r *RestClient) SignManifest(assetFile, manifestJSON, format string) ([]byte, error) {
	asset, err := os.ReadFile(assetFile)
	if err != nil {
		return nil, err
	}

	body := bytes.Buffer{}
	writer := multipart.NewWriter(&body)

	reqJSON, err := json.Marshal(api.SignManifestRequest{
		ManifestJSON: manifestJSON,
		Format:       format,
	})
	if err != nil {
		return nil, err
	}
	if err := writer.WriteField("request", string(reqJSON)); err != nil {
		return nil, err
	}
	part, err := writer.CreateFormFile("asset", assetFile)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(asset); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	result := api.SignManifestResponse{}
	if err := r.execute(http.MethodPost, "/api/v1/c2pa/sign", writer.FormDataContentType(), body.Bytes(), &result); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(result.SignedAsset)
}

func (r *RestClient) execute(method, path, contentType string, payload []byte, result any) error {
	endPoint := r.server + path

	return retry.Do(
		func() error {
			var body io.Reader
			if payload != nil {
				body = bytes.NewReader(payload)
			}
			req, err := http.NewRequest(method, endPoint, body)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set(api.REQUESTER_HEADER, r.requester)
			if contentType != "" {
				req.Header.Set("Content-Type", contentType)
			}
			if r.authToken != "" {
				req.Header.Set("Authorization", "Bearer "+r.authToken)
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				logrus.Debugf("send http request: %v", err)
				return err
			}
			defer resp.Body.Close()

			status := resp.StatusCode
			if status/100 != 2 {
				message, _ := io.ReadAll(resp.Body)
				err := fmt.Errorf("request failed with status %d, message: %s", status, string(message))
				if status/100 == 4 {
					return retry.Unrecoverable(err)
				}
				return err
			}

			switch out := result.(type) {
			case *bytes.Buffer:
				_, err = io.Copy(out, resp.Body)
				return err
			default:
				return json.NewDecoder(resp.Body).Decode(result)
			}
		},
		retry.Attempts(clientRetryAttempts),
	)
}
