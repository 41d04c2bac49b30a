package manifest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
	"github.com/sirupsen/logrus"
)

// C2PAToolEngine drives the externally distributed c2patool binary. The
// binary owns manifest construction, signing and embedding; this type only
// marshals inputs onto the filesystem, runs the tool and streams the signed
// asset back.
type C2PAToolEngine struct {
	binary string
}

func NewC2PAToolEngine(binary string) *C2PAToolEngine {
	if binary == "" {
		binary = "c2patool"
	}
	return &C2PAToolEngine{binary: binary}
}

func (e *C2PAToolEngine) SignManifest(ctx context.Context, req SignRequest) error {
	// All temporary files live in one directory removed on every exit path.
	workDir, err := os.MkdirTemp("", "c2pa-sign-")
	if err != nil {
		return fmt.Errorf("create work directory: %s: %w", err.Error(), model.ErrEngineFault)
	}
	defer os.RemoveAll(workDir)

	sourcePath := filepath.Join(workDir, "source"+extensionForFormat(req.Format))
	destPath := filepath.Join(workDir, "signed"+extensionForFormat(req.Format))
	manifestPath := filepath.Join(workDir, "manifest.json")
	certPath := filepath.Join(workDir, "chain.pem")
	keyPath := filepath.Join(workDir, "private.key")

	sourceFile, err := os.Create(sourcePath)
	if err != nil {
		return fmt.Errorf("create source file: %s: %w", err.Error(), model.ErrEngineFault)
	}
	if _, err := io.Copy(sourceFile, req.Source); err != nil {
		sourceFile.Close()
		return fmt.Errorf("write source asset: %s: %w", err.Error(), model.ErrEngineFault)
	}
	if err := sourceFile.Close(); err != nil {
		return fmt.Errorf("close source file: %s: %w", err.Error(), model.ErrEngineFault)
	}

	manifestDef, err := e.manifestDefinition(req)
	if err != nil {
		return err
	}
	if err := os.WriteFile(manifestPath, manifestDef, 0600); err != nil {
		return fmt.Errorf("write manifest definition: %s: %w", err.Error(), model.ErrEngineFault)
	}
	if err := os.WriteFile(certPath, req.Signer.CertChainPEM, 0600); err != nil {
		return fmt.Errorf("write certificate chain: %s: %w", err.Error(), model.ErrEngineFault)
	}
	if err := os.WriteFile(keyPath, req.Signer.PrivateKeyPEM, 0600); err != nil {
		return fmt.Errorf("write private key: %s: %w", err.Error(), model.ErrEngineFault)
	}

	cmd := exec.CommandContext(ctx, e.binary, sourcePath, "-m", manifestPath, "-o", destPath, "-f")
	cmd.Env = append(os.Environ(),
		"C2PA_SIGN_CERT="+certPath,
		"C2PA_PRIVATE_KEY="+keyPath,
	)
	stderr := bytes.Buffer{}
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		logrus.Errorf("c2patool failed: %v: %s", err, stderr.String())
		return fmt.Errorf("manifest engine: %s: %s: %w", err.Error(), stderr.String(), model.ErrEngineFault)
	}

	signedFile, err := os.Open(destPath)
	if err != nil {
		return fmt.Errorf("signed asset missing: %s: %w", err.Error(), model.ErrEngineFault)
	}
	defer signedFile.Close()

	if _, err := io.Copy(req.Dest, signedFile); err != nil {
		return fmt.Errorf("stream signed asset: %s: %w", err.Error(), model.ErrEngineFault)
	}
	return nil
}

// manifestDefinition merges the signer configuration into the caller
// supplied manifest JSON the way c2patool expects it.
func (e *C2PAToolEngine) manifestDefinition(req SignRequest) ([]byte, error) {
	def := map[string]interface{}{}
	if err := json.Unmarshal([]byte(req.ManifestJSON), &def); err != nil {
		return nil, fmt.Errorf("manifest JSON is not an object: %s: %w", err.Error(), model.ErrInvalidParameter)
	}

	def["alg"] = req.Signer.Algorithm
	if req.Signer.TSAURL != "" {
		def["ta_url"] = req.Signer.TSAURL
	}

	return json.Marshal(def)
}

func extensionForFormat(format string) string {
	exts, err := mime.ExtensionsByType(format)
	if err != nil || len(exts) == 0 {
		return ".bin"
	}
	return exts[0]
}
