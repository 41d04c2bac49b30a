package model

type CertType string

const (
	RootCert         CertType = "root"
	IntermediateCert CertType = "intermediate"
	LeafCert         CertType = "leaf"
)

// IssuanceMetadata is free-form caller metadata accepted with a CSR signing
// request. It is recorded for audit purposes only and is never bound into
// the issued certificate.
type IssuanceMetadata struct {
	DeviceID   string `json:"device_id,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
	Purpose    string `json:"purpose,omitempty"`
}

type IssuedCert struct {
	ID               string   `json:"certificate_id"`    // Unique ID of the issuance.
	Type             CertType `json:"type"`              // Type of the certificate.
	CreatedAt        int64    `json:"created_at"`        // Unix Time (in second) when the certificate was issued.
	CreatedBy        string   `json:"created_by"`        // Requester of the issuance.
	NotBefore        int64    `json:"not_before"`        // Unix Time (in second) when the certificate becomes valid.
	ExpiresAt        int64    `json:"expires_at"`        // Unix Time (in second) when the certificate becomes invalid.
	SerialNumber     string   `json:"serial_number"`     // Serial number of the leaf certificate.
	CertificateChain string   `json:"certificate_chain"` // PEM encoded chain. Leaf first, then intermediate, then root.
	PublicKeyID      string   `json:"public_key_id"`     // Key ID of the leaf certificate public key.
	IssuerKeyID      string   `json:"issuer_key_id"`     // Key ID of the issuing CA public key.
	CertFingerPrint  string   `json:"cert_fingerprint"`  // Fingerprint of the leaf certificate. The format is [HASH_ALGORITHM]:[FINGERPRINT_HEX_ENCODED].

	Metadata IssuanceMetadata `json:"metadata,omitempty"`
}
