package platform

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"os"
)

const cloudflareOriginCAURL = "https://api.cloudflare.com/client/v4/certificates"

type originCARequest struct {
	Hostnames        []string `json:"hostnames"`
	RequestedValidity int     `json:"requested_validity"`
	RequestType      string   `json:"request_type"`
	CSR              string   `json:"csr"`
}

type originCAResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Certificate string `json:"certificate"`
	} `json:"result"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// BootstrapTLS generates a local RSA keypair and CSR for hostname, has it
// signed by Cloudflare's Origin CA, and writes the resulting certificate and
// private key to certPath/keyPath. This is the control plane's own listener
// cert (SPEC_FULL.md §10) — distinct from the per-node certs externalops.Ops
// issues for mesh nodes.
func BootstrapTLS(ctx context.Context, cloudflareAPIKey, hostname, certPath, keyPath string) error {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("generating RSA key: %w", err)
	}

	template := x509.CertificateRequest{
		Subject:  pkix.Name{CommonName: hostname},
		DNSNames: []string{hostname},
	}
	csrDER, err := x509.CreateCertificateRequest(rand.Reader, &template, key)
	if err != nil {
		return fmt.Errorf("creating certificate request: %w", err)
	}
	csrPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: csrDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	reqBody, err := json.Marshal(originCARequest{
		Hostnames:          []string{hostname},
		RequestedValidity:  5475,
		RequestType:        "origin-rsa",
		CSR:                string(csrPEM),
	})
	if err != nil {
		return fmt.Errorf("encoding origin CA request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cloudflareOriginCAURL, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("building origin CA request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cloudflareAPIKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting origin certificate: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading origin CA response: %w", err)
	}

	var parsed originCAResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("decoding origin CA response: %w", err)
	}
	if !parsed.Success || parsed.Result.Certificate == "" {
		return fmt.Errorf("origin CA request failed: %v", parsed.Errors)
	}

	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", keyPath, err)
	}
	if err := os.WriteFile(certPath, []byte(parsed.Result.Certificate), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", certPath, err)
	}

	return nil
}
