package commands

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"strconv"
	"strings"

	cryptoDomain "github.com/allisson/pii-vault/internal/crypto/domain"
	cryptoService "github.com/allisson/pii-vault/internal/crypto/service"
)

// RunEncrypt builds an encrypted envelope from a JSON payload, mirroring what
// a browser client does: fetch the public key distribution string, encrypt
// the payload under a fresh symmetric key, wrap that key with RSA-OAEP and
// emit the JSON wire envelope. Useful for smoke tests and scripted clients.
//
// The payload is read from the --payload flag or, when omitted, from stdin.
func RunEncrypt(
	codec cryptoService.PayloadCodec,
	wrapper cryptoService.KeyWrapper,
	ioTuple IOTuple,
	distribution, payloadStr string,
) error {
	version, publicKey, err := parseDistribution(distribution)
	if err != nil {
		return err
	}

	if payloadStr == "" {
		data, err := io.ReadAll(ioTuple.Reader)
		if err != nil {
			return fmt.Errorf("failed to read payload from stdin: %w", err)
		}
		payloadStr = string(data)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(payloadStr), &payload); err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}

	key, nonce, ciphertext, err := codec.Encrypt(payload)
	if err != nil {
		return fmt.Errorf("failed to encrypt payload: %w", err)
	}
	defer cryptoDomain.Zero(key)

	wrappedKey, err := wrapper.Wrap(key, publicKey)
	if err != nil {
		return fmt.Errorf("failed to wrap key: %w", err)
	}

	envelope := cryptoDomain.Envelope{
		KeyVersion: version,
		WrappedKey: wrappedKey,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}

	wire, err := envelope.MarshalWire()
	if err != nil {
		return fmt.Errorf("failed to serialize envelope: %w", err)
	}

	fmt.Fprintln(ioTuple.Writer, string(wire))
	return nil
}

// parseDistribution parses a public key distribution string in the
// "v<N>:<base64 of PEM-encoded SPKI public key>" format.
func parseDistribution(distribution string) (uint, *rsa.PublicKey, error) {
	versionStr, encoded, found := strings.Cut(distribution, ":")
	if !found || !strings.HasPrefix(versionStr, "v") {
		return 0, nil, fmt.Errorf("invalid distribution string: expected v<N>:<base64 PEM>")
	}

	version, err := strconv.ParseUint(strings.TrimPrefix(versionStr, "v"), 10, 32)
	if err != nil || version == 0 {
		return 0, nil, fmt.Errorf("invalid key version in distribution string: %q", versionStr)
	}

	pemBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return 0, nil, fmt.Errorf("distribution string is not valid base64: %w", err)
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil || block.Type != "PUBLIC KEY" {
		return 0, nil, fmt.Errorf("distribution string does not contain a PEM public key")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	publicKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return 0, nil, fmt.Errorf("public key is not RSA")
	}

	return uint(version), publicKey, nil
}
