// Package tlsconf derives the TLS identity of the daemon's TCP listener
// from the shared token, so remote clients need no certificate
// distribution, CA or PKI.
//
// The private key is derived deterministically, so every holder of the
// token computes the same public key. The certificate wrapping it is
// generated fresh at startup; clients pin the public key, not the
// certificate.
//
//	HKDF-SHA256(ikm=token, salt="clipdrag-tls-v1", info="listener-key")
//	→ 64 bytes → reduced mod curve order → ECDSA P-256 key
//
// Same token: keys match and the handshake succeeds. Different token: the
// client rejects the server during the handshake.
package tlsconf

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"golang.org/x/crypto/hkdf"
	"google.golang.org/grpc/credentials"
)

// DefaultToken keys the listener when no token is configured. It encrypts
// traffic but authenticates nothing.
const DefaultToken = "clipdrag"

const serverName = "clipdrag"

// Identity is the key pair derived from one token.
type Identity struct {
	cert tls.Certificate
	pub  []byte // PKIX DER of the public key
}

// Derive computes the identity for token.
func Derive(token string) (*Identity, error) {
	key, err := deriveKey(token)
	if err != nil {
		return nil, fmt.Errorf("tlsconf: derive key: %w", err)
	}
	der, err := selfSigned(key)
	if err != nil {
		return nil, fmt.Errorf("tlsconf: cert: %w", err)
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("tlsconf: marshal pubkey: %w", err)
	}
	return &Identity{
		cert: tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key},
		pub:  pub,
	}, nil
}

// ServerConfig is the listener side. ALPN offers h2 and http/1.1 so gRPC
// and HTTP clients can share the listener.
func (id *Identity) ServerConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{id.cert},
		NextProtos:   []string{"h2", "http/1.1"},
		MinVersion:   tls.VersionTLS13,
	}
}

// ClientConfig accepts exactly the server holding this identity's key.
func (id *Identity) ClientConfig() *tls.Config {
	return &tls.Config{
		// Chain verification is replaced by the public key pin below.
		InsecureSkipVerify:    true, //nolint:gosec
		ServerName:            serverName,
		MinVersion:            tls.VersionTLS13,
		VerifyPeerCertificate: id.verify,
	}
}

// Credentials returns ClientConfig as gRPC transport credentials.
func (id *Identity) Credentials() credentials.TransportCredentials {
	return credentials.NewTLS(id.ClientConfig())
}

func (id *Identity) verify(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	if len(rawCerts) == 0 {
		return errors.New("tlsconf: server presented no certificate")
	}
	cert, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return fmt.Errorf("tlsconf: parse server cert: %w", err)
	}
	pub, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return fmt.Errorf("tlsconf: marshal server pubkey: %w", err)
	}
	if !bytes.Equal(pub, id.pub) {
		return errors.New("tlsconf: server key does not match token")
	}
	return nil
}

func deriveKey(token string) (*ecdsa.PrivateKey, error) {
	r := hkdf.New(sha256.New, []byte(token), []byte("clipdrag-tls-v1"), []byte("listener-key"))
	buf := make([]byte, 64)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("hkdf read: %w", err)
	}

	curve := elliptic.P256()
	n := curve.Params().N
	k := new(big.Int).SetBytes(buf)
	k.Mod(k, new(big.Int).Sub(n, big.NewInt(1)))
	k.Add(k, big.NewInt(1)) // k in [1, n-1]

	key := &ecdsa.PrivateKey{D: k}
	key.Curve = curve
	key.X, key.Y = curve.ScalarBaseMult(k.Bytes())
	return key, nil
}

func selfSigned(key *ecdsa.PrivateKey) ([]byte, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: serverName},
		DNSNames:              []string{serverName},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	return x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
}
