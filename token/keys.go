package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"math/big"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// KeyPair is an asymmetric signing key. PrivateKey is nil for keys loaded
// only to verify tokens.
type KeyPair struct {
	KeyID      string
	PrivateKey crypto.PrivateKey
	PublicKey  crypto.PublicKey
	Algorithm  string // RS256, RS384, RS512, ES256, ES384, ES512
}

// JWKS is a JSON Web Key Set.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK is a public JSON Web Key.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`

	// RSA
	N string `json:"n,omitempty"`
	E string `json:"e,omitempty"`

	// EC
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

var rsaBits = map[string]int{"RS256": 2048, "RS384": 3072, "RS512": 4096}

var ecCurves = map[string]elliptic.Curve{
	"ES256": elliptic.P256(),
	"ES384": elliptic.P384(),
	"ES512": elliptic.P521(),
}

// GenerateRSAKeyPair generates an RSA key for algorithm (RS256 when empty).
// bits below the algorithm's default are raised to it.
func GenerateRSAKeyPair(keyID, algorithm string, bits int) (*KeyPair, error) {
	if algorithm == "" {
		algorithm = "RS256"
	}
	minBits, ok := rsaBits[algorithm]
	if !ok {
		return nil, errors.Errorf("unsupported RSA algorithm %q", algorithm)
	}
	if bits < minBits {
		bits = minBits
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate RSA key")
	}

	return &KeyPair{
		KeyID:      keyID,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		Algorithm:  algorithm,
	}, nil
}

// GenerateECDSAKeyPair generates an ECDSA key on the curve matching algorithm.
func GenerateECDSAKeyPair(keyID, algorithm string) (*KeyPair, error) {
	if algorithm == "" {
		algorithm = "ES256"
	}
	curve, ok := ecCurves[algorithm]
	if !ok {
		return nil, errors.Errorf("unsupported ECDSA algorithm %q", algorithm)
	}

	privateKey, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate ECDSA key")
	}

	return &KeyPair{
		KeyID:      keyID,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		Algorithm:  algorithm,
	}, nil
}

// GetSigningMethod returns the JWT signing method for this key pair.
func (kp *KeyPair) GetSigningMethod() jwt.SigningMethod {
	if m := jwt.GetSigningMethod(kp.Algorithm); m != nil {
		return m
	}
	return jwt.SigningMethodRS256
}

// ExportPublicKeyPEM exports the public key as a PKIX PEM block.
func (kp *KeyPair) ExportPublicKeyPEM() (string, error) {
	pubKeyBytes, err := x509.MarshalPKIXPublicKey(kp.PublicKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal public key")
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubKeyBytes})), nil
}

// ExportPrivateKeyPEM exports the private key as a PKCS8 PEM block.
func (kp *KeyPair) ExportPrivateKeyPEM() (string, error) {
	if kp.PrivateKey == nil {
		return "", errors.New("key pair has no private key")
	}
	der, err := x509.MarshalPKCS8PrivateKey(kp.PrivateKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal private key")
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// ToJWK converts the public key to JWK format.
func (kp *KeyPair) ToJWK() (*JWK, error) {
	jwk := &JWK{
		Kid: kp.KeyID,
		Use: "sig",
		Alg: kp.Algorithm,
	}

	switch pubKey := kp.PublicKey.(type) {
	case *rsa.PublicKey:
		jwk.Kty = "RSA"
		jwk.N = base64.RawURLEncoding.EncodeToString(pubKey.N.Bytes())
		jwk.E = base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pubKey.E)).Bytes())

	case *ecdsa.PublicKey:
		size := (pubKey.Curve.Params().BitSize + 7) / 8
		jwk.Kty = "EC"
		jwk.Crv = pubKey.Curve.Params().Name
		jwk.X = base64.RawURLEncoding.EncodeToString(pubKey.X.FillBytes(make([]byte, size)))
		jwk.Y = base64.RawURLEncoding.EncodeToString(pubKey.Y.FillBytes(make([]byte, size)))

	default:
		return nil, errors.New("unsupported public key type")
	}

	return jwk, nil
}

// LoadKeyPairFromPEM parses a PKCS1, PKCS8 or SEC1 private key.
func LoadKeyPairFromPEM(keyID, algorithm, privateKeyPEM string) (*KeyPair, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	var (
		key any
		err error
	)
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}

	kp := &KeyPair{KeyID: keyID, PrivateKey: key, Algorithm: algorithm}
	switch k := key.(type) {
	case *rsa.PrivateKey:
		kp.PublicKey = &k.PublicKey
		if kp.Algorithm == "" {
			kp.Algorithm = "RS256"
		}
	case *ecdsa.PrivateKey:
		kp.PublicKey = &k.PublicKey
		if kp.Algorithm == "" {
			kp.Algorithm = "ES256"
		}
	default:
		return nil, errors.Errorf("unsupported private key type %T", key)
	}
	return kp, nil
}

// LoadPublicKeyFromPEM builds a verification-only key pair.
func LoadPublicKeyFromPEM(keyID, algorithm, publicKeyPEM string) (*KeyPair, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse public key")
	}
	switch pub.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey:
	default:
		return nil, errors.Errorf("unsupported public key type %T", pub)
	}
	return &KeyPair{KeyID: keyID, PublicKey: pub, Algorithm: algorithm}, nil
}
