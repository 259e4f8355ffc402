package token

import (
	"crypto/ecdsa"
	"crypto/rsa"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Signer signs claims and supplies the key that verifies them.
type Signer interface {
	// Sign creates a compact JWT. headers are added to the JOSE header.
	Sign(claims jwt.MapClaims, headers map[string]any) (string, error)

	// GetVerificationKey is a jwt.Keyfunc for tokens produced by this signer.
	GetVerificationKey(token *jwt.Token) (any, error)

	GetSigningMethod() jwt.SigningMethod
}

// HMACSigner implements Signer with a shared secret.
type HMACSigner struct {
	secret []byte
	method *jwt.SigningMethodHMAC
}

// NewHMACSigner creates an HS256 signer.
func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{secret: []byte(secret), method: jwt.SigningMethodHS256}
}

// NewHMACSignerWithAlgorithm creates an HS256, HS384 or HS512 signer.
func NewHMACSignerWithAlgorithm(secret, algorithm string) (*HMACSigner, error) {
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, errors.Errorf("unsupported HMAC algorithm %q", algorithm)
	}
	if secret == "" {
		return nil, errors.New("HMAC secret is empty")
	}
	return &HMACSigner{secret: []byte(secret), method: method}, nil
}

func (h *HMACSigner) Sign(claims jwt.MapClaims, headers map[string]any) (string, error) {
	token := jwt.NewWithClaims(h.method, claims)
	mergeHeaders(token, headers)

	signedToken, err := token.SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signedToken, nil
}

func (h *HMACSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}

func (h *HMACSigner) GetSigningMethod() jwt.SigningMethod {
	return h.method
}

// KeyPairSigner implements Signer using RSA or ECDSA.
type KeyPairSigner struct {
	keyPair *KeyPair
}

func NewKeyPairSigner(keyPair *KeyPair) *KeyPairSigner {
	return &KeyPairSigner{keyPair: keyPair}
}

func (a *KeyPairSigner) Sign(claims jwt.MapClaims, headers map[string]any) (string, error) {
	if a.keyPair.PrivateKey == nil {
		return "", errors.New("key pair can only verify tokens")
	}
	token := jwt.NewWithClaims(a.keyPair.GetSigningMethod(), claims)
	mergeHeaders(token, headers)
	if a.keyPair.KeyID != "" {
		token.Header["kid"] = a.keyPair.KeyID
	}

	signedToken, err := token.SignedString(a.keyPair.PrivateKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with asymmetric key")
	}
	return signedToken, nil
}

func (a *KeyPairSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodRSA:
		if _, ok := a.keyPair.PublicKey.(*rsa.PublicKey); ok {
			return a.keyPair.PublicKey, nil
		}
	case *jwt.SigningMethodECDSA:
		if _, ok := a.keyPair.PublicKey.(*ecdsa.PublicKey); ok {
			return a.keyPair.PublicKey, nil
		}
	}
	return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
}

func (a *KeyPairSigner) GetSigningMethod() jwt.SigningMethod {
	return a.keyPair.GetSigningMethod()
}

// GetJWKS returns the key set publishing this signer's public key.
func (a *KeyPairSigner) GetJWKS() (*JWKS, error) {
	jwk, err := a.keyPair.ToJWK()
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert key to JWK")
	}
	return &JWKS{Keys: []JWK{*jwk}}, nil
}

func mergeHeaders(token *jwt.Token, headers map[string]any) {
	for k, v := range headers {
		// alg is owned by the signing method
		if k == "alg" {
			continue
		}
		token.Header[k] = v
	}
}
