// Package auth verifies identity-provider session tokens.
//
// Tokens are Firebase-style securetoken ID tokens: RS256 JWTs signed with
// rotating keys published as x509 certificates. The verifier fetches and
// caches the certificates and checks issuer, audience, and expiry.
package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// defaultCertsURL publishes the securetoken signing certificates as a JSON
// object of key ID to PEM certificate.
const defaultCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

// IdentityClaims is the decoded identity of a verified session token.
type IdentityClaims struct {
	Email string
	UID   string
}

// TokenVerifier verifies a session token against the identity provider.
type TokenVerifier interface {
	// VerifyIDToken returns the decoded claims, or an error when the token is
	// invalid, expired, revoked, or signed by an unknown key.
	VerifyIDToken(ctx context.Context, idToken string) (*IdentityClaims, error)
}

// SecureTokenVerifier verifies securetoken ID tokens for one project.
// Safe for concurrent use.
type SecureTokenVerifier struct {
	projectID string
	certsURL  string
	client    *http.Client
	parser    *jwt.Parser

	mu         sync.RWMutex
	keys       map[string]*rsa.PublicKey
	keysExpiry time.Time
}

// NewSecureTokenVerifier creates a verifier for the given identity project.
func NewSecureTokenVerifier(projectID string) *SecureTokenVerifier {
	return newSecureTokenVerifier(projectID, defaultCertsURL)
}

func newSecureTokenVerifier(projectID, certsURL string) *SecureTokenVerifier {
	return &SecureTokenVerifier{
		projectID: projectID,
		certsURL:  certsURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256"}),
			jwt.WithAudience(projectID),
			jwt.WithIssuer("https://securetoken.google.com/"+projectID),
			jwt.WithExpirationRequired(),
		),
	}
}

func (v *SecureTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*IdentityClaims, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(idToken, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no key ID")
		}
		return v.keyFor(ctx, kid)
	})
	if err != nil {
		return nil, errors.Wrap(err, "verify ID token")
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, errors.New("token has no subject")
	}
	email, _ := claims["email"].(string)
	if email == "" {
		return nil, errors.New("token has no email claim")
	}

	return &IdentityClaims{Email: email, UID: subject}, nil
}

// keyFor returns the public key for the given key ID, refreshing the
// certificate set when it is stale or the key is unknown (key rotation).
func (v *SecureTokenVerifier) keyFor(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	fresh := time.Now().Before(v.keysExpiry)
	v.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	if err := v.refreshKeys(ctx); err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	key, ok = v.keys[kid]
	if !ok {
		return nil, errors.Errorf("no signing certificate for key ID %q", kid)
	}
	return key, nil
}

func (v *SecureTokenVerifier) refreshKeys(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return errors.Wrap(err, "build certificates request")
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "fetch signing certificates")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("certificates endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read certificates response")
	}

	var certs map[string]string
	if err := json.Unmarshal(body, &certs); err != nil {
		return errors.Wrap(err, "decode certificates response")
	}

	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, certPEM := range certs {
		block, _ := pem.Decode([]byte(certPEM))
		if block == nil {
			return errors.Errorf("malformed certificate for key ID %q", kid)
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return errors.Wrapf(err, "parse certificate for key ID %q", kid)
		}
		rsaKey, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return errors.Errorf("certificate for key ID %q is not RSA", kid)
		}
		keys[kid] = rsaKey
	}

	v.mu.Lock()
	v.keys = keys
	v.keysExpiry = time.Now().Add(cacheTTL(resp.Header.Get("Cache-Control")))
	v.mu.Unlock()
	return nil
}

// cacheTTL extracts max-age from a Cache-Control header, defaulting to one
// hour when absent or unparsable.
func cacheTTL(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		if value, ok := strings.CutPrefix(directive, "max-age="); ok {
			if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}
	return time.Hour
}
