package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the single HMAC algorithm a [Manager] signs and accepts.
type SigningMethod string

const (
	// MethodHS256 signs with HMAC-SHA256. It is the default.
	MethodHS256 SigningMethod = "HS256"
	// MethodHS384 signs with HMAC-SHA384.
	MethodHS384 SigningMethod = "HS384"
	// MethodHS512 signs with HMAC-SHA512.
	MethodHS512 SigningMethod = "HS512"
)

// MinSecretLength is the shortest secret accepted by [NewKey].
const MinSecretLength = 32

var (
	// ErrSecretTooShort is returned by NewKey for secrets below MinSecretLength bytes.
	ErrSecretTooShort = errors.New("signing secret too short")

	errUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
	errEncryptedToken       = errors.New("encrypted tokens are not supported")
	errEmptyToken           = errors.New("token string is empty")
	errMissingSubject       = errors.New("token subject is empty")
	errMissingID            = errors.New("token id is empty")
	errMissingDevice        = errors.New("token device is empty")
	errWrongTokenType       = errors.New("token type not accepted here")
)

// TokenType is the value of the "typ" claim.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

// Key is the process-wide HMAC key material. It is derived once from the
// configured secret and never mutated afterwards, so a single Key can be
// shared by every goroutine without synchronization.
type Key struct {
	material []byte
}

// NewKey derives signing key material from secret.
func NewKey(secret string) (Key, error) {
	if len(secret) < MinSecretLength {
		return Key{}, fmt.Errorf("%w: need at least %d bytes", ErrSecretTooShort, MinSecretLength)
	}
	material := make([]byte, len(secret))
	copy(material, secret)
	return Key{material: material}, nil
}

// IsZero reports whether k was never derived.
func (k Key) IsZero() bool {
	return len(k.material) == 0
}

// Config holds everything a [Manager] needs. Now is optional and defaults
// to time.Now.
type Config struct {
	Key           Key
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	Issuer        string
	Now           func() time.Time
}

// Manager issues and verifies HMAC-signed access and refresh tokens.
//
// Manager holds no mutable state; all methods are safe for concurrent use.
type Manager struct {
	config Config
	method jwt.SigningMethod
}

// Claims is the claim set carried by both token types. Refresh tokens also
// carry RegisteredClaims.ID (the session identifier) and the device they
// were minted for.
type Claims struct {
	Type   TokenType `json:"typ"`
	Device string    `json:"did,omitempty"`
	jwt.RegisteredClaims
}

// RefreshToken is a freshly minted refresh token together with the session
// identifier and expiry the registry has to record.
type RefreshToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// NewManager validates cfg and returns a ready Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Key.IsZero() {
		return nil, errors.New("missing signing key")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	var method jwt.SigningMethod
	switch SigningMethod(strings.ToUpper(string(cfg.SigningMethod))) {
	case MethodHS256:
		method = jwt.SigningMethodHS256
	case MethodHS384:
		method = jwt.SigningMethodHS384
	case MethodHS512:
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	return &Manager{config: cfg, method: method}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// RefreshTTL returns the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration {
	return m.config.RefreshTTL
}

// IssueAccess mints an access token for subject valid for AccessTTL.
func (m *Manager) IssueAccess(subject string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errMissingSubject
	}
	now := m.config.Now()
	claims := m.claims(subject, "", now, now.Add(m.config.AccessTTL))
	claims.Type = TypeAccess
	return m.sign(claims)
}

// IssueRefresh mints a refresh token for subject on deviceID valid for
// RefreshTTL. The returned ID is a fresh random session identifier.
func (m *Manager) IssueRefresh(subject, deviceID string) (RefreshToken, error) {
	if strings.TrimSpace(subject) == "" {
		return RefreshToken{}, errMissingSubject
	}
	if strings.TrimSpace(deviceID) == "" {
		return RefreshToken{}, errMissingDevice
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return RefreshToken{}, fmt.Errorf("generate session id: %w", err)
	}
	now := m.config.Now()
	expiresAt := now.Add(m.config.RefreshTTL)

	claims := m.claims(subject, id.String(), now, expiresAt)
	claims.Type = TypeRefresh
	claims.Device = deviceID
	token, err := m.sign(claims)
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{
		Token:     token,
		ID:        id.String(),
		ExpiresAt: jwt.NewNumericDate(expiresAt).Time,
	}, nil
}

func (m *Manager) claims(subject, id string, issuedAt, expiresAt time.Time) Claims {
	return Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		ID:        id,
		Issuer:    m.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}}
}

func (m *Manager) sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(m.method, claims).SignedString(m.config.Key.material)
}

// Verify checks the signature and expiry of token and classifies any failure.
// It accepts either token type; request authentication goes through
// VerifyAccess. It never performs I/O.
func (m *Manager) Verify(token string) Result {
	token = strings.TrimSpace(token)
	if token == "" {
		return failed(FailureEmptyClaims, errEmptyToken)
	}
	if strings.Count(token, ".") == 4 {
		return failed(FailureUnsupported, errEncryptedToken)
	}

	options := []jwt.ParserOption{
		jwt.WithTimeFunc(m.config.Now),
		jwt.WithExpirationRequired(),
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("%w: %s", errUnsupportedAlgorithm, t.Method.Alg())
		}
		return m.config.Key.material, nil
	})
	if err != nil {
		return failed(classify(err), err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return failed(FailureMalformed, jwt.ErrTokenInvalidClaims)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return failed(FailureEmptyClaims, errMissingSubject)
	}

	return Result{Claims: claims}
}

// VerifyAccess is Verify restricted to access tokens. A refresh token is
// reported as FailureUnsupported.
func (m *Manager) VerifyAccess(token string) Result {
	res := m.Verify(token)
	if res.OK() && res.Claims.Type != TypeAccess {
		return failed(FailureUnsupported, errWrongTokenType)
	}
	return res
}

// VerifyRefresh is Verify restricted to refresh tokens: the token must carry
// a session identifier, a device and the refresh type.
func (m *Manager) VerifyRefresh(token string) Result {
	res := m.Verify(token)
	if !res.OK() {
		return res
	}
	switch {
	case strings.TrimSpace(res.Claims.ID) == "":
		return failed(FailureEmptyClaims, errMissingID)
	case strings.TrimSpace(res.Claims.Device) == "":
		return failed(FailureEmptyClaims, errMissingDevice)
	case res.Claims.Type != TypeRefresh:
		return failed(FailureUnsupported, errWrongTokenType)
	}
	return res
}

// Subject is the error-returning form of VerifyAccess.
func (m *Manager) Subject(token string) (string, error) {
	res := m.VerifyAccess(token)
	if !res.OK() {
		return "", res.Error()
	}
	return res.Claims.Subject, nil
}

// classify maps parser errors to a FailureKind. Order matters: the parser
// joins several sentinels into one error.
func classify(err error) FailureKind {
	switch {
	case errors.Is(err, errUnsupportedAlgorithm), errors.Is(err, jwt.ErrTokenUnverifiable):
		return FailureUnsupported
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return FailureInvalidSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return FailureMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return FailureExpired
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return FailureEmptyClaims
	default:
		return FailureMalformed
	}
}
