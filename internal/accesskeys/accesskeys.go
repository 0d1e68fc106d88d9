// Package accesskeys mints and verifies the short-lived bearer tokens a
// connected server uses to authenticate its record submissions, as
// described in spec.md §4.3. A server presents its long-lived AccessKey
// once at handshake time to mint a ~30 minute ES256 JWT binding its
// (server_id, plugin_version_id); every subsequent request carries that
// JWT instead of the long-lived key.
package accesskeys

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cs2kz-org/cs2kz-api/internal/catalog"
	"github.com/cs2kz-org/cs2kz-api/internal/kz"
	"github.com/cs2kz-org/cs2kz-api/internal/semver"
)

// TokenTTL is how long a minted bearer token remains valid.
const TokenTTL = 30 * time.Minute

// ErrKeyRevoked is returned when the presented access key doesn't match
// any currently-active ("degloballed" servers have a NULL key).
var ErrKeyRevoked = fmt.Errorf("accesskeys: access key is revoked or unknown")

// ErrPluginCutoff is returned when the connecting plugin build has been
// marked as a cutoff version.
var ErrPluginCutoff = fmt.Errorf("accesskeys: plugin version is past the cutoff")

// ErrPluginTooOld is returned when the connecting plugin build is not a
// published version and is older than the latest published version. A
// published version is accepted even when newer ones exist.
var ErrPluginTooOld = fmt.Errorf("accesskeys: plugin version is behind latest")

// claims are the JWT claims a minted bearer token carries.
type claims struct {
	jwt.RegisteredClaims
	ServerID        uint64 `json:"server_id"`
	PluginVersionID uint64 `json:"plugin_version_id"`
}

// Minter mints and verifies server bearer tokens.
type Minter struct {
	key            *ecdsa.PrivateKey
	servers        *catalog.Servers
	pluginVersions *catalog.PluginVersions
}

// NewMinter constructs a Minter signing with the given ES256 private key.
func NewMinter(key *ecdsa.PrivateKey, servers *catalog.Servers, pluginVersions *catalog.PluginVersions) *Minter {
	return &Minter{key: key, servers: servers, pluginVersions: pluginVersions}
}

// Mint verifies the presented access key against the server registry,
// checks the connecting plugin build is a published version that isn't cut
// off, and signs a bearer token for (server, plugin version).
func (m *Minter) Mint(ctx context.Context, key kz.AccessKey, pluginSemVer semver.Version) (string, time.Time, error) {
	server, err := m.servers.GetByAccessKey(ctx, key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("accesskeys: lookup server: %w", err)
	}
	if server == nil {
		return "", time.Time{}, ErrKeyRevoked
	}

	pv, err := m.pluginVersions.GetBySemVer(ctx, pluginSemVer)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("accesskeys: lookup plugin version: %w", err)
	}
	if pv == nil {
		latest, err := m.pluginVersions.Latest(ctx)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("accesskeys: lookup latest plugin version: %w", err)
		}
		if latest != nil && semver.LessThan(pluginSemVer, latest.SemVer) {
			return "", time.Time{}, ErrPluginTooOld
		}
		return "", time.Time{}, fmt.Errorf("accesskeys: unknown plugin version %s", pluginSemVer)
	}
	if pv.IsCutoff {
		return "", time.Time{}, ErrPluginCutoff
	}

	exp := time.Now().Add(TokenTTL)
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		ServerID:        uint64(server.ID),
		PluginVersionID: uint64(pv.ID),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, c)
	signed, err := token.SignedString(m.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("accesskeys: sign token: %w", err)
	}
	return signed, exp, nil
}

// Claims is the verified result of a bearer token.
type Claims struct {
	ServerID        kz.ServerID
	PluginVersionID kz.PluginVersionID
	ExpiresAt       time.Time
}

// Verify checks a bearer token's ES256 signature and expiry and returns
// its bound server/plugin version identity.
func (m *Minter) Verify(tokenString string) (Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return &m.key.PublicKey, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("accesskeys: parse token: %w", err)
	}
	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Claims{}, fmt.Errorf("accesskeys: invalid token claims")
	}
	return Claims{
		ServerID:        kz.ServerID(c.ServerID),
		PluginVersionID: kz.PluginVersionID(c.PluginVersionID),
		ExpiresAt:       c.ExpiresAt.Time,
	}, nil
}
