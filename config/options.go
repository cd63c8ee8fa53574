package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/opd-ai/raknet/handshake"
	"github.com/opd-ai/raknet/limits"
	"github.com/opd-ai/raknet/security"
	"github.com/opd-ai/raknet/session"
	"github.com/sirupsen/logrus"
)

// ErrInvalidOptions wraps every validation failure.
var ErrInvalidOptions = errors.New("config: invalid options")

// Log formats accepted by Options.LogFormat.
const (
	LogFormatAuto = "auto"
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// DefaultListenAddress is the conventional RakNet server port on all IPv4
// interfaces.
const DefaultListenAddress = "0.0.0.0:19132"

// SecurityOptions configures the secured handshake. Keys are hex encoded.
type SecurityOptions struct {
	// Enabled generates server keys and offers security to clients.
	Enabled bool
	// RequireSecurity refuses peers that do not secure the connection.
	RequireSecurity bool
	// RequireIdentity refuses secured clients without an identity.
	RequireIdentity bool
	// ServerKey pins the 64-byte public key of servers this peer connects to.
	ServerKey string
	// IdentitySeed is the 32-byte Ed25519 seed sent as client identity.
	IdentitySeed string
	// AllowedIdentities restricts client identities to these Ed25519 keys.
	AllowedIdentities []string
}

// Options contains all configuration for a Peer.
type Options struct {
	ListenAddress   string
	ProtocolVersion byte
	// GUID identifies this peer. Zero picks a random one at start.
	GUID          uint64
	MTU           int
	MaxSessions   int
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	// BanList is the SQLite file holding bans. Empty keeps bans in memory.
	BanList   string
	LogLevel  string
	LogFormat string
	Security  SecurityOptions
}

// NewOptions returns Options with the defaults filled in.
func NewOptions() *Options {
	return &Options{
		ListenAddress:   DefaultListenAddress,
		ProtocolVersion: handshake.DefaultProtocolVersion,
		MTU:             limits.MaxMTUSize,
		MaxSessions:     session.DefaultCapacity,
		IdleTimeout:     session.DefaultIdleTimeout,
		SweepInterval:   session.DefaultSweepInterval,
		LogLevel:        logrus.InfoLevel.String(),
		LogFormat:       LogFormatAuto,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOptions, fmt.Sprintf(format, args...))
}

// Validate checks every field and returns the first problem found.
func (o *Options) Validate() error {
	if _, err := o.Listen(); err != nil {
		return err
	}
	if o.ProtocolVersion == 0 {
		return invalid("protocol version must be positive")
	}
	if err := limits.ValidateMTU(o.MTU); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	if o.MaxSessions <= 0 {
		return invalid("max sessions %d must be positive", o.MaxSessions)
	}
	if o.IdleTimeout <= 0 {
		return invalid("idle timeout %s must be positive", o.IdleTimeout)
	}
	if o.SweepInterval <= 0 {
		return invalid("sweep interval %s must be positive", o.SweepInterval)
	}
	if _, err := logrus.ParseLevel(o.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	switch o.LogFormat {
	case LogFormatAuto, LogFormatText, LogFormatJSON:
	default:
		return invalid("unknown log format %q", o.LogFormat)
	}
	return o.Security.validate()
}

// Listen parses ListenAddress.
func (o *Options) Listen() (netip.AddrPort, error) {
	addr, err := netip.ParseAddrPort(o.ListenAddress)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: listen address: %w", ErrInvalidOptions, err)
	}
	return addr, nil
}

func (s SecurityOptions) validate() error {
	if (s.RequireSecurity || s.RequireIdentity) && !s.Enabled {
		return invalid("security requirements set while security is disabled")
	}
	if _, _, err := s.PinnedServerKey(); err != nil {
		return err
	}
	if _, err := s.Identity(); err != nil {
		return err
	}
	_, err := s.IdentityPolicy()
	return err
}

func decodeHex(field, value string, size int) ([]byte, error) {
	raw, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidOptions, field, err)
	}
	if len(raw) != size {
		return nil, invalid("%s is %d bytes, want %d", field, len(raw), size)
	}
	return raw, nil
}

// PinnedServerKey decodes ServerKey. The boolean is false when no key is
// pinned.
func (s SecurityOptions) PinnedServerKey() (security.PublicKey, bool, error) {
	var key security.PublicKey
	if s.ServerKey == "" {
		return key, false, nil
	}
	raw, err := decodeHex("server key", s.ServerKey, len(key))
	if err != nil {
		return key, false, err
	}
	copy(key[:], raw)
	return key, true, nil
}

// KeyPolicy returns the client trust policy for server keys.
func (s SecurityOptions) KeyPolicy() (security.KeyPolicy, error) {
	key, ok, err := s.PinnedServerKey()
	if err != nil {
		return nil, err
	}
	if !ok {
		return security.AcceptAnyKey, nil
	}
	return security.PinnedKey(key), nil
}

// Identity returns the client identity derived from IdentitySeed, or nil
// when no seed is configured.
func (s SecurityOptions) Identity() (*security.Identity, error) {
	if s.IdentitySeed == "" {
		return nil, nil
	}
	seed, err := decodeHex("identity seed", s.IdentitySeed, ed25519.SeedSize)
	if err != nil {
		return nil, err
	}
	return security.NewIdentityFromSeed(seed)
}

// IdentityPolicy returns the server policy for client identities.
func (s SecurityOptions) IdentityPolicy() (security.IdentityPolicy, error) {
	if len(s.AllowedIdentities) == 0 {
		return security.AcceptAnyIdentity, nil
	}
	keys := make([]ed25519.PublicKey, 0, len(s.AllowedIdentities))
	for i, v := range s.AllowedIdentities {
		raw, err := decodeHex(fmt.Sprintf("allowed identity %d", i), v, ed25519.PublicKeySize)
		if err != nil {
			return nil, err
		}
		keys = append(keys, ed25519.PublicKey(raw))
	}
	return security.AllowedIdentities(keys...), nil
}
