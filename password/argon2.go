package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

// b64 is the unpadded standard alphabet used by PHC strings.
var b64 = base64.RawStdEncoding

// Config holds Argon2id cost parameters.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the parameters used for new hashes.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("%w: memory must be >= %d KB", ErrWeakConfig, minMemoryKB)
	case c.Time < minTimeCost:
		return fmt.Errorf("%w: time must be >= %d", ErrWeakConfig, minTimeCost)
	case c.Parallelism < minParallelism:
		return fmt.Errorf("%w: parallelism must be >= %d", ErrWeakConfig, minParallelism)
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("%w: salt length must be >= %d", ErrWeakConfig, minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("%w: key length must be >= %d", ErrWeakConfig, minKeyLength)
	}
	return nil
}

// Argon2 hashes with Argon2id and verifies PHC-encoded Argon2id hashes.
// It is safe for concurrent use.
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg and returns an Argon2 hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

// phc is a decoded $argon2id$v=..$m=..,t=..,p=..$salt$key string.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phc) derive(password string) []byte {
	return argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
}

func (p phc) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		p.memory, p.time, p.parallelism,
		b64.EncodeToString(p.salt), b64.EncodeToString(p.key))
}

// Hash returns a PHC-encoded Argon2id hash of password. Raw bytes are hashed
// exactly as provided.
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	p := phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        make([]byte, a.config.SaltLength),
		key:         make([]byte, a.config.KeyLength),
	}
	if _, err := rand.Read(p.salt); err != nil {
		return "", fmt.Errorf("password: read salt: %w", err)
	}
	p.key = p.derive(password)
	return p.String(), nil
}

// Verify recomputes the key with the stored parameters and compares in
// constant time. A mismatch is (false, nil).
func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(p.derive(password), p.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was produced with weaker
// parameters than the current config.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	weaker := p.memory < a.config.Memory ||
		p.time < a.config.Time ||
		p.parallelism < a.config.Parallelism ||
		uint32(len(p.key)) != a.config.KeyLength
	return weaker, nil
}

func isArgon2Hash(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$"+algorithmID+"$")
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformedHash}, args...)...)
}

func decodePHC(encodedHash string) (phc, error) {
	fields := strings.Split(encodedHash, "$")
	if len(fields) != 6 || fields[0] != "" {
		return phc{}, ErrMalformedHash
	}
	if fields[1] != algorithmID {
		return phc{}, ErrUnsupportedHash
	}

	version, ok := strings.CutPrefix(fields[2], "v=")
	if !ok {
		return phc{}, malformed("missing version")
	}
	if v, err := strconv.Atoi(version); err != nil {
		return phc{}, malformed("version %q", version)
	} else if v != argon2.Version {
		return phc{}, fmt.Errorf("%w: argon2 version %d", ErrUnsupportedHash, v)
	}

	var p phc
	if err := p.decodeParams(fields[3]); err != nil {
		return phc{}, err
	}

	var err error
	if p.salt, err = b64.DecodeString(fields[4]); err != nil || len(p.salt) < int(minSaltLength) {
		return phc{}, malformed("salt")
	}
	if p.key, err = b64.DecodeString(fields[5]); err != nil || len(p.key) == 0 {
		return phc{}, malformed("key")
	}
	return p, nil
}

// decodeParams reads exactly the m, t and p entries, each once.
func (p *phc) decodeParams(s string) error {
	entries := strings.Split(s, ",")
	if len(entries) != 3 {
		return malformed("parameters %q", s)
	}

	seen := make(map[string]bool, 3)
	for _, entry := range entries {
		name, raw, ok := strings.Cut(entry, "=")
		if !ok || seen[name] {
			return malformed("parameter %q", entry)
		}
		seen[name] = true

		switch name {
		case "m":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || uint32(v) < minMemoryKB {
				return malformed("memory %q", raw)
			}
			p.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || uint32(v) < minTimeCost {
				return malformed("time %q", raw)
			}
			p.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(raw, 10, 8)
			if err != nil || uint8(v) < minParallelism {
				return malformed("parallelism %q", raw)
			}
			p.parallelism = uint8(v)
		default:
			return malformed("unknown parameter %q", name)
		}
	}
	return nil
}
