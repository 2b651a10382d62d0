package dicom

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// maxUIDLen is the DICOM unique identifier length ceiling.
const maxUIDLen = 64

// counterModulus bounds the per-process sequence component.
const counterModulus = 10000

// uidPattern matches a syntactically legal UID: numeric components joined by
// single dots, no leading, trailing or doubled dots.
var uidPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)

// ValidUID reports whether s has the general shape of a DICOM unique
// identifier.
func ValidUID(s string) bool {
	return len(s) >= 1 && len(s) <= maxUIDLen && uidPattern.MatchString(s)
}

// Generator produces globally-unique DICOM identifiers under one
// organisational root. The cycling counter is the only process-wide mutable
// state in the pipeline and is owned here, behind a mutex; one generator
// instance is injected wherever identifiers are needed.
type Generator struct {
	orgRoot string

	mu      sync.Mutex
	counter int
}

// NewGenerator creates a generator rooted at orgRoot. The root must be a
// valid dotted numeric UID and short enough to leave room for the generated
// suffix components.
func NewGenerator(orgRoot string) (*Generator, error) {
	if !ValidUID(orgRoot) {
		return nil, fmt.Errorf("invalid organisational root %q", orgRoot)
	}
	// root + "." + 13-digit millis + "." + counter + "." + random must fit
	// in 64; 32 leaves the suffix at least 30 characters.
	if len(orgRoot) > 32 {
		return nil, fmt.Errorf("organisational root %q longer than 32 characters", orgRoot)
	}
	return &Generator{orgRoot: orgRoot}, nil
}

// New returns a fresh unique identifier: root, millisecond timestamp, cycling
// counter and a cryptographically random component, truncated to the 64
// character ceiling.
func (g *Generator) New() string {
	g.mu.Lock()
	seq := g.counter
	g.counter = (g.counter + 1) % counterModulus
	g.mu.Unlock()

	var buf [8]byte
	_, _ = rand.Read(buf[:])
	random := binary.BigEndian.Uint64(buf[:]) % 1_000_000_000

	uid := fmt.Sprintf("%s.%d.%d.%d", g.orgRoot, time.Now().UnixMilli(), seq, random)
	return truncateUID(uid)
}

// NewFrom returns a deterministic identifier derived from seed: the same seed
// always yields the same UID, different seeds yield different UIDs with
// overwhelming probability. Used for reproducible identifiers in tests.
func (g *Generator) NewFrom(seed []byte) string {
	sum := sha256.Sum256(seed)
	// A fixed-width 19-digit component with a forced leading "1" so the
	// hash can never produce a leading zero.
	hashed := binary.BigEndian.Uint64(sum[:8]) % 1_000_000_000_000_000_000
	uid := fmt.Sprintf("%s.1%018d", g.orgRoot, hashed)
	return truncateUID(uid)
}

// truncateUID enforces the 64 character ceiling without leaving a dangling
// component: anything after the last complete dot-separated component that
// fits is dropped.
func truncateUID(uid string) string {
	if len(uid) <= maxUIDLen {
		return uid
	}
	uid = uid[:maxUIDLen]
	uid = strings.TrimRight(uid, ".")
	// A truncated component could keep a leading zero ("...0" from "...0123"
	// is fine, but "01" is not a legal start); strip any such component.
	if i := strings.LastIndex(uid, "."); i >= 0 {
		last := uid[i+1:]
		if len(last) > 1 && last[0] == '0' {
			uid = uid[:i]
		}
	}
	return uid
}
