package conflicts

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dibs-fs/dibs/lib/clock"
)

// Sidecar saves rejected-write payloads into Dir, one file per
// refusal, named so concurrent refusals on the same path never
// collide.
type Sidecar struct {
	Dir   string
	Clock clock.Clock
}

// Save writes content to Dir as
// "<unix-nanos>-<uuid>-<basename of path>". Creates Dir if it does not
// already exist.
func (s *Sidecar) Save(path string, content []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating conflicts directory: %w", err)
	}

	name := fmt.Sprintf("%d-%s-%s", s.Clock.Now().UnixNano(), uuid.NewString(), filepath.Base(path))
	fullPath := filepath.Join(s.Dir, name)
	if err := os.WriteFile(fullPath, content, 0o644); err != nil {
		return "", fmt.Errorf("writing conflict payload: %w", err)
	}
	return fullPath, nil
}
