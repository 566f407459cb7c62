package shell

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh shell id of the form fs_<unix seconds>_<8 hex>.
func NewID() string {
	return fmt.Sprintf("fs_%d_%s", time.Now().Unix(), uuid.NewString()[:8])
}

// NewRunID returns a fresh run identity of the form run_<unix millis>_<8 hex>.
// A new one is minted for every execution of the supervising program; the
// adoption pass compares it against the run id stamped into records.
func NewRunID() string {
	return fmt.Sprintf("run_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
