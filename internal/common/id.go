package common

import (
	"github.com/google/uuid"
)

// NewRunID generates a correlation id for one pipeline or gap run
// Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}
