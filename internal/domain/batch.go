package domain

import "fmt"

// Batch is one unit of review work handed to a single reviewer process.
// Batches are produced by packet preparation and never modified afterwards.
type Batch struct {
	Index      int      `json:"-" yaml:"-"` // 0-based, stable across retries
	Name       string   `json:"name" yaml:"name"`
	Dimensions []string `json:"dimensions" yaml:"dimensions"`
	Why        string   `json:"why" yaml:"why"`
	Files      []string `json:"files_to_read" yaml:"files_to_read"`
}

// Number returns the 1-based batch number used in file names and output
func (b Batch) Number() int {
	return b.Index + 1
}

// String returns a short display label such as "#3 error-handling"
func (b Batch) String() string {
	if b.Name == "" {
		return fmt.Sprintf("#%d", b.Number())
	}
	return fmt.Sprintf("#%d %s", b.Number(), b.Name)
}

