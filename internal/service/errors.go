package service

import (
	"errors"

	"github.com/prn-tf/castellan/internal/repository"
)

// mapRepoErr translates a repository error into the domain sentinel the
// caller should surface. Unknown errors pass through untouched.
func mapRepoErr(err, notFound error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound
	}
	return err
}
