package storage

import (
	"context"
	"errors"
)

type tee struct {
	stores []Store
}

// Tee returns a Store that writes to every store and reads from the first one
// holding the key.
func Tee(stores ...Store) Store {
	var nonNil []Store
	for _, s := range stores {
		if s != nil {
			nonNil = append(nonNil, s)
		}
	}
	if len(nonNil) == 1 {
		return nonNil[0]
	}
	return &tee{stores: nonNil}
}

func (t *tee) Write(ctx context.Context, key Key, text string) error {
	var errs []error
	for _, s := range t.stores {
		if err := s.Write(ctx, key, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *tee) Read(ctx context.Context, key Key) (string, error) {
	var errs []error
	for _, s := range t.stores {
		text, err := s.Read(ctx, key)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return "", ErrNotFound
}
