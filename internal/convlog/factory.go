package convlog

import (
	"context"
	"errors"
	"strings"
)

// NewStore writes the plain-text log at path and, when databaseURL is set,
// mirrors every entry into Postgres.
func NewStore(ctx context.Context, path, assistant, databaseURL string) (Store, error) {
	file, err := NewFileStore(path, assistant)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(databaseURL) == "" {
		return file, nil
	}
	pg, err := NewPostgresStore(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return Tee{file, pg}, nil
}

// Tee appends to every store and reads from the first.
type Tee []Store

func (t Tee) Append(ctx context.Context, e Entry) error {
	var errs []error
	for _, s := range t {
		if err := s.Append(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t Tee) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if len(t) == 0 {
		return nil, nil
	}
	return t[0].Recent(ctx, limit)
}

func (t Tee) Close() error {
	var errs []error
	for _, s := range t {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
