// Package storestate resolves which remote index store a run writes to and
// persists its identity between runs.
package storestate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"docqa/internal/domain"
)

// File is the single-line record holding the current store name.
type File struct {
	Path string
}

// Read returns the persisted store name, or "" when none is recorded.
func (f File) Read() (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Write replaces the record atomically.
func (f File) Write(name string) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".store-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(name); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}

// Resolver produces a usable store handle.
type Resolver struct {
	index       domain.IndexService
	state       File
	displayName string
	log         *zap.Logger
}

// NewResolver creates a resolver that provisions stores named displayName.
func NewResolver(index domain.IndexService, state File, displayName string, log *zap.Logger) *Resolver {
	return &Resolver{index: index, state: state, displayName: displayName, log: log}
}

// Resolve reuses the persisted store when it can still be fetched and
// creates (and records) a new one otherwise. On success the state file holds
// exactly the returned store's name.
func (r *Resolver) Resolve(ctx context.Context) (domain.IndexStore, error) {
	name, err := r.state.Read()
	if err != nil {
		r.log.Warn("could not read store state, creating a new store",
			zap.String("path", r.state.Path), zap.Error(err))
		name = ""
	}

	if name != "" {
		store, err := r.index.GetStore(ctx, name)
		if err == nil {
			r.log.Info("using existing store",
				zap.String("store", store.Name), zap.String("display_name", store.DisplayName))
			return store, nil
		}
		if ctx.Err() != nil {
			return domain.IndexStore{}, ctx.Err()
		}
		r.log.Warn("could not find existing store, creating a new one",
			zap.String("store", name), zap.String("cause", causeOf(err)), zap.Error(err))
	}

	return r.create(ctx)
}

// Current fetches the persisted store without creating anything.
func (r *Resolver) Current(ctx context.Context) (domain.IndexStore, error) {
	name, err := r.state.Read()
	if err != nil {
		return domain.IndexStore{}, err
	}
	if name == "" {
		return domain.IndexStore{}, fmt.Errorf("no store recorded in %s: %w", r.state.Path, domain.ErrNotFound)
	}
	return r.index.GetStore(ctx, name)
}

func (r *Resolver) create(ctx context.Context) (domain.IndexStore, error) {
	r.log.Info("creating store", zap.String("display_name", r.displayName))
	store, err := r.index.CreateStore(ctx, r.displayName)
	if err != nil {
		return domain.IndexStore{}, fmt.Errorf("create store: %w", err)
	}
	if err := r.state.Write(store.Name); err != nil {
		return domain.IndexStore{}, fmt.Errorf("persist store %s to %s: %w", store.Name, r.state.Path, err)
	}
	r.log.Info("store created", zap.String("store", store.Name), zap.String("state_file", r.state.Path))
	return store, nil
}

func causeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrPermission):
		return "permission"
	case errors.Is(err, domain.ErrTransient):
		return "unavailable"
	default:
		return "error"
	}
}
