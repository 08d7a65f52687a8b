// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/launchpad/internal/log"
	"github.com/ManuGH/launchpad/internal/metrics"
	"github.com/ManuGH/launchpad/internal/state"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Service performs backend fetches and writes the results into the store.
// It satisfies the Backend interfaces of the startup and netmon packages.
type Service struct {
	client *Client
	store  *state.Store
	logger zerolog.Logger
}

func NewService(client *Client, store *state.Store) *Service {
	return &Service{
		client: client,
		store:  store,
		logger: log.WithComponent("backend"),
	}
}

// Client exposes the underlying client.
func (s *Service) Client() *Client { return s.client }

func (s *Service) fail(op string, err error) error {
	metrics.IncFetchError(op)
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Service) FetchSettings(ctx context.Context) error {
	settings, err := s.client.Settings(ctx)
	if err != nil {
		return s.fail("settings", err)
	}
	if settings == nil {
		settings = map[string]any{}
	}
	s.store.Apply(state.Fields{Settings: settings})
	return nil
}

// FetchRepositories loads the repository list with its game catalogue and
// the installed items in parallel. Whatever succeeded is applied even when
// the other request failed.
func (s *Service) FetchRepositories(ctx context.Context) error {
	var (
		repos     *RepositoriesResponse
		installed []state.InstalledItem
		repoErr   error
		instErr   error
	)

	var g errgroup.Group
	g.Go(func() error {
		repos, repoErr = s.client.Repositories(ctx)
		return nil
	})
	g.Go(func() error {
		installed, instErr = s.client.Installs(ctx)
		return nil
	})
	_ = g.Wait()

	var patch state.Fields
	if repoErr == nil {
		patch.Repositories = nonNil(repos.Repositories)
		patch.Games = nonNil(repos.Games)
		patch.MetadataLoaded = state.Ptr(true)
	}
	if instErr == nil {
		patch.Installed = nonNil(installed)
	}
	s.store.Apply(patch)

	if repoErr != nil || instErr != nil {
		return s.fail("repositories", errors.Join(repoErr, instErr))
	}
	s.logger.Debug().
		Str(log.FieldEvent, "backend.repositories_loaded").
		Int("repositories", len(repos.Repositories)).
		Int("games", len(repos.Games)).
		Int("installed", len(installed)).
		Msg("repositories loaded")
	return nil
}

func (s *Service) FetchCompatibilityData(ctx context.Context) error {
	compat, err := s.client.Compat(ctx)
	if err != nil {
		return s.fail("compat", err)
	}
	if compat == nil {
		compat = map[string]string{}
	}
	s.store.Apply(state.Fields{Compat: compat})
	return nil
}

func (s *Service) FetchInstalledRunners(ctx context.Context) error {
	runners, err := s.client.Runners(ctx)
	if err != nil {
		return s.fail("runners", err)
	}
	s.store.Apply(state.Fields{Runners: nonNil(runners)})
	return nil
}

func (s *Service) FetchPlatformToolStatus(ctx context.Context) error {
	tools, err := s.client.Tools(ctx)
	if err != nil {
		return s.fail("tools", err)
	}
	s.store.Apply(state.Fields{Tools: nonNil(tools)})
	return nil
}

// FetchJobSnapshot replaces the job map with the backend's view.
func (s *Service) FetchJobSnapshot(ctx context.Context) error {
	jobs, err := s.client.Jobs(ctx)
	if err != nil {
		return s.fail("jobs", err)
	}
	m := make(map[string]state.Job, len(jobs))
	for _, j := range jobs {
		if j.ID != "" {
			m[j.ID] = j
		}
	}
	s.store.Apply(state.Fields{Jobs: m})
	return nil
}

// nonNil keeps "fetched but empty" distinguishable from "unchanged" in Fields.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
