// Package catalog loads a YAML catalog of companies, services and operating
// windows into a store.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"

	"slotbook/internal/domain"
	"slotbook/internal/models"
	"slotbook/internal/timeslot"
)

type Seed struct {
	Companies []CompanySeed `yaml:"companies"`
}

type CompanySeed struct {
	ID       string        `yaml:"id"`
	OwnerID  string        `yaml:"owner_id"`
	Name     string        `yaml:"name"`
	Status   string        `yaml:"status"`
	Services []ServiceSeed `yaml:"services"`
	Windows  []WindowSeed  `yaml:"windows"`
}

type ServiceSeed struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	DurationMinutes int    `yaml:"duration_minutes"`
	PriceCents      int64  `yaml:"price_cents"`
	Active          *bool  `yaml:"active"`
}

// WindowSeed uses HH:MM times; "24:00" ends a window at midnight. A missing
// day_of_week means every day.
type WindowSeed struct {
	ID              string `yaml:"id"`
	DayOfWeek       *int   `yaml:"day_of_week"`
	Start           string `yaml:"start"`
	End             string `yaml:"end"`
	SlotGranularity int    `yaml:"slot_granularity"`
}

func LoadFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.UnmarshalStrict(data, &seed); err != nil {
		return nil, fmt.Errorf("parse catalog seed: %w", err)
	}
	if err := seed.validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

func (s *Seed) validate() error {
	for i, c := range s.Companies {
		if c.ID == "" || c.Name == "" {
			return fmt.Errorf("company %d: id and name are required", i)
		}
		if c.Status != "" && !models.CompanyStatus(c.Status).Valid() {
			return fmt.Errorf("company %s: unknown status %q", c.ID, c.Status)
		}
		for _, svc := range c.Services {
			if svc.ID == "" || svc.Name == "" {
				return fmt.Errorf("company %s: service id and name are required", c.ID)
			}
			if svc.DurationMinutes <= 0 || svc.DurationMinutes >= timeslot.MinutesPerDay {
				return fmt.Errorf("service %s: invalid duration %d", svc.ID, svc.DurationMinutes)
			}
		}
		for _, w := range c.Windows {
			if _, err := w.toWindow(c.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w WindowSeed) toWindow(companyID string) (*models.OperatingWindow, error) {
	if w.ID == "" {
		return nil, fmt.Errorf("company %s: window id is required", companyID)
	}
	start, err := timeslot.Parse(w.Start)
	if err != nil {
		return nil, fmt.Errorf("window %s: start: %w", w.ID, err)
	}
	end := timeslot.MinutesPerDay
	if w.End != "24:00" {
		if end, err = timeslot.Parse(w.End); err != nil {
			return nil, fmt.Errorf("window %s: end: %w", w.ID, err)
		}
	}
	if start >= end {
		return nil, fmt.Errorf("window %s: start must be before end", w.ID)
	}
	day := models.EveryDay()
	if w.DayOfWeek != nil {
		if day, err = models.DayOfWeekFromInt(*w.DayOfWeek); err != nil {
			return nil, fmt.Errorf("window %s: %w", w.ID, err)
		}
	}
	return &models.OperatingWindow{
		ID:              w.ID,
		CompanyID:       companyID,
		DayOfWeek:       day,
		StartTime:       start,
		EndTime:         end,
		SlotGranularity: w.SlotGranularity,
		Active:          true,
	}, nil
}

// Apply creates every seeded record that the store does not have yet.
// Existing records are left untouched, so applying twice is harmless.
func Apply(ctx context.Context, store domain.CatalogStore, seed *Seed, logger *zerolog.Logger) error {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	created := 0
	for _, c := range seed.Companies {
		ok, err := ensure(func() error { _, err := store.GetCompany(ctx, c.ID); return err }, func() error {
			status := models.CompanyApproved
			if c.Status != "" {
				status = models.CompanyStatus(c.Status)
			}
			return store.CreateCompany(ctx, &models.Company{ID: c.ID, OwnerID: c.OwnerID, Name: c.Name, Status: status})
		})
		if err != nil {
			return fmt.Errorf("seed company %s: %w", c.ID, err)
		}
		if ok {
			created++
		}

		for _, svc := range c.Services {
			svc := svc
			ok, err := ensure(func() error { _, err := store.FindService(ctx, svc.ID); return err }, func() error {
				active := true
				if svc.Active != nil {
					active = *svc.Active
				}
				return store.CreateService(ctx, &models.Service{
					ID: svc.ID, CompanyID: c.ID, Name: svc.Name,
					DurationMinutes: svc.DurationMinutes, PriceCents: svc.PriceCents, Active: active,
				})
			})
			if err != nil {
				return fmt.Errorf("seed service %s: %w", svc.ID, err)
			}
			if ok {
				created++
			}
		}

		for _, ws := range c.Windows {
			w, err := ws.toWindow(c.ID)
			if err != nil {
				return err
			}
			ok, err := ensure(func() error { _, err := store.GetOperatingWindow(ctx, w.ID); return err }, func() error {
				return store.CreateOperatingWindow(ctx, w)
			})
			if err != nil {
				return fmt.Errorf("seed window %s: %w", w.ID, err)
			}
			if ok {
				created++
			}
		}
	}
	logger.Info().Int("companies", len(seed.Companies)).Int("created", created).Msg("Catalog seed applied")
	return nil
}

// ensure runs create when get reports NOT_FOUND. It returns whether a
// record was created.
func ensure(get, create func() error) (bool, error) {
	err := get()
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}
	if err := create(); err != nil {
		return false, err
	}
	return true, nil
}
