// Command export writes a company's bookings for a date range to an XLSX
// workbook and can optionally rewrite the mirrored spreadsheet with them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"slotbook/internal/config"
	"slotbook/internal/database"
	"slotbook/internal/domain"
	"slotbook/internal/export"
	"slotbook/internal/google"
	"slotbook/internal/logging"
	"slotbook/internal/postgres"
	"slotbook/internal/service"
	"slotbook/internal/timeslot"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config.yaml")
		companyID  = flag.String("company", "", "company id")
		fromFlag   = flag.String("from", "", "first date, YYYY-MM-DD")
		toFlag     = flag.String("to", "", "last date, YYYY-MM-DD")
		syncSheet  = flag.Bool("sheets", false, "also replace the bookings spreadsheet")
	)
	flag.Parse()

	if *companyID == "" {
		return fmt.Errorf("-company is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	loc := cfg.Booking.Location()
	from, err := timeslot.ParseDate(*fromFlag, loc)
	if err != nil {
		return fmt.Errorf("-from: %w", err)
	}
	to, err := timeslot.ParseDate(*toFlag, loc)
	if err != nil {
		return fmt.Errorf("-to: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var st domain.Repository
	if cfg.Database.Driver == config.DriverPostgres {
		st, err = postgres.Open(ctx, cfg.Database.Postgres.DSN(), cfg.Database.Postgres.MaxConnections, logger)
	} else {
		st, err = database.NewDB(cfg.Database.Path, logger)
	}
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	company, err := service.NewCatalogService(st, logger).GetCompany(ctx, *companyID)
	if err != nil {
		return err
	}
	bookings, err := service.NewBookingService(st, nil, nil, cfg.Booking.MaxBookingDays, logger).
		AllCompanyBookings(ctx, company.ID, from, to)
	if err != nil {
		return err
	}

	report := export.Report{CompanyName: company.Name, From: from, To: to, Bookings: bookings}
	path, err := export.SaveToDir(cfg.Exports.Path, report)
	if err != nil {
		return err
	}
	logger.Info().Str("path", path).Int("bookings", len(bookings)).Msg("Export written")
	if removed, err := export.Prune(cfg.Exports.Path, cfg.Exports.RetentionDays, logger); err != nil {
		logger.Warn().Err(err).Msg("Export cleanup failed")
	} else if len(removed) > 0 {
		logger.Info().Int("removed", len(removed)).Msg("Expired exports removed")
	}

	if *syncSheet {
		if !cfg.Google.SheetsEnabled() {
			return fmt.Errorf("-sheets needs google.credentials_file and google.bookings_spreadsheet_id")
		}
		sheets, err := google.NewSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.BookingsSpreadsheetID, cfg.Google.SheetName)
		if err != nil {
			return err
		}
		if err := sheets.ReplaceBookingsSheet(ctx, bookings); err != nil {
			return err
		}
		logger.Info().Str("sheet", cfg.Google.SheetName).Msg("Spreadsheet replaced")
	}
	return nil
}
