package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/uptrace/bun"

	"ms-speakers/internal/auth"
	"ms-speakers/internal/config"
	"ms-speakers/internal/database"
	"ms-speakers/internal/database/migrations"
	"ms-speakers/internal/logger"
	"ms-speakers/internal/models"
)

func main() {
	var (
		dir     = pflag.String("dir", "", "migrations directory (defaults to MIGRATIONS_DIR)")
		down    = pflag.Bool("down", false, "roll back every migration")
		to      = pflag.Uint("to", 0, "migrate up or down to this version")
		seed    = pflag.Bool("seed", false, "insert a sample event after migrating")
		admins  = pflag.StringSlice("admin", nil, "grant the admin role to these emails")
		scanner = pflag.StringSlice("scanner", nil, "grant the scanner role to these emails")
	)
	pflag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	if *dir != "" {
		cfg.Database.MigrationsDir = *dir
	}

	log := logger.New(os.Stdout, nil)
	log.SetLevel(cfg.Log.Level)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}

	runner := migrations.NewRunner(bunDB, cfg.Database.MigrationsDir, log)
	defer func() {
		if err := runner.Close(); err != nil {
			log.Error("MIGRATE", err.Error())
		}
	}()
	if err := runner.Initialize(); err != nil {
		log.Fatal("MIGRATE", err.Error())
	}

	switch {
	case *down:
		err = runner.Down()
	case pflag.CommandLine.Changed("to"):
		err = runner.To(*to)
	default:
		err = runner.Up()
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}

	roles := &auth.RoleDB{Bun: bunDB}
	for role, emails := range map[string][]string{models.RoleAdmin: *admins, models.RoleScanner: *scanner} {
		for _, email := range emails {
			id := auth.NewIdentity("", email)
			if err := roles.Grant(ctx, id.Email, role); err != nil {
				log.Fatal("SEED", fmt.Sprintf("grant %s to %s: %v", role, email, err))
			}
			log.Info("SEED", fmt.Sprintf("Granted %s to %s", role, id.Email))
		}
	}

	if *seed {
		if err := seedEvent(ctx, bunDB, log); err != nil {
			log.Fatal("SEED", err.Error())
		}
	}
	log.Info("MIGRATE", "Done")
}

func seedEvent(ctx context.Context, db *bun.DB, log *logger.Logger) error {
	event := models.Event{
		ID:       uuid.NewString(),
		Name:     "Speaker series: opening night",
		Capacity: 150,
		StartsAt: time.Now().Add(14 * 24 * time.Hour).Truncate(time.Hour),
	}
	if _, err := db.NewInsert().Model(&event).Exec(ctx); err != nil {
		return fmt.Errorf("insert sample event: %w", err)
	}
	log.Info("SEED", fmt.Sprintf("Created event %s (%s)", event.ID, event.Name))
	return nil
}
