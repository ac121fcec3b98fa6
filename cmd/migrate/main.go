package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	var (
		dbURL string
		path  string
		steps int
	)

	flag.StringVar(&dbURL, "db", "", "database URL, falls back to DATABASE_URL")
	flag.StringVar(&path, "path", "./migrations", "migrations directory")
	flag.IntVar(&steps, "steps", 0, "steps to apply for up/down, 0 means all")
	flag.Parse()

	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("database URL required: pass -db or set DATABASE_URL")
	}

	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	if err := run(dbURL, path, command, steps); err != nil {
		log.Fatalf("migrate %s: %v", command, err)
	}
}

func run(dbURL, path, command string, steps int) error {
	m, err := migrate.New("file://"+path, dbURL)
	if err != nil {
		return err
	}
	defer m.Close()

	switch command {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "version":
		err = nil
	default:
		return fmt.Errorf("unknown command %q (want up, down, or version)", command)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Println("schema at nil version")
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		log.Printf("schema at version %d (dirty: %t)", version, dirty)
	}
	return nil
}
