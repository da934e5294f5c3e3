package db

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"strconv"
	"strings"
)

// ErrAborted is returned when the operator declines a forced migration.
var ErrAborted = errors.New("aborted")

// RunMigrateCommand runs one 'migrate' subcommand against dbPath. Reports go
// to out; in supplies the confirmation for 'force'.
func RunMigrateCommand(args []string, dbPath string, out io.Writer, in io.Reader) error {
	if len(args) < 1 {
		PrintMigrateHelp(out)
		return errors.New("missing migrate action")
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp(out)
		return nil
	}

	// Open without migrating: the subcommand manages the schema.
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	migrations := MigrationsFS()

	version := func() (uint, error) {
		if len(args) < 2 {
			return 0, fmt.Errorf("usage: glucose-cli migrate %s <version_number>", action)
		}
		v, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid version number: %s", args[1])
		}
		return uint(v), nil
	}

	switch action {
	case "up":
		log.Printf("Running migrations...")
		if err := database.MigrateUp(migrations); err != nil {
			return err
		}
		return printStatus(out, database, migrations)

	case "down":
		log.Printf("Rolling back one migration...")
		if err := database.MigrateDown(migrations); err != nil {
			return err
		}
		return printStatus(out, database, migrations)

	case "status":
		return printStatus(out, database, migrations)

	case "version":
		v, err := version()
		if err != nil {
			return err
		}
		log.Printf("Migrating to version %d...", v)
		if err := database.MigrateTo(migrations, v); err != nil {
			return err
		}
		return printStatus(out, database, migrations)

	case "force":
		v, err := version()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "WARNING: forcing migration version to %d\n", v)
		fmt.Fprintln(out, "This should only be used to recover from a dirty migration state.")
		fmt.Fprint(out, "Continue? [y/N]: ")
		answer, _ := bufio.NewReader(in).ReadString('\n')
		if a := strings.TrimSpace(answer); a != "y" && a != "Y" {
			return ErrAborted
		}
		if err := database.MigrateForce(migrations, int(v)); err != nil {
			return err
		}
		return printStatus(out, database, migrations)

	case "baseline":
		v, err := version()
		if err != nil {
			return err
		}
		if err := database.BaselineAtVersion(v); err != nil {
			return err
		}
		return printStatus(out, database, migrations)
	}

	PrintMigrateHelp(out)
	return fmt.Errorf("unknown migrate action: %s", action)
}

func printStatus(out io.Writer, database *DB, migrations fs.FS) error {
	st, err := database.GetMigrationStatus(migrations)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "=== Migration Status ===")
	fmt.Fprintf(out, "Current version: %d\n", st.Current)
	fmt.Fprintf(out, "Latest available: %d\n", st.Latest)
	fmt.Fprintf(out, "Dirty: %v\n", st.Dirty)
	fmt.Fprintf(out, "Schema migrations table exists: %v\n", st.TableExists)
	switch {
	case st.Dirty:
		fmt.Fprintln(out, "Database is in a dirty state. Inspect it, fix any issues, then run: glucose-cli migrate force <version>")
	case st.Pending() > 0:
		fmt.Fprintf(out, "Database is %d version(s) behind. Run 'glucose-cli migrate up' to update.\n", st.Pending())
	default:
		fmt.Fprintln(out, "Database is up to date.")
	}
	return nil
}

// BaselineAtVersion records version as applied without running any
// migration, for databases whose schema was created by hand.
func (db *DB) BaselineAtVersion(version uint) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (version uint64, dirty bool);
		CREATE UNIQUE INDEX IF NOT EXISTS version_unique ON schema_migrations (version);
	`); err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("failed to check existing migrations: %w", err)
	}
	if count > 0 {
		return errors.New("database already has migrations applied, cannot baseline")
	}
	if _, err := db.Exec("INSERT INTO schema_migrations (version, dirty) VALUES (?, 0)", version); err != nil {
		return fmt.Errorf("failed to insert baseline version: %w", err)
	}
	log.Printf("Database baselined at version %d", version)
	return nil
}

// PrintMigrateHelp displays the help message for the migrate command
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Database Migration Commands

Usage: glucose-cli migrate [-db <path>] <command>

Commands:
  up              Apply all pending migrations
  down            Rollback one migration
  status          Show current migration status and version
  version <N>     Migrate to specific version N
  force <N>       Force migration version to N (recovery only)
  baseline <N>    Set migration version to N without running migrations
  help            Show this help message

Options:
  -db <path>      Path to database file (default: glucose.db)
`)
}
