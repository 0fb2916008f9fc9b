package db

import (
	"fmt"
	"io"
	"strconv"
)

// RunMigrateCommand handles the 'migrate' subcommand. Output goes to w so
// the command can be exercised without a terminal.
func RunMigrateCommand(w io.Writer, args []string, dbPath string) error {
	if len(args) < 1 {
		PrintMigrateHelp(w)
		return fmt.Errorf("missing migrate action")
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp(w)
		return nil
	}

	migrations, err := getMigrationsFS()
	if err != nil {
		return err
	}
	// Open without migrating; the action decides what happens to the schema.
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action {
	case "up":
		if err := database.MigrateUp(migrations); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ All migrations applied successfully")

	case "down":
		if err := database.MigrateDown(migrations); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ Migration rolled back successfully")

	case "status":

	case "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: formcheck migrate force <version_number>")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version number: %s", args[1])
		}
		if err := database.MigrateForce(migrations, v); err != nil {
			return err
		}

	default:
		PrintMigrateHelp(w)
		return fmt.Errorf("unknown migrate action: %s", action)
	}

	return printMigrateStatus(w, database)
}

func printMigrateStatus(w io.Writer, database *DB) error {
	migrations, err := getMigrationsFS()
	if err != nil {
		return err
	}
	version, dirty, err := database.MigrateVersion(migrations)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	latest, err := LatestMigrationVersion()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "=== Migration Status ===")
	fmt.Fprintf(w, "Current version: %d\n", version)
	fmt.Fprintf(w, "Latest version: %d\n", latest)
	fmt.Fprintf(w, "Dirty: %v\n", dirty)
	if dirty {
		fmt.Fprintln(w, "\n⚠️  WARNING: Database is in a dirty state!")
		fmt.Fprintln(w, "Inspect the database, then run: formcheck migrate force <version>")
	}
	return nil
}

// PrintMigrateHelp displays help for the migrate command.
func PrintMigrateHelp(w io.Writer) {
	fmt.Fprint(w, `Usage: formcheck migrate <action> [args]

Actions:
  up                 Apply all pending migrations
  down               Roll back the most recent migration
  status             Show the current migration version
  force <version>    Force the recorded version (recovery only)
  help               Show this help
`)
}
