package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations for the configured store",
	Long: `Migrate applies the embedded schema migrations to the sqlite or
postgres store. Memory and Firestore stores have no schema.

Example:
  credence migrate --store postgres
  CREDENCE_STORE_DSN=postgres://... credence migrate --store postgres`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	sc := cfg.Store
	sc.MigrateOnStart = false
	st, err := openStore(ctx, sc, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	m, ok := st.(migrator)
	if !ok {
		fmt.Fprintf(os.Stderr, "Store backend %q has no schema to migrate\n", cfg.Store.Backend)
		return nil
	}
	if err := m.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Migrations applied (%s)\n", cfg.Store.Backend)
	return nil
}
