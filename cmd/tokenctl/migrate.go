package main

import (
	"database/sql"
	"fmt"

	"github.com/urfave/cli/v2"

	corepostgres "tokencore/internal/core/store/postgres"
	auditpostgres "tokencore/pkg/platform/audit/store/postgres"
)

var databaseFlag = &cli.StringFlag{
	Name:     "database-url",
	EnvVars:  []string{"DATABASE_URL"},
	Required: true,
}

var Migrate = cli.Command{
	Action: migrate,
	Name:   "migrate",
	Usage:  "creates the core and audit event tables",
	Flags:  []cli.Flag{databaseFlag},
}

func migrate(context *cli.Context) error {
	db, err := sql.Open("postgres", context.String(databaseFlag.Name))
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Context
	if err := corepostgres.New(db).Migrate(ctx); err != nil {
		return fmt.Errorf("core schema: %w", err)
	}
	if err := auditpostgres.New(db).Migrate(ctx); err != nil {
		return fmt.Errorf("audit event schema: %w", err)
	}
	fmt.Fprintln(context.App.Writer, "schema is up to date")
	return nil
}
