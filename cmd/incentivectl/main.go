// Command incentivectl is the operational CLI for the incentive engine:
// seeding catalog data and backfilling rewards for historical reviews.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	// SQL drivers registered for the sqlx storage adapter.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&seedCmd{}, "catalog")
	subcommands.Register(&backfillCmd{}, "processing")

	flag.Parse()
	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}
