package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version     kong.VersionFlag `short:"v" help:"Show version"`
	Server      ServerCmd        `cmd:"" help:"Run the home game server"`
	Leaderboard LeaderboardCmd   `cmd:"" help:"Rank the players of a session"`
	Stats       StatsCmd         `cmd:"" help:"Show a player's statistics"`
	HandHistory HandHistoryCmd   `cmd:"hand-history" help:"Work with PHH hand history files"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("homepoker"),
		kong.Description("Real-time Texas Hold'em server for home games"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
