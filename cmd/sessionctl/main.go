// Command sessionctl drives the session client against a running API:
// it logs in, performs authenticated requests with transparent refresh and
// persists the rotated token pair between invocations.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "sessionctl",
		Usage: "Authenticated client for the community service API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "http://localhost:8080",
				Usage:   "API base URL",
				Sources: cli.EnvVars("SESSIONCTL_SERVER"),
			},
			&cli.StringFlag{
				Name:    "session-file",
				Value:   defaultSessionFile(),
				Usage:   "Where the token pair is stored between runs",
				Sources: cli.EnvVars("SESSIONCTL_SESSION_FILE"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log refreshes and session expiry to stderr",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Log in and store the token pair",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true, Usage: "Account email"},
					&cli.StringFlag{
						Name:    "password",
						Aliases: []string{"p"},
						Usage:   "Account password",
						Sources: cli.EnvVars("SESSIONCTL_PASSWORD"),
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runLogin(ctx, cmd, cmd.String("email"), cmd.String("password"))
				},
			},
			{
				Name:      "get",
				Usage:     "GET a path with the stored session",
				ArgsUsage: "<path>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runRequest(ctx, cmd, "GET", cmd.Args().First(), "")
				},
			},
			{
				Name:      "post",
				Usage:     "POST a JSON body to a path with the stored session",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "JSON request body"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runRequest(ctx, cmd, "POST", cmd.Args().First(), cmd.String("data"))
				},
			},
			{
				Name:  "logout",
				Usage: "Revoke the session and delete the stored token pair",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runLogout(ctx, cmd)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
