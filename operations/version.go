package operations

import (
	"fmt"

	"github.com/a3sha2/oxasl"
	"github.com/urfave/cli"
)

func Version() cli.Command {
	return cli.Command{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "prints the version of the oxasl client",
		Action: func(c *cli.Context) error {
			fmt.Println(oxasl.ClientVersion)
			return nil
		},
	}
}
