package main

import (
	"os"
	"path/filepath"

	"github.com/a3sha2/oxasl"
	"github.com/a3sha2/oxasl/operations"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/level"
	"github.com/mongodb/grip/send"
	"github.com/urfave/cli"
	_ "go.uber.org/automaxprocs"
)

func main() {
	// this is where the main action of the program starts. The
	// command line interface is managed by the cli package and its
	// objects/structures. This, plus the basic configuration in
	// buildApp(), is all that's necessary for bootstrapping.
	app := buildApp()

	grip.EmergencyFatal(app.Run(os.Args))
}

func buildApp() *cli.App {
	app := cli.NewApp()
	app.Name = "oxasl"
	app.Usage = "ASL-MRI preprocessing and packaging toolchain"
	app.Version = oxasl.ClientVersion

	// Register sub-commands here.
	app.Commands = []cli.Command{
		operations.Version(),

		// pipeline commands
		operations.Reg(),
		operations.Correct(),

		// packaging commands
		operations.Package(),
	}

	userHome, _ := homedir.Dir()
	confPath := filepath.Join(userHome, oxasl.DefaultOxaslConfig)

	// These are global options. Use this to configure logging or
	// other options independent from specific sub commands.
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "level",
			Value: "info",
			Usage: "Specify lowest visible log level as string: 'emergency|alert|critical|error|warning|notice|info|debug|trace'",
		},
		cli.StringFlag{
			Name:  "conf, config, c",
			Usage: "specify the path for the oxasl CLI config",
			Value: confPath,
		},
	}

	app.Before = func(c *cli.Context) error {
		return loggingSetup(app.Name, c.String("level"))
	}

	return app
}

func loggingSetup(name, l string) error {
	if err := grip.SetSender(send.MakeErrorLogger()); err != nil {
		return err
	}
	grip.SetName(name)

	sender := grip.GetSender()
	info := sender.Level()
	info.Threshold = level.FromString(l)

	return sender.SetLevel(info)
}
