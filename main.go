package main

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/awnumar/memguard"
	cli "github.com/urfave/cli/v2"
	qcrypto "github.com/xtaci/quiccat/crypto"
)

const (
	exampleListen = "quiccat --listen '*' --port 4567 --password hunter2 --destination ./incoming"
	exampleTarget = "quiccat --target 203.0.113.10 --port 4567 --password hunter2 --file ./report.pdf"
	examplePipe   = "tar c ./dir | quiccat -t 203.0.113.10 -p 4567 --ask-password"
)

// main runs either side of a transfer: --listen receives, --target connects.
func main() {
	catchInterrupt()

	err := newApp().Run(os.Args)
	memguard.Purge()
	if err == nil {
		return
	}
	var exit cli.ExitCoder
	if errors.As(err, &exit) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exit.ExitCode())
	}
	log.Fatal(err)
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "quiccat",
		Usage:     "Send a file or stdin/stdout to a peer over QUIC, authenticated by a shared password",
		UsageText: exampleListen + "\n" + exampleTarget + "\n" + examplePipe,
		Flags:     appFlags(),
		Action:    runApp,
		// main exits, once secrets are purged
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func appFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Usage: "address to listen on; '*' for every address"},
		&cli.StringFlag{Name: "target", Aliases: []string{"t"}, Usage: "address of the listening peer"},
		&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "UDP port to listen on or connect to"},
		&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "file to send (target only)"},
		&cli.StringFlag{Name: "destination", Aliases: []string{"d"}, Usage: "directory to store received files in (listen only)"},
		&cli.StringFlag{Name: "password", EnvVars: []string{"QUICCAT_PASSWORD"}, Usage: "shared password; both peers must use the same one"},
		&cli.BoolFlag{Name: "ask-password", Usage: "prompt for the password on the terminal"},
		&cli.BoolFlag{Name: "wait", Aliases: []string{"w"}, Usage: "wait for a key press before exiting"},
		&cli.BoolFlag{Name: "multi", Aliases: []string{"m"}, Usage: "accept concurrent transfers (listen with --destination)"},
		&cli.IntFlag{Name: "buffer-size", Value: fileCopyBufferSize, Usage: "bytes read per chunk"},
		&cli.Int64Flag{Name: "max-rate", Usage: "send at most this many bytes per second (0 is unlimited)"},
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a YAML config file; flags take precedence"},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log informational messages"},
	}
}

// runApp handles the single command.
func runApp(c *cli.Context) error {
	opts, err := resolveOptions(c)
	if err != nil {
		_ = cli.ShowAppHelp(c)
		example := exampleTarget
		if c.String("listen") != "" {
			example = exampleListen
		}
		return exitWithExample(err.Error(), example)
	}
	setLogLevel(opts.logLevel)

	password, err := loadPassword(c, opts)
	if err != nil {
		return err
	}

	if opts.listen != "" {
		err = runListen(c.Context, opts, password)
	} else {
		err = runTarget(c.Context, opts, password)
	}
	if opts.wait {
		pressAnyKey()
	}
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

// loadPassword returns the password from the command line, the environment
// or the terminal, or nil when none was given.
func loadPassword(c *cli.Context, opts *options) (*memguard.LockedBuffer, error) {
	if opts.askPassword {
		return qcrypto.PromptPassword("Password: ", opts.listen != "")
	}
	if pass := c.String("password"); pass != "" {
		return memguard.NewBufferFromBytes([]byte(pass)), nil
	}
	return nil, nil
}

func pressAnyKey() {
	fmt.Fprint(os.Stderr, "Press any key to exit...")
	bufio.NewReader(os.Stdin).ReadByte()
}

// exitWithExample formats an error message with an example and exits.
func exitWithExample(message, example string) error {
	return cli.Exit(fmt.Sprintf("%s\nExample: %s", message, example), 1)
}
