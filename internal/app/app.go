package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/victorvcruz/clipsync/internal/clipboard"
	"github.com/victorvcruz/clipsync/internal/network/ip"
)

type App struct {
	version string
	stdout  io.Writer
	stderr  io.Writer

	// newClipboard opens the platform clipboard. Tests replace it.
	newClipboard func() (clipboard.Clipboard, error)
	lookupEnv    func(string) (string, bool)
}

func New(version string) *App {
	return &App{
		version: version,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		newClipboard: func() (clipboard.Clipboard, error) {
			board, err := clipboard.NewSystem()
			if err != nil {
				return nil, err
			}
			return board, nil
		},
		lookupEnv: os.LookupEnv,
	}
}

// runFlags mirror the config file keys; a flag that is set wins over the
// file.
type runFlags struct {
	configPath   string
	bindAddress  string
	port         uint16
	peerIP       string
	peerPort     uint16
	pollInterval string
	sendTimeout  string
	sendRetries  int
	logLevel     string
	logFormat    string
}

func bindRunFlags(fs *pflag.FlagSet, f *runFlags) {
	fs.StringVarP(&f.configPath, "config", "c", "", "config file (.yaml, .yml, .json or .jsonc); defaults to $"+EnvConfigPath)
	fs.StringVar(&f.bindAddress, "bind", "", "address to listen on (default all interfaces)")
	fs.Uint16VarP(&f.port, "port", "p", DefaultPort, "port to listen on")
	fs.StringVar(&f.peerIP, "peer", "", "peer IP address or host name")
	fs.Uint16Var(&f.peerPort, "peer-port", DefaultPort, "peer port")
	fs.StringVar(&f.pollInterval, "poll-interval", DefaultPollInterval.String(), "clipboard poll interval")
	fs.StringVar(&f.sendTimeout, "send-timeout", DefaultSendTimeout.String(), "timeout for one send to the peer")
	fs.IntVar(&f.sendRetries, "send-retries", 0, "retries for a failed send (0 sends once)")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", "text", "log format: text or json")
}

// Execute runs the command line and returns the first error.
func (a *App) Execute(ctx context.Context, args []string) error {
	root := a.rootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (a *App) rootCommand() *cobra.Command {
	flags := &runFlags{}
	root := &cobra.Command{
		Use:   "clipsync",
		Short: "Encrypted clipboard sync between two devices",
		Long: `clipsync watches the local clipboard and pushes every change, encrypted
with a pre-shared AES key, to one configured peer. Text received from the peer
is decrypted and written to the local clipboard.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd, flags)
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	// Persistent so "clipsync --peer x run" and "clipsync run --peer x" agree.
	bindRunFlags(root.PersistentFlags(), flags)

	root.AddCommand(a.runCommand(flags), a.keygenCommand(), a.ipCommand(), a.versionCommand())
	return root
}

func (a *App) runCommand(flags *runFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start syncing (default when no command is given)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd, flags)
		},
	}
}

func (a *App) keygenCommand() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Print a new random base64 AES key for aes_key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := generateKey(size)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", 32, "key size in bytes: 16, 24 or 32")
	return cmd
}

func (a *App) ipCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ip",
		Short: "Show the LAN address to configure as peer_ip on the other device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := ip.AccessibleIP()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Accessible IP:", addr)
			return nil
		},
	}
}

func (a *App) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the clipsync version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), a.version)
		},
	}
}

func generateKey(size int) (string, error) {
	switch size {
	case 16, 24, 32:
	default:
		return "", fmt.Errorf("invalid key size %d (want 16, 24 or 32)", size)
	}
	key := make([]byte, size)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func (a *App) runSync(cmd *cobra.Command, flags *runFlags) error {
	config, err := a.loadConfig(cmd.Flags(), flags)
	if err != nil {
		return err
	}
	defer config.Close()

	logger := newLogger(a.stderr, config.LogLevel, config.LogFormat)

	board, err := a.newClipboard()
	if err != nil {
		return &clipboard.AccessError{Op: "open", Err: err}
	}

	daemon, err := NewDaemon(config, board, logger)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Press Ctrl+C to stop")
	return daemon.Run(cmd.Context())
}

// loadConfig layers defaults, the config file, the environment and the
// flags that were set explicitly, then validates the result.
func (a *App) loadConfig(fs *pflag.FlagSet, flags *runFlags) (*Config, error) {
	path := flags.configPath
	if path == "" {
		path, _ = a.lookupEnv(EnvConfigPath)
	}
	config, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if key, ok := a.lookupEnv(EnvAESKey); ok && key != "" {
		config.AESKey = key
	}

	if fs.Changed("bind") {
		config.BindAddress = flags.bindAddress
	}
	if fs.Changed("port") {
		config.LocalPort = flags.port
	}
	if fs.Changed("peer") {
		config.PeerIP = flags.peerIP
	}
	if fs.Changed("peer-port") {
		config.PeerPort = flags.peerPort
	}
	if fs.Changed("poll-interval") {
		if err := config.PollInterval.UnmarshalText([]byte(flags.pollInterval)); err != nil {
			return nil, &ConfigError{Field: "poll_interval", Err: err}
		}
	}
	if fs.Changed("send-timeout") {
		if err := config.SendTimeout.UnmarshalText([]byte(flags.sendTimeout)); err != nil {
			return nil, &ConfigError{Field: "send_timeout", Err: err}
		}
	}
	if fs.Changed("send-retries") {
		config.SendRetries = flags.sendRetries
	}
	if fs.Changed("log-level") {
		config.LogLevel = flags.logLevel
	}
	if fs.Changed("log-format") {
		config.LogFormat = flags.logFormat
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
