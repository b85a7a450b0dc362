// Package cli implements the rustyshim command line.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	rustyshim "github.com/rustyshim/rustyshim-sdk/go"
)

// passwordEnv names the environment variable read when no password flag is given.
const passwordEnv = "RUSTYSHIM_PASSWORD"

var version = "dev"

type globalOptions struct {
	configFile         string
	location           string
	host               string
	port               int
	scheme             string
	username           string
	password           string
	passwordStdin      bool
	admin              bool
	insecureSkipVerify bool
	verbose            bool
}

var global globalOptions

var rootCmd = &cobra.Command{
	Use:   "rustyshim",
	Short: "Query SciDB arrays through the rustyshim Flight service",
	Long: `rustyshim talks to the rustyshim Arrow Flight service, which exposes SciDB
arrays as SQL tables. Every command authenticates once with the configured
credentials and then issues its calls with the session token.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&global.configFile, "config", "c", "", "path to a TOML connection profile")
	f.StringVarP(&global.location, "location", "l", "", "service location, e.g. grpc+tcp://localhost:50051")
	f.StringVar(&global.host, "host", "", "service host, used when no location is given")
	f.IntVarP(&global.port, "port", "p", rustyshim.DefaultPort, "service port")
	f.StringVar(&global.scheme, "scheme", rustyshim.DefaultScheme, "location scheme: grpc, grpc+tcp, grpc+tls or grpc+unix")
	f.StringVarP(&global.username, "username", "u", "", "SciDB username")
	f.StringVar(&global.password, "password", "", "SciDB password (prefer "+passwordEnv+" or --password-stdin)")
	f.BoolVar(&global.passwordStdin, "password-stdin", false, "read the password from stdin")
	f.BoolVar(&global.admin, "admin", false, "request an admin session")
	f.BoolVar(&global.insecureSkipVerify, "insecure-skip-verify", false, "skip TLS certificate verification")
	f.BoolVarP(&global.verbose, "verbose", "v", false, "log connection events to stderr")
}

// Execute runs the command line with the given version string.
func Execute(ctx context.Context, v string) error {
	if v != "" {
		version = v
	}
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig merges the connection profile with the command line. Flags given
// explicitly win over the profile.
func loadConfig(cmd *cobra.Command) (*rustyshim.Config, error) {
	config := &rustyshim.Config{}
	if global.configFile != "" {
		loaded, err := rustyshim.LoadConfigFile(global.configFile)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("location") {
		config.Location = global.location
	}
	if flags.Changed("host") {
		config.Host = global.host
		if !flags.Changed("location") {
			config.Location = ""
		}
	}
	if flags.Changed("port") || config.Port == 0 {
		config.Port = global.port
	}
	if flags.Changed("scheme") || config.Scheme == "" {
		config.Scheme = global.scheme
	}
	if flags.Changed("username") {
		config.Username = global.username
	}
	if flags.Changed("admin") {
		config.RequestAdmin = global.admin
	}
	if flags.Changed("insecure-skip-verify") {
		config.InsecureSkipVerify = global.insecureSkipVerify
	}

	password, err := resolvePassword(cmd, config.Password)
	if err != nil {
		return nil, err
	}
	config.Password = password
	return config, nil
}

// resolvePassword picks the password from --password-stdin, --password, the
// environment and the profile, in that order.
func resolvePassword(cmd *cobra.Command, fallback string) (string, error) {
	switch {
	case global.passwordStdin:
		if cmd.Flags().Changed("password") {
			return "", errors.New("--password and --password-stdin are mutually exclusive")
		}
		return readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
	case cmd.Flags().Changed("password"):
		return global.password, nil
	}
	if password, ok := os.LookupEnv(passwordEnv); ok {
		return password, nil
	}
	return fallback, nil
}

// readPassword reads one line from in without echo when in is a terminal.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(prompt, "Password: ")
		password, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(password), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// newLogger writes development logs at debug level with --verbose and
// production logs at warn level otherwise.
func newLogger(w io.Writer) *zap.Logger {
	if global.verbose {
		encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		return zap.New(zapcore.NewCore(encoder, zapcore.AddSync(w), zapcore.DebugLevel), zap.Development())
	}
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return zap.New(zapcore.NewCore(encoder, zapcore.AddSync(w), zapcore.WarnLevel))
}

// withConnection opens a connection for the duration of fn.
func withConnection(cmd *cobra.Command, requireAdmin bool, fn func(ctx context.Context, conn *rustyshim.Connection) error) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if requireAdmin {
		config.RequestAdmin = true
	}

	logger := newLogger(cmd.ErrOrStderr())
	defer func() { _ = logger.Sync() }()
	config.Logger = logger

	ctx := cmd.Context()
	conn, err := rustyshim.Open(ctx, config)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warn("failed to close connection", zap.Error(err))
		}
	}()
	return fn(ctx, conn)
}
