package cmd

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/opd-ai/raknet"
	"github.com/opd-ai/raknet/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	Root = &cobra.Command{
		Use:          "raknetd",
		Short:        "RakNet peer that accepts handshakes and answers keepalives",
		RunE:         startRoot,
		SilenceUsage: true,
	}
	rootFlags = struct {
		Config         string
		Listen         string
		LogLevel       string
		LogFormat      string
		BanList        string
		Security       bool
		RequireSecure  bool
		Connect        string
		ConnectTimeout time.Duration
	}{}
)

func init() {
	Root.PersistentFlags().StringVar(&rootFlags.Config, "config", "", "YAML or TOML configuration file")
	Root.PersistentFlags().StringVar(&rootFlags.BanList, "ban-list", "", "the sqlite database holding bans (in memory when empty)")
	Root.Flags().StringVar(&rootFlags.Listen, "listen", config.DefaultListenAddress, "the UDP address to listen on")
	Root.Flags().StringVar(&rootFlags.LogLevel, "log-level", "info", "the log level to use")
	Root.Flags().StringVar(&rootFlags.LogFormat, "log-format", config.LogFormatAuto, "log format: auto, text or json")
	Root.Flags().BoolVar(&rootFlags.Security, "security", false, "offer secured connections")
	Root.Flags().BoolVar(&rootFlags.RequireSecure, "require-security", false, "refuse unsecured connections")
	Root.Flags().StringVar(&rootFlags.Connect, "connect", "", "connect to this server after starting")
	Root.Flags().DurationVar(&rootFlags.ConnectTimeout, "connect-timeout", 5*time.Second, "how long to wait for --connect")
}

// loadOptions merges defaults, the config file and the flags the user set.
func loadOptions(cmd *cobra.Command) (*config.Options, error) {
	o := config.NewOptions()
	if rootFlags.Config != "" {
		if err := o.LoadFile(rootFlags.Config); err != nil {
			return nil, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("listen") {
		o.ListenAddress = rootFlags.Listen
	}
	if flags.Changed("log-level") {
		o.LogLevel = rootFlags.LogLevel
	}
	if flags.Changed("log-format") {
		o.LogFormat = rootFlags.LogFormat
	}
	if flags.Changed("ban-list") {
		o.BanList = rootFlags.BanList
	}
	if flags.Changed("security") {
		o.Security.Enabled = rootFlags.Security
	}
	if flags.Changed("require-security") {
		o.Security.RequireSecurity = rootFlags.RequireSecure
	}
	return o, o.Validate()
}

func newLogger(o *config.Options, out io.Writer, terminal bool) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(o.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)

	format := o.LogFormat
	if format == config.LogFormatAuto {
		format = config.LogFormatJSON
		if terminal {
			format = config.LogFormatText
		}
	}
	if format == config.LogFormatJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   terminal,
		})
	}
	return logger, nil
}

func startRoot(cmd *cobra.Command, args []string) error {
	o, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(o, os.Stderr, isatty.IsTerminal(os.Stderr.Fd()))
	if err != nil {
		return err
	}

	peer, err := raknet.New(o, logger)
	if err != nil {
		return fmt.Errorf("start peer: %w", err)
	}
	defer peer.Close()

	if key, ok := peer.PublicKey(); ok {
		logger.WithField("public_key", fmt.Sprintf("%x", key[:])).Info("Security enabled")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if rootFlags.Connect != "" {
		remote, err := netip.ParseAddrPort(rootFlags.Connect)
		if err != nil {
			return fmt.Errorf("parse --connect: %w", err)
		}
		connectCtx, cancelConnect := context.WithTimeout(ctx, rootFlags.ConnectTimeout)
		s, err := peer.Connect(connectCtx, remote)
		cancelConnect()
		if err != nil {
			return fmt.Errorf("connect %s: %w", remote, err)
		}
		logger.WithFields(logrus.Fields{
			"session": s.ID().String(),
			"remote":  remote.String(),
			"guid":    s.GUID(),
		}).Info("Connection request sent")
	}

	<-ctx.Done()
	logger.Info("Stopping RakNet peer")
	return nil
}
