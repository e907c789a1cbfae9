package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultPprofAddress = "localhost:9327"
	defaultConfigFile   = "simbridgefs.yaml"
	envPrefix           = "SIMBRIDGEFS"
)

// Action is the piece of work selected on the command line.
type Action string

const (
	ActionNone    Action = ""
	ActionMount   Action = "mount"
	ActionGet     Action = "get"
	ActionSet     Action = "set"
	ActionWatch   Action = "watch"
	ActionProbe   Action = "probe"
	ActionSandbox Action = "sandbox"
)

// Store backends
const (
	StoreBitcask = "bitcask"
	StoreRedis   = "redis"
	StoreMemory  = "memory"
)

var (
	Selected Action
	Args     []string

	MountPoint   string
	MountOptions []string
	Verbose      bool
	FuseDebug    bool
	EnablePprof  bool
	MetricsAddr  string
	ConfigFile   string

	StoreKind     string
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string
	Timeout       time.Duration

	SandboxAddr string
	SeedPath    string
	Latency     time.Duration
	FailStatus  int

	// Will be set by go-build
	Version string
	Rev     string
)

var rootCmd = newRootCmd()

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{TimestampFormat: "15:04:05", FullTimestamp: true})
}

func newRootCmd() *cobra.Command {
	Selected, Args = ActionNone, nil

	root := &cobra.Command{
		Use:   fmt.Sprintf("%s [mount-point]", os.Args[0]),
		Short: "Mount the A32NX settings store and SimBridge documents to the local file system",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, viper.New())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return cmd.Help()
			}
			MountPoint = args[0]
			return selectAction(ActionMount, args)
		},
	}

	version := Version
	if version != "" && Rev != "" {
		version = fmt.Sprintf("%s, build %s", version, Rev)
	}
	root.Version = version

	pf := root.PersistentFlags()
	pf.StringVar(&ConfigFile, "config", defaultConfigFile, "optional YAML config file")
	pf.BoolVarP(&Verbose, "verbose", "v", false, "verbose output")
	pf.BoolVar(&EnablePprof, "enable-pprof", false, fmt.Sprintf("enable runtime profiling data via HTTP server. Address is at %q", "http://"+defaultPprofAddress+"/debug/pprof"))
	pf.StringVar(&MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, eg. localhost:9328")
	pf.StringVar(&StoreKind, "store", StoreBitcask, "settings store backend: bitcask, redis or memory")
	pf.StringVarP(&DBPath, "path", "p", "", "path to bitcask database")
	pf.StringVar(&RedisAddr, "redis-addr", "localhost:6379", "redis address when --store=redis")
	pf.StringVar(&RedisPassword, "redis-password", "", "redis password")
	pf.IntVar(&RedisDB, "redis-db", 0, "redis database number")
	pf.StringVar(&NATSURL, "nats-url", "", "share setting changes with other processes over NATS")
	pf.DurationVar(&Timeout, "timeout", 10*time.Second, "timeout of each SimBridge request")
	pf.SortFlags = false

	root.Flags().StringSliceVar(&MountOptions, "mount-options", []string{"nonempty"}, "options are passed as -o string to fusermount")
	root.Flags().BoolVar(&FuseDebug, "fuse-debug", false, "log every FUSE request, requires --verbose")
	root.Flags().SortFlags = false

	root.AddCommand(
		&cobra.Command{
			Use:   "get KEY [DEFAULT]",
			Short: "Print a setting",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return selectAction(ActionGet, args)
			},
		},
		&cobra.Command{
			Use:   "set KEY VALUE",
			Short: "Store a setting and notify subscribers",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return selectAction(ActionSet, args)
			},
		},
		&cobra.Command{
			Use:   "watch [KEY]",
			Short: "Print setting changes as they happen",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return selectAction(ActionWatch, args)
			},
		},
		&cobra.Command{
			Use:   "probe",
			Short: "Check whether the SimBridge terrain service is available",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return selectAction(ActionProbe, args)
			},
		},
		newSandboxCmd(),
	)

	root.SilenceErrors = true
	root.SilenceUsage = true
	return root
}

func newSandboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Serve a fake SimBridge from a seed file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return selectAction(ActionSandbox, args)
		},
	}
	cmd.Flags().StringVar(&SandboxAddr, "addr", "localhost:8380", "listen address")
	cmd.Flags().StringVar(&SeedPath, "seed", "", "JSON seed file with routes, documents and terrain answers")
	cmd.Flags().DurationVar(&Latency, "latency", 0, "delay added to every response")
	cmd.Flags().IntVar(&FailStatus, "fail", 0, "answer every request with this status code")
	return cmd
}

func selectAction(a Action, args []string) error {
	if a != ActionSandbox {
		if err := validateStore(); err != nil {
			return err
		}
	}
	Selected, Args = a, args
	return nil
}

func validateStore() error {
	switch StoreKind {
	case StoreBitcask:
		if DBPath == "" {
			return errors.New("--path is required for the bitcask store")
		}
	case StoreRedis:
		if RedisAddr == "" {
			return errors.New("--redis-addr is required for the redis store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q", StoreKind)
	}
	return nil
}

// loadConfig fills every flag not given on the command line from the
// SIMBRIDGEFS_* environment or the config file, in that order.
func loadConfig(cmd *cobra.Command, v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(ConfigFile)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if ConfigFile != defaultConfigFile || !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("error reading config %q: %w", ConfigFile, err)
		}
	} else {
		logrus.WithField("file", v.ConfigFileUsed()).Debug("Loaded config")
	}

	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed || f.Name == "config" || !v.IsSet(f.Name) {
			return
		}
		value := v.GetString(f.Name)
		if f.Value.Type() == "stringSlice" {
			value = strings.Join(v.GetStringSlice(f.Name), ",")
		}
		if e := cmd.Flags().Set(f.Name, value); e != nil {
			err = fmt.Errorf("invalid value for %s: %w", f.Name, e)
		}
	})
	return err
}

// Execute parses the command line and reports whether there is work to do.
func Execute() bool {
	return run(rootCmd)
}

func run(cmd *cobra.Command) bool {
	if err := cmd.Execute(); err != nil {
		logrus.Errorln(err)
		return false
	}
	if Selected == ActionNone {
		return false
	}

	if Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if EnablePprof {
		go func() {
			if err := http.ListenAndServe(defaultPprofAddress, nil); err != nil {
				logrus.WithError(err).Error("Failed to serve pprof")
			}
		}()
	}
	return true
}
