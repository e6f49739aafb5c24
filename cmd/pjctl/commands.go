package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BenVanZee/sony-projector-control/config"
	"github.com/BenVanZee/sony-projector-control/pkg/pjlink"
	"github.com/BenVanZee/sony-projector-control/pkg/pjlink/pjlinktest"
)

var (
	configPath string
	targets    []string
	groupName  string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringSliceVarP(&targets, "projectors", "p", nil, "projector nicknames or aliases")
	rootCmd.PersistentFlags().StringVarP(&groupName, "group", "g", "", "projector group (default: all)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stateCmd("power", "Control projector power", pjlink.Power))
	rootCmd.AddCommand(stateCmd("mute", "Blank or unblank the screen", pjlink.Mute))
	rootCmd.AddCommand(stateCmd("freeze", "Freeze or resume the picture", pjlink.Freeze))
	rootCmd.AddCommand(queryCmd("lamp", "Show lamp hours", pjlink.LampQuery))
	rootCmd.AddCommand(queryCmd("input", "Show the active input", pjlink.InputQuery))
	rootCmd.AddCommand(queryCmd("errors", "Show the projector error status", pjlink.ErrorQuery))
	rootCmd.AddCommand(mockCmd)
}

// target returns the dispatch target from the persistent flags. Explicit
// projector names win over the group flag.
func target() pjlink.Target {
	if len(targets) > 0 {
		return pjlink.TargetNames(targets...)
	}
	if groupName != "" {
		return pjlink.TargetGroup(groupName)
	}
	return pjlink.TargetAll()
}

func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	if verbose || cfg.Level == "debug" {
		level = slog.LevelDebug
	} else if cfg.Level == "warn" {
		level = slog.LevelWarn
	} else if cfg.Level == "error" {
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func getFleet() *pjlink.Fleet {
	cfg := loadConfig()
	logger := setupLogger(cfg.Log)

	registry, err := pjlink.NewRegistry(cfg.Descriptors())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error in projector configuration: %v\n", err)
		os.Exit(1)
	}

	connect, read, err := cfg.Network.Timeouts()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error in network configuration: %v\n", err)
		os.Exit(1)
	}

	fleet, err := pjlink.NewFleet(registry,
		pjlink.WithConnectTimeout(connect),
		pjlink.WithReadTimeout(read),
		pjlink.WithLogger(logger),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return fleet
}

func runDispatch(req pjlink.CommandRequest) {
	fleet := getFleet()
	defer fleet.Close()

	report, err := fleet.Dispatch(context.Background(), req, target())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, res := range report.Results() {
		if res.OK() {
			fmt.Printf("%s: %s\n", res.Device, res.Value)
		} else {
			fmt.Printf("%s: FAILED (%s: %v)\n", res.Device, res.Kind, res.Err)
		}
	}
	if !report.OK() {
		os.Exit(1)
	}
}

func parseAction(arg string) (pjlink.Action, error) {
	switch arg {
	case "on":
		return pjlink.ActionOn, nil
	case "off":
		return pjlink.ActionOff, nil
	case "toggle":
		return pjlink.ActionToggle, nil
	case "status", "query":
		return pjlink.ActionQuery, nil
	}
	return "", fmt.Errorf("invalid action %q: must be on, off, toggle or status", arg)
}

func stateCmd(name, short string, build func(pjlink.Action) pjlink.CommandRequest) *cobra.Command {
	return &cobra.Command{
		Use:   name + " [on|off|toggle|status]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			action, err := parseAction(args[0])
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			runDispatch(build(action))
		},
	}
}

func queryCmd(name, short string, build func() pjlink.CommandRequest) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			runDispatch(build())
		},
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show power, mute, freeze and lamp status of the targeted projectors",
	Run: func(cmd *cobra.Command, args []string) {
		fleet := getFleet()
		defer fleet.Close()

		statuses, err := fleet.Status(context.Background(), target())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		for _, st := range statuses {
			name := st.Device
			if d, err := fleet.Registry().Resolve(st.Device); err == nil {
				name = d.DisplayName()
			}
			if !st.Online {
				fmt.Printf("%s: OFFLINE (%v)\n", name, st.Err)
				continue
			}
			fmt.Printf("%s: Power=%s, Mute=%s, Freeze=%s, Lamp=%s\n",
				name, st.Power, st.Mute, st.Freeze, st.Lamp)
		}
	},
}

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Run mock projector servers for local testing",
	Long: `Starts one mock PJLink projector per --listen address and serves until
interrupted. Useful for exercising the CLI and macropad front-ends without
hardware.`,
	Run: func(cmd *cobra.Command, args []string) {
		listens, _ := cmd.Flags().GetStringSlice("listen")
		if len(listens) == 0 {
			listens = []string{"127.0.0.1:4352"}
		}

		var servers []*pjlinktest.Server
		for _, addr := range listens {
			srv := pjlinktest.NewServer()
			got, err := srv.StartOn(addr)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error listening on %s: %v\n", addr, err)
				os.Exit(1)
			}
			fmt.Printf("Mock projector listening on %s\n", got)
			servers = append(servers, srv)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		fmt.Println("Shutting down mock projectors...")
		for _, srv := range servers {
			srv.Close()
		}
	},
}

func init() {
	mockCmd.Flags().StringSlice("listen", nil, "listen addresses (default 127.0.0.1:4352)")
}
