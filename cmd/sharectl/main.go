package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/device-share-storage/cmd/flags"
	"github.com/ruteri/device-share-storage/httpserver"
	"github.com/ruteri/device-share-storage/interfaces"
	"github.com/ruteri/device-share-storage/permissions"
	"github.com/ruteri/device-share-storage/sdkhost"
	"github.com/ruteri/device-share-storage/storage"
	"github.com/ruteri/device-share-storage/webstorage"
	"github.com/urfave/cli/v2"
)

// runtime bundles the storage module with the objects backing it.
type runtime struct {
	env     *storage.Environment
	module  *webstorage.Module
	tracker *permissions.Tracker
	querier *permissions.ManualQuerier
	log     *slog.Logger
}

func (rt *runtime) Close() {
	for _, name := range []string{interfaces.CapabilityLocalStorage, interfaces.CapabilityRequestFileSystem, interfaces.CapabilityWebkitRequestFileSystem} {
		if v, ok := rt.env.Capability(name); ok {
			if c, ok := v.(io.Closer); ok {
				if err := c.Close(); err != nil {
					rt.log.Warn("Failed to close store", slog.String("capability", name), "err", err)
				}
			}
		}
	}
}

func setupRuntime(cCtx *cli.Context) (*runtime, error) {
	logger := flags.SetupLogger(cCtx)

	state, err := permissions.ParsePermissionState(cCtx.String(flags.PermissionFlag.Name))
	if err != nil {
		return nil, err
	}
	querier := permissions.NewManualQuerier(state)

	factory := storage.NewEnvironmentFactory(logger).WithVaultToken(cCtx.String(flags.VaultTokenFlag.Name))
	env, err := factory.CreateEnvironment(storage.EnvironmentConfig{
		Primary:        cCtx.String(flags.PrimaryFlag.Name),
		Secondary:      cCtx.String(flags.SecondaryFlag.Name),
		Downloads:      cCtx.String(flags.DownloadsFlag.Name),
		VendorPrefixed: cCtx.Bool(flags.VendorPrefixedFlag.Name),
		Permissions:    querier,
	})
	if err != nil {
		logger.Error("Failed to create storage environment", "err", err)
		return nil, err
	}

	module, tracker := webstorage.NewFromEnvironment(cCtx.Context, env, logger)
	<-tracker.Initialized()

	return &runtime{env: env, module: module, tracker: tracker, querier: querier, log: logger}, nil
}

// storageKey resolves --key or --pubkey.
func storageKey(cCtx *cli.Context) (interfaces.StorageKey, error) {
	if key := cCtx.String(flags.KeyFlag.Name); key != "" {
		return key, nil
	}
	if pub := cCtx.String(flags.PubkeyFlag.Name); pub != "" {
		return interfaces.LookupKeyFromHex(pub)
	}
	return "", errors.New("either --key or --pubkey is required")
}

func deviceInfo(cCtx *cli.Context) (map[string]any, error) {
	raw := cCtx.String(flags.DeviceInfoFlag.Name)
	if raw == "" {
		return nil, nil
	}
	var info map[string]any
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, fmt.Errorf("invalid --device-info: %w", err)
	}
	return info, nil
}

// readRecordInput reads a share record from --file, or stdin when it is "-".
func readRecordInput(cCtx *cli.Context) (interfaces.ShareRecord, error) {
	path := cCtx.String("file")
	var data []byte
	var err error
	switch path {
	case "":
		return nil, nil
	case "-":
		data, err = io.ReadAll(os.Stdin)
	default:
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read share record: %w", err)
	}
	return interfaces.ParseShareRecord(data)
}

var fileFlag = &cli.StringFlag{
	Name:  "file",
	Usage: "share record JSON file, or - for stdin",
}

var keyFlags = []cli.Flag{flags.KeyFlag, flags.PubkeyFlag}

func readCommand() *cli.Command {
	return &cli.Command{
		Name:  "read",
		Usage: "Read a share record, falling back to the secondary store",
		Flags: keyFlags,
		Action: func(cCtx *cli.Context) error {
			key, err := storageKey(cCtx)
			if err != nil {
				return err
			}
			rt, err := setupRuntime(cCtx)
			if err != nil {
				return err
			}
			defer rt.Close()

			record, err := rt.module.Read(cCtx.Context, key)
			if err != nil {
				return errors.New(interfaces.PrettyPrintError(err))
			}
			fmt.Println(string(record))
			return nil
		},
	}
}

func writeCommand() *cli.Command {
	return &cli.Command{
		Name:  "write",
		Usage: "Write a share record to the primary store",
		Flags: append([]cli.Flag{fileFlag, flags.DeviceInfoFlag}, keyFlags...),
		Action: func(cCtx *cli.Context) error {
			key, err := storageKey(cCtx)
			if err != nil {
				return err
			}
			record, err := readRecordInput(cCtx)
			if err != nil {
				return err
			}
			if record == nil {
				return errors.New("--file is required")
			}
			info, err := deviceInfo(cCtx)
			if err != nil {
				return err
			}

			rt, err := setupRuntime(cCtx)
			if err != nil {
				return err
			}
			defer rt.Close()

			rt.module.SetModuleReferences(sdkhost.NewRecorder(key, rt.log))
			if err := rt.module.Write(cCtx.Context, key, record, info); err != nil {
				return errors.New(interfaces.PrettyPrintError(err))
			}
			rt.log.Info("Share record written", "key", key)
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export a share record to the secondary store or as a download",
		Flags: append([]cli.Flag{fileFlag}, keyFlags...),
		Action: func(cCtx *cli.Context) error {
			key, err := storageKey(cCtx)
			if err != nil {
				return err
			}
			record, err := readRecordInput(cCtx)
			if err != nil {
				return err
			}

			rt, err := setupRuntime(cCtx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if record == nil {
				record, err = rt.module.Read(cCtx.Context, key)
				if err != nil {
					return errors.New(interfaces.PrettyPrintError(err))
				}
			}
			if err := rt.module.ExportToSecondaryStore(cCtx.Context, key, record); err != nil {
				return errors.New(interfaces.PrettyPrintError(err))
			}
			rt.log.Info("Share record exported", "key", key, "usable", rt.module.IsSecondaryStoreUsable())
			return nil
		},
	}
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create a fresh account, store its device share and verify recovery",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "threshold", Value: 2, Usage: "shares required to reconstruct"},
			&cli.IntFlag{Name: "total", Value: 3, Usage: "shares to create"},
			&cli.BoolFlag{Name: "export", Usage: "also export the device share to the secondary store"},
			flags.DeviceInfoFlag,
		},
		Action: func(cCtx *cli.Context) error {
			info, err := deviceInfo(cCtx)
			if err != nil {
				return err
			}
			rt, err := setupRuntime(cCtx)
			if err != nil {
				return err
			}
			defer rt.Close()

			host, err := sdkhost.GenerateLocalHost(cCtx.Int("threshold"), cCtx.Int("total"), rt.log)
			if err != nil {
				return err
			}
			if err := rt.module.Initialize(cCtx.Context); err != nil {
				return err
			}
			rt.module.SetModuleReferences(host)

			indexes := host.ShareIndexes()
			deviceIndex := indexes[0]
			if err := host.StoreDeviceShare(cCtx.Context, deviceIndex, info); err != nil {
				return errors.New(interfaces.PrettyPrintError(err))
			}
			if cCtx.Bool("export") {
				if err := rt.module.ExportShareIndex(cCtx.Context, deviceIndex); err != nil {
					return errors.New(interfaces.PrettyPrintError(err))
				}
			}

			// Recover the way a returning device would: device share from
			// storage plus the backup shares.
			if err := rt.module.InputShareFromWebStorage(cCtx.Context); err != nil {
				return errors.New(interfaces.PrettyPrintError(err))
			}
			for _, idx := range indexes[1:] {
				if err := host.InputShareIndex(idx); err != nil {
					return err
				}
			}
			if _, err := host.Reconstruct(); err != nil {
				return fmt.Errorf("recovery check failed: %w", err)
			}

			key, _ := host.LookupKey(cCtx.Context)
			polynomialID, _ := host.LatestPolynomialID(cCtx.Context)
			rt.log.Info("Account initialized",
				slog.String("key", key),
				slog.String("polynomial_id", polynomialID),
				slog.String("device_share_index", deviceIndex))
			fmt.Println(key)
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the share storage API",
		Flags: []cli.Flag{flags.ListenAddrFlag, flags.PprofFlag},
		Action: func(cCtx *cli.Context) error {
			rt, err := setupRuntime(cCtx)
			if err != nil {
				return err
			}
			defer rt.Close()

			rt.module.SetModuleReferences(sdkhost.NewRecorder("", rt.log))

			handler := httpserver.NewHandler(rt.module, rt.tracker, rt.querier, rt.log)
			server, err := httpserver.New(flags.ConfigureServer(cCtx, rt.log), handler)
			if err != nil {
				rt.log.Error("Failed to create server", "err", err)
				return err
			}
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			rt.log.Info("Server is running, press Ctrl+C to stop")
			<-exit
			rt.log.Info("Shutdown signal received")

			server.Shutdown()
			rt.log.Info("Server shutdown complete")
			return nil
		},
	}
}

func main() {
	globalFlags := append([]cli.Flag{flags.ConfigFlag}, flags.StoreFlags...)
	globalFlags = append(globalFlags, flags.CommonFlags...)

	commands := []*cli.Command{
		readCommand(),
		writeCommand(),
		exportCommand(),
		initCommand(),
		serveCommand(),
	}
	serve := commands[len(commands)-1]
	serve.Before = flags.WithConfigFile(serve.Flags)

	app := &cli.App{
		Name:     "sharectl",
		Usage:    "Store and recover device key shares",
		Flags:    globalFlags,
		Before:   flags.WithConfigFile(globalFlags),
		Commands: commands,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
