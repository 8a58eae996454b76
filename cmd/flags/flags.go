package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/device-share-storage/common"
	"github.com/ruteri/device-share-storage/httpserver"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *httpserver.HTTPServerConfig {
	enablePprof := cCtx.Bool(PprofFlag.Name)

	return &httpserver.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              enablePprof,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// WithConfigFile lets every flag in fs be set from the YAML file named by
// --config. Command line and environment values take precedence.
func WithConfigFile(fs []cli.Flag) cli.BeforeFunc {
	return altsrc.InitInputSourceWithContext(fs, func(cCtx *cli.Context) (altsrc.InputSourceContext, error) {
		if cCtx.String(ConfigFlag.Name) == "" {
			return altsrc.NewMapInputSource("", map[interface{}]interface{}{}), nil
		}
		return altsrc.NewYamlSourceFromFlagFunc(ConfigFlag.Name)(cCtx)
	})
}

var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	EnvVars: []string{"SHARECTL_CONFIG"},
	Usage:   "YAML file with flag values",
}

var PrimaryFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "primary",
	Value:   "sqlite://./shares.db",
	EnvVars: []string{"SHARECTL_PRIMARY"},
	Usage:   "primary key-value store: memory://, sqlite:///path, vault://host:port/mount/path, or none://",
})

var SecondaryFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "secondary",
	Value:   "file://./share-files",
	EnvVars: []string{"SHARECTL_SECONDARY"},
	Usage:   "secondary file system: file:///dir, s3://bucket/prefix?region=, or none://",
})

var DownloadsFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "downloads",
	Value:   "file://./downloads",
	EnvVars: []string{"SHARECTL_DOWNLOADS"},
	Usage:   "directory receiving manual share downloads (file:// or none://)",
})

var VendorPrefixedFlag = altsrc.NewBoolFlag(&cli.BoolFlag{
	Name:    "vendor-prefixed",
	EnvVars: []string{"SHARECTL_VENDOR_PREFIXED"},
	Usage:   "expose the file system under its vendor-prefixed capability name",
})

var PermissionFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "permission",
	Value:   "prompt",
	EnvVars: []string{"SHARECTL_PERMISSION"},
	Usage:   "initial persistent-storage permission: granted, denied or prompt",
})

var VaultTokenFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "vault-token",
	EnvVars: []string{"VAULT_TOKEN"},
	Usage:   "token for vault:// primary stores",
})

var StoreFlags = []cli.Flag{
	PrimaryFlag,
	SecondaryFlag,
	DownloadsFlag,
	VendorPrefixedFlag,
	PermissionFlag,
	VaultTokenFlag,
}

var KeyFlag = &cli.StringFlag{
	Name:  "key",
	Usage: "storage key (hex x-coordinate of the account public key)",
}

var PubkeyFlag = &cli.StringFlag{
	Name:  "pubkey",
	Usage: "hex-encoded secp256k1 account public key, compressed or uncompressed",
}

var DeviceInfoFlag = &cli.StringFlag{
	Name:  "device-info",
	Usage: "JSON object recorded in the share description",
}

var ListenAddrFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:8080",
	EnvVars: []string{"SHARECTL_LISTEN_ADDR"},
	Usage:   "address to listen on for API",
})

var LogJsonFlag = altsrc.NewBoolFlag(&cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
})
var LogDebugFlag = altsrc.NewBoolFlag(&cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
})
var LogUidFlag = altsrc.NewBoolFlag(&cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
})
var LogServiceFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
})

var PprofFlag = altsrc.NewBoolFlag(&cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
})

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}
