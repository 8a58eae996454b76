package common

// Version is set at build time with -ldflags "-X .../common.Version=v1.2.3".
var Version = "dev"

// PackageName identifies this module in logs and user agents.
const PackageName = "device-share-storage"
