// Package sdkhost provides LocalHost, an in-process share host.
//
// LocalHost plays the role of the threshold key SDK that wraps the storage
// module: it owns an account key, splits a secret into Shamir shares, issues
// share records and consumes them again for reconstruction.
//
//	host, _ := sdkhost.GenerateLocalHost(2, 3, log)
//	module.SetModuleReferences(host)
//	_ = host.StoreDeviceShare(ctx, host.ShareIndexes()[0], nil)
package sdkhost
