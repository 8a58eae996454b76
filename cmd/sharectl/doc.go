/*
Sharectl stores and recovers device key shares.

Usage:

	sharectl [global flags] command [command flags]

Commands:

	read    --key K | --pubkey P              print the stored share record
	write   --key K --file F [--device-info]  store a share record on the primary store
	export  --key K [--file F]                export a share record to the secondary store
	init    [--threshold 2 --total 3]         create an account and verify recovery
	serve   [--listen-addr]                   serve the HTTP share API

Store locations are URIs:

	--primary   memory://, sqlite:///path/shares.db, vault://host:8200/mount/path
	--secondary file:///dir, s3://bucket/prefix?region=us-east-1
	--downloads file:///dir

Any location may be none:// to leave the capability out; without a secondary
file system, exports are delivered as downloads. Flags can also be read from a
YAML file given with --config.
*/
package main
