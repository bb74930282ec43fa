// Package efs is a client for the EFS2 file system a device exposes in
// diag mode.
//
// Devices answer EFS2 on one of two subsystem bytes, 0x3E (alternate) or
// 0x13 (standard). A Bridge detects the method once and uses the winning byte for the
// rest of the session:
//
//	b := efs.NewBridge(client)
//	entries, err := b.ReadDir(ctx, "/nv/item_files")
//
// Descriptors and directory handles belong to the device. Open/Close and
// Opendir/Closedir must be paired by the caller; the copy and listing
// helpers do this themselves.
package efs
