// Package nv reads and writes NV items on a device in diag mode.
//
// Flat items use opcodes 0x26/0x27. Indexed items (per-SIM copies and the
// like) go through the NV subsystem, 4B 30 01|02 00. Every write is read
// back and compared with what was sent, ignoring trailing zero padding.
//
// Bulk operations (BackupAll, Restore) never stop on a single failing
// item; failures are written to an error log and the run continues.
package nv
