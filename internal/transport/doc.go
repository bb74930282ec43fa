// Package transport connects qcdiag to a device's diag port.
//
// Every transport implements Channel: one request in, one reply out, with
// an empty reply meaning the device did not answer. The engine never sees
// link framing.
//
// Serial and USB ports carry HDLC-style frames (see protocol.EncodeHDLC);
// HDLC adapts any raw byte link into a Channel. The relay transport talks
// to qcdiag-relay over a websocket and exchanges already unframed payloads.
//
//	ch, err := transport.Open(ctx, transport.Options{Kind: transport.KindUSB})
//	if err != nil {
//	    return err
//	}
//	defer ch.Close()
//
// Channels serialize Send calls; the diag protocol is half duplex.
package transport
