/*
Package rfile implements a client-side handle for a single remote file
stored behind pre-signed upload/download URLs.

A Handle moves through three states: open, appending, and closed. While
open, Write accumulates bytes into a part-sized buffer and hands full
parts to a bounded queue drained by a pool of upload workers; Close (by
way of Flush) waits for every produced part to finish uploading before
the remote object is closed. Once closed, StartLinearQuery fetches byte
ranges across a worker pool and delivers them to the caller in strict
offset order through a bounded reorder buffer.

	h := rfile.New(client, caller, cfg)
	if err := h.Create(ctx, "application/octet-stream", nil); err != nil {
		log.Fatal(err)
	}
	if _, err := h.Write(ctx, data); err != nil {
		log.Fatal(err)
	}
	if err := h.Close(ctx, true); err != nil {
		log.Fatal(err)
	}
*/
package rfile
