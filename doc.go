// Package upload provides resumable, chunked object uploads over
// multipart storage backends.
//
// A Task splits one source into fixed-size parts, uploads them with
// bounded concurrency, and finalizes the object once every part has been
// acknowledged. Transfers survive interruption: each task derives a
// stable fingerprint from its source and destination, records the open
// backend session in a Ledger, and on a later resume lists the parts the
// backend already holds so only the remainder is sent.
//
// # Features
//
//   - Automatic part sizing that respects the backend's part-count limit
//   - Bounded-concurrency part uploads with per-part cancellation
//   - Pause, resume, and cancel at any point in the transfer
//   - Resume across process restarts through a pluggable key-value ledger
//   - Short-lived credentials fetched per operation through a broker
//   - Progress, completion, and error notifications via typed events
//   - Post-completion size verification against the stored object
//
// # Usage
//
//	src, err := upload.OpenFile("video.mp4")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer src.Close()
//
//	task, err := upload.NewTask(src,
//		uploadtypes.Destination{Container: "assets", Key: "media/video.mp4"},
//		broker,  // upload.CredentialBroker
//		backend, // upload.Backend, e.g. s3store.New()
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	task.On(upload.EventProgress, func(e upload.Event) {
//		p := e.(upload.ProgressEvent)
//		log.Printf("%d/%d bytes", p.Loaded, p.Total)
//	})
//	task.On(upload.EventError, func(e upload.Event) {
//		log.Printf("upload error: %v", e.(upload.ErrorEvent).Cause)
//	})
//
//	task.Resume(ctx)
//	<-task.Done()
//
// # Pausing and resuming
//
// Pause aborts the in-flight part requests and returns their descriptors
// to the front of the queue; Resume restarts them. Parts whose network
// call finished before the abort was observed are kept, so pausing never
// loses completed work. A failed part likewise parks the task in PAUSED
// after a single error event, and the caller decides when (or whether)
// to resume.
//
// Cancel is terminal. It stops all work but deliberately leaves the
// remote session and the ledger entry behind: backend lifecycle policies
// reap abandoned sessions, and a later task with the same fingerprint
// can still adopt this one.
//
// # Backends
//
// The Backend interface covers the five session operations plus a size
// probe. The s3store package implements it on the AWS SDK, and
// miniostore implements it on the MinIO client. Every call takes the
// credentials to use, so tasks can run entirely on short-lived scoped
// credentials from a CredentialBroker such as brokerhttp.
package upload
