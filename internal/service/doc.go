package service

// Package service runs yt-dlp downloads as supervised background jobs.
//
// Overview
// The Downloader admits DownloadRequests. Queue validates the URL, fills
// blank fields from the current configuration, records a queued history
// row and starts one goroutine per job. Jobs wait on a permit pool sized
// by download.concurrency (clamped to 1..3). UpdateConfig swaps the
// configuration and the pool as a whole; jobs still waiting follow the new
// pool while running ones keep their permit and their settings.
//
// A Job holds the authoritative status and the latest progress behind a
// lock, plus an ordered event stream of bounded capacity. The JobHandle is
// the read side handed to callers, with Cancel as its only write.
//
// Runner is a thin, opinionated wrapper around os/exec:
//   - starts the process in its own process group
//   - captures stdout
//   - streams stderr line by line to a callback
//   - kills the whole group on cancellation or timeout
//
// Data flow:
//
//   caller           Downloader              Job goroutine          Runner{cmd}
//     |                  |                        |                      |
//   Queue() ----------->| RecordQueued            |                      |
//     |<-- JobHandle ----| go run() ------------->| acquire permit       |
//     |                  |                        | Running              |
//     |                  |                        | Run() -------------->| exec + stderr scan
//     |<-- events ------------------------------- |<------ lines --------|
//     |                  |                        |<------ Result -------|
//     |                  |                        | MarkCompleted        |
//     |<-- terminal event + close -------------- |                      |
//
// The Supervisor wraps a Downloader for the daemon: an event loop taking
// submissions and configuration reloads, reporting outcomes as JSON lines
// and running the history Janitor.
//
// Invariants:
//   - Status only moves forward: Queued, Running, then one terminal state,
//     or Queued straight to Canceled.
//   - A job canceled before it holds a permit never spawns a process.
//   - The history row of a job is finalized at most once, before the
//     terminal event is published.
//   - The terminal status event is the last status event and the stream is
//     closed right after the terminal payload.
//   - Non-terminal events are dropped and counted when the stream is full.
//
// internal/service/downloader_test.go is the best source about how to
// drive a Downloader.
