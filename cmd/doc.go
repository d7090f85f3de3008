// Package cmd implements the gyik command line.
//
// Architecture overview:
//   - Configuration: viper merges defaults, an optional config file, GYIK_*
//     environment variables and command flags into config.Config.
//   - Fetch pipeline: a Colly-based fetcher pauses between requests, retries
//     transient statuses with exponential backoff and cools down when the site
//     serves a captcha or ban page. Raw pages can be archived to memory, local
//     disk or GCS.
//   - Ingestion: list pages yield question URLs with their visible answer
//     counts; the worker skips unchanged threads, assembles the rest across
//     answer pages and hands them to the loader, which writes each thread in
//     one transaction.
//   - Fanout: an ingest event is published per stored thread when a publisher
//     is configured.
//
// Subcommands:
//   - gyik crawl --category tudomanyok [--sub-category fizika] [--start-page N] [--end-page M]
//   - gyik question <url>
package cmd
