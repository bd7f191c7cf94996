// Package types defines the table, chunk, plan and run types shared by the
// bigcsv pipeline, the Config accepted by a transpose run, the Ledger
// interface used to record runs, and the standard error taxonomy.
package types
